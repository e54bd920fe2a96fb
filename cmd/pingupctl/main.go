package main

import (
	"fmt"
	"os"

	"github.com/anonto42/pingup/backend/pkg/config"
	"github.com/anonto42/pingup/backend/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "pingupctl",
	Short: "PingUp maintenance commands",
	Long: `pingupctl runs one-off maintenance against the PingUp stores.
Connection settings come from the same environment (or .env) as the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Initialize(logLevel, "pingupctl.log")
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
}

// openPostgres connects to the relational store named by POSTGRES_CONN_STR
func openPostgres() (*gorm.DB, func(), error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, nil, err
	}
	db, err := config.OpenPostgres(cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { (&config.DB{Postgres: db}).CloseDB() }, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
