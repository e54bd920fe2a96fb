package main

import (
	"fmt"
	"sort"

	"github.com/anonto42/pingup/backend/internal/repositories"
	"github.com/anonto42/pingup/backend/internal/services"
	"github.com/anonto42/pingup/backend/pkg/logger"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Remove dangling graph edges and rebuild user counters once",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, closeDB, err := openPostgres()
		if err != nil {
			return err
		}
		defer closeDB()

		r := services.NewReconciler(repositories.NewPostgresReconcileRepository(db), 0, logger.Log)
		report, err := r.RunOnce(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		kinds := make([]string, 0, len(report))
		for kind := range report {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(out, "%-28s %d\n", kind, report[kind])
		}
		fmt.Fprintf(out, "%-28s %d\n", "total", report.Total())
		return nil
	},
}
