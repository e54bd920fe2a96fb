// Package firebase wraps the Firebase Admin SDK for ID token verification.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/pingup/backend/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrTokenRevoked is returned for tokens of a signed-out or disabled account
var ErrTokenRevoked = errors.New("firebase ID token revoked")

// Config selects the service account and how strictly tokens are checked
type Config struct {
	CredentialsPath string
	// ProjectID overrides the project named in the credentials file
	ProjectID string
	// CheckRevoked costs one Admin API round trip per verification
	CheckRevoked bool
}

// idTokenClient is the part of *auth.Client the App uses
type idTokenClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*auth.Token, error)
}

// App verifies Firebase ID tokens
type App struct {
	client       idTokenClient
	checkRevoked bool
}

// InitFirebase initializes the Firebase application and its auth client
func InitFirebase(ctx context.Context, cfg Config) (*App, error) {
	if cfg.CredentialsPath == "" {
		return nil, fmt.Errorf("firebase credentials path not provided")
	}
	if _, err := os.Stat(cfg.CredentialsPath); err != nil {
		return nil, fmt.Errorf("firebase credentials file: %w", err)
	}

	var appCfg *firebase.Config
	if cfg.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	fbApp, err := firebase.NewApp(ctx, appCfg, option.WithCredentialsFile(cfg.CredentialsPath))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := fbApp.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth client: %w", err)
	}

	logger.Log.Info("Firebase auth client initialized",
		zap.String("project_id", cfg.ProjectID), zap.Bool("check_revoked", cfg.CheckRevoked))
	return newApp(client, cfg.CheckRevoked), nil
}

func newApp(client idTokenClient, checkRevoked bool) *App {
	return &App{client: client, checkRevoked: checkRevoked}
}

// VerifyIDToken checks the token signature and expiry, and its revocation
// status when the App was configured to
func (a *App) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	if !a.checkRevoked {
		return a.client.VerifyIDToken(ctx, idToken)
	}
	token, err := a.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if auth.IsIDTokenRevoked(err) || auth.IsUserDisabled(err) {
		return nil, fmt.Errorf("%w: %v", ErrTokenRevoked, err)
	}
	return token, err
}
