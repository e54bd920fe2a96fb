package router

import (
	"fmt"

	"github.com/anonto42/pingup/backend/internal/handlers"
	"github.com/anonto42/pingup/backend/internal/metrics"
	"github.com/anonto42/pingup/backend/internal/middleware"
	"github.com/anonto42/pingup/backend/internal/services"
	"github.com/anonto42/pingup/backend/pkg/config"
	"github.com/anonto42/pingup/backend/validators"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Services are the domain services the HTTP layer exposes
type Services struct {
	Users     *services.UserService
	Graph     *services.GraphService
	Messaging *services.MessagingService
	Notifier  *services.Notifier
	Presence  *services.Presence
	// Verifier checks identity provider tokens. Required for AUTH_MODE=firebase
	// and for /api/auth/firebase-login.
	Verifier middleware.TokenVerifier
}

// New builds the echo instance with global middleware and every route
func New(cfg *config.Config, svc Services, log *zap.Logger) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validators.NewValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler(log)

	config.SetupMiddleware(e, cfg, log)
	e.Use(metrics.Middleware())

	authMW, err := authMiddleware(cfg, svc.Verifier)
	if err != nil {
		return nil, err
	}
	SetupRoutes(e, svc, cfg.JWTSecret, authMW)
	log.Info("Routes configured", zap.String("auth_mode", cfg.AuthMode))
	return e, nil
}

func authMiddleware(cfg *config.Config, verifier middleware.TokenVerifier) (echo.MiddlewareFunc, error) {
	switch cfg.AuthMode {
	case config.AuthModeFirebase:
		if verifier == nil {
			return nil, fmt.Errorf("AUTH_MODE=firebase needs a token verifier")
		}
		return middleware.FirebaseAuthMiddleware(verifier), nil
	case config.AuthModeJWT, "":
		return middleware.JWTAuthMiddleware(cfg.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
	}
}

// SetupRoutes configures all application routes. Every /api route except
// the auth group runs behind authMW and stamps presence.
func SetupRoutes(e *echo.Echo, svc Services, jwtSecret string, authMW echo.MiddlewareFunc) {
	e.GET("/health", handlers.HealthCheck)

	authGroup := e.Group("/api/auth")
	handlers.NewAuthHandler(svc.Users, svc.Verifier, jwtSecret).RegisterAuthRoutes(authGroup)

	api := e.Group("/api", authMW, middleware.Presence(svc.Presence))

	handlers.NewUserHandler(svc.Users).RegisterProfileRoutes(api)
	handlers.NewGraphHandler(svc.Graph).RegisterGraphRoutes(api)
	handlers.NewMessageHandler(svc.Messaging).RegisterMessageRoutes(api)
	handlers.NewNotificationHandler(svc.Notifier).RegisterNotificationRoutes(api)
}
