package handlers

import (
	"errors"
	"net/http"
	"time"

	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/anonto42/pingup/backend/internal/middleware"
	"github.com/anonto42/pingup/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// AuthHandler exchanges identity provider tokens for local JWTs
type AuthHandler struct {
	users     *services.UserService
	verifier  middleware.TokenVerifier
	jwtSecret string
	now       func() time.Time
}

// NewAuthHandler creates a new AuthHandler. verifier may be nil when no
// identity provider is configured.
func NewAuthHandler(users *services.UserService, verifier middleware.TokenVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		users:     users,
		verifier:  verifier,
		jwtSecret: jwtSecret,
		now:       time.Now,
	}
}

// RegisterAuthRoutes registers authentication-related routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/firebase-login", h.FirebaseLogin)
}

// FirebaseLoginRequest defines the request body for Firebase login
type FirebaseLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// FirebaseLogin verifies a Firebase ID token, creates the user on first
// sign-in and issues a local JWT
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	var req FirebaseLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if h.verifier == nil {
		return apperrors.Unavailable("identity provider", errors.New("no token verifier configured"))
	}

	token, err := h.verifier.VerifyIDToken(c.Request().Context(), req.IDToken)
	if err != nil {
		return apperrors.Unauthenticated("Invalid Firebase ID token")
	}

	user, err := h.users.SyncIdentity(c.Request().Context(), middleware.IdentityFromToken(token))
	if err != nil {
		return err
	}

	localJWT, err := middleware.IssueToken(h.jwtSecret, user, h.now())
	if err != nil {
		return apperrors.Internal(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "token": localJWT, "user": user})
}
