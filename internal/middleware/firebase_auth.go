package middleware

import (
	"context"

	"firebase.google.com/go/v4/auth"
	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// TokenVerifier verifies identity provider ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseAuthMiddleware creates an Echo middleware to verify Firebase ID tokens
func FirebaseAuthMiddleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idToken, err := bearerToken(c)
			if err != nil {
				return err
			}

			token, err := verifier.VerifyIDToken(c.Request().Context(), idToken)
			if err != nil {
				return apperrors.Unauthenticated("Invalid or expired ID token")
			}

			SetAuth(c, models.AuthContext{UserID: token.UID})
			return next(c)
		}
	}
}

// IdentityFromToken reads the profile fields the provider put in the token
func IdentityFromToken(token *auth.Token) models.IdentityProfile {
	id := models.IdentityProfile{UID: token.UID}
	if v, ok := token.Claims["email"].(string); ok {
		id.Email = v
	}
	if v, ok := token.Claims["name"].(string); ok {
		id.FullName = v
	}
	if v, ok := token.Claims["picture"].(string); ok {
		id.ProfilePicture = v
	}
	return id
}
