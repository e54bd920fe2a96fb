package middleware

import (
	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/labstack/echo/v4"
)

const authKey = "auth"

// SetAuth stores the verified caller on the request
func SetAuth(c echo.Context, auth models.AuthContext) {
	c.Set(authKey, auth)
}

// Auth returns the verified caller, or UNAUTHENTICATED if the request has none
func Auth(c echo.Context) (models.AuthContext, error) {
	auth, ok := c.Get(authKey).(models.AuthContext)
	if !ok || auth.UserID == "" {
		return models.AuthContext{}, apperrors.Unauthenticated("")
	}
	return auth, nil
}

// Toucher records activity for a user without blocking
type Toucher interface {
	TouchAsync(userID string)
}

// Presence stamps the caller's last activity after authentication
func Presence(t Toucher) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if auth, err := Auth(c); err == nil {
				t.TouchAsync(auth.UserID)
			}
			return next(c)
		}
	}
}
