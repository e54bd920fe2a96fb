package handlers

import (
	"net/http"

	"github.com/anonto42/pingup/backend/internal/middleware"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/anonto42/pingup/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// UserHandler handles HTTP requests related to users
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterProfileRoutes registers user profile-related routes
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group) {
	g.GET("/user/data", h.GetProfile)         // own profile
	g.POST("/user/update", h.UpdateProfile)   // own profile, multipart or JSON
	g.POST("/user/discover", h.DiscoverUsers) // search
	g.POST("/user/profile", h.GetUser)        // someone else's profile
	g.DELETE("/user", h.DeleteUser)
}

// GetProfile retrieves the authenticated user's profile
func (h *UserHandler) GetProfile(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}

	user, err := h.users.Me(c.Request().Context(), auth)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": user})
}

// GetUser returns the profile named in the body
func (h *UserHandler) GetUser(c echo.Context) error {
	if _, err := middleware.Auth(c); err != nil {
		return err
	}
	var req models.ProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	profile, err := h.users.Profile(c.Request().Context(), req.ProfileID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "profile": profile})
}

// UpdateProfile updates the authenticated user's profile. New images come in
// as the multipart files "profile" and "cover".
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}
	var upd services.ProfileUpdate
	if err := bindAndValidate(c, &upd.UpdateUserRequest); err != nil {
		return err
	}
	if upd.Profile, err = readUpload(c, "profile"); err != nil {
		return err
	}
	if upd.Cover, err = readUpload(c, "cover"); err != nil {
		return err
	}

	user, err := h.users.UpdateProfile(c.Request().Context(), auth, upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": user, "message": "Profile updated successfully"})
}

// DiscoverUsers searches other users by username, email, name or location
func (h *UserHandler) DiscoverUsers(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}
	var req models.DiscoverUsersRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	users, err := h.users.Discover(c.Request().Context(), auth, req.Input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "users": users})
}

// DeleteUser deletes the authenticated user and their relationships
func (h *UserHandler) DeleteUser(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}

	if err := h.users.DeleteAccount(c.Request().Context(), auth); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Account deleted"})
}
