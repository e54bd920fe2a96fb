package handlers

import (
	"net/http"

	"github.com/anonto42/pingup/backend/internal/middleware"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/anonto42/pingup/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// GraphHandler handles follow and connection HTTP requests
type GraphHandler struct {
	graph *services.GraphService
}

// NewGraphHandler creates a new GraphHandler
func NewGraphHandler(graph *services.GraphService) *GraphHandler {
	return &GraphHandler{graph: graph}
}

// RegisterGraphRoutes registers follow and connection routes
func (h *GraphHandler) RegisterGraphRoutes(g *echo.Group) {
	g.POST("/user/follow", h.Follow)
	g.POST("/user/unfollow", h.Unfollow)
	g.POST("/user/connect", h.Connect)
	g.POST("/user/accept", h.Accept)
	g.GET("/user/connections", h.Connections)
}

type graphAction func(*services.GraphService, echo.Context, models.AuthContext, string) (services.Result, error)

// target runs an {id} action and renders its Result
func (h *GraphHandler) target(c echo.Context, action graphAction) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}
	var req models.TargetRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := action(h.graph, c, auth, req.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Follow follows the user in the body
func (h *GraphHandler) Follow(c echo.Context) error {
	return h.target(c, func(s *services.GraphService, c echo.Context, auth models.AuthContext, id string) (services.Result, error) {
		return s.Follow(c.Request().Context(), auth, id)
	})
}

// Unfollow unfollows the user in the body
func (h *GraphHandler) Unfollow(c echo.Context) error {
	return h.target(c, func(s *services.GraphService, c echo.Context, auth models.AuthContext, id string) (services.Result, error) {
		return s.Unfollow(c.Request().Context(), auth, id)
	})
}

// Connect sends a connection request
func (h *GraphHandler) Connect(c echo.Context) error {
	return h.target(c, func(s *services.GraphService, c echo.Context, auth models.AuthContext, id string) (services.Result, error) {
		return s.RequestConnection(c.Request().Context(), auth, id)
	})
}

// Accept accepts the pending request sent by the user in the body
func (h *GraphHandler) Accept(c echo.Context) error {
	return h.target(c, func(s *services.GraphService, c echo.Context, auth models.AuthContext, id string) (services.Result, error) {
		return s.AcceptConnection(c.Request().Context(), auth, id)
	})
}

// Connections lists followers, following, connections and pending requests
func (h *GraphHandler) Connections(c echo.Context) error {
	auth, err := middleware.Auth(c)
	if err != nil {
		return err
	}

	conns, err := h.graph.ListConnections(c.Request().Context(), auth)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":            true,
		"followers":          conns.Followers,
		"following":          conns.Following,
		"connections":        conns.Connections,
		"pendingConnections": conns.PendingConnections,
	})
}
