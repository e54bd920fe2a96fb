package services

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/anonto42/pingup/backend/internal/metrics"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/anonto42/pingup/backend/internal/repositories"
	"github.com/anonto42/pingup/backend/internal/scheduler"
	"go.uber.org/zap"
)

const (
	// ConnectionRequestLimit is how many requests one user may create per window
	ConnectionRequestLimit = 20
	// ConnectionRequestWindow is the rolling window for ConnectionRequestLimit
	ConnectionRequestWindow = 24 * time.Hour

	EventConnectionRequested = "connection.requested"
	EventConnectionReminder  = "connection.reminder"
)

// Result is an outcome that is not an error but still carries a message for
// the client, such as "already following".
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ConnectionEvent is the payload of the connection events
type ConnectionEvent struct {
	RequestID  uint   `json:"request_id"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
}

// Connections is everything the caller sees on their network page
type Connections struct {
	Followers          []models.UserSummary `json:"followers"`
	Following          []models.UserSummary `json:"following"`
	Connections        []models.UserSummary `json:"connections"`
	PendingConnections []models.UserSummary `json:"pendingConnections"`
}

// GraphService owns the follow and connection state machines
type GraphService struct {
	users     repositories.UserRepository
	follows   repositories.FollowRepository
	conns     repositories.ConnectionRepository
	notifier  *Notifier
	scheduler scheduler.Scheduler
	logger    *zap.Logger
	now       func() time.Time
}

// NewGraphService creates a GraphService
func NewGraphService(
	users repositories.UserRepository,
	follows repositories.FollowRepository,
	conns repositories.ConnectionRepository,
	notifier *Notifier,
	sched scheduler.Scheduler,
	logger *zap.Logger,
) *GraphService {
	return &GraphService{
		users:     users,
		follows:   follows,
		conns:     conns,
		notifier:  notifier,
		scheduler: sched,
		logger:    logger.Named("graph"),
		now:       time.Now,
	}
}

func (s *GraphService) requireTarget(ctx context.Context, auth models.AuthContext, targetID, selfMessage string) error {
	if targetID == "" {
		return apperrors.InvalidArgument("Target id required")
	}
	if targetID == auth.UserID {
		return apperrors.InvalidArgument(selfMessage)
	}
	if _, err := s.users.GetUserByID(ctx, targetID); err != nil {
		if repositories.IsNotFound(err) {
			return apperrors.NotFound("User")
		}
		return apperrors.Unavailable("storage", err)
	}
	return nil
}

// Follow makes the caller follow targetID
func (s *GraphService) Follow(ctx context.Context, auth models.AuthContext, targetID string) (Result, error) {
	if err := s.requireTarget(ctx, auth, targetID, "You cannot follow yourself"); err != nil {
		return Result{}, err
	}

	created, err := s.follows.Follow(ctx, auth.UserID, targetID)
	if err != nil {
		return Result{}, apperrors.Unavailable("storage", err)
	}
	if !created {
		return Result{Success: true, Message: "You are already following this user"}, nil
	}

	s.notifier.NotifyBestEffort(ctx, targetID, auth.UserID, models.NotificationFollow, nil)
	return Result{Success: true, Message: "Now you are following this user"}, nil
}

// Unfollow removes the follow edge, if there is one
func (s *GraphService) Unfollow(ctx context.Context, auth models.AuthContext, targetID string) (Result, error) {
	if targetID == "" {
		return Result{}, apperrors.InvalidArgument("Target id required")
	}
	if _, err := s.follows.Unfollow(ctx, auth.UserID, targetID); err != nil {
		return Result{}, apperrors.Unavailable("storage", err)
	}
	return Result{Success: true, Message: "You are no longer following this user"}, nil
}

// RequestConnection opens a pending connection request from the caller to targetID
func (s *GraphService) RequestConnection(ctx context.Context, auth models.AuthContext, targetID string) (Result, error) {
	if err := s.requireTarget(ctx, auth, targetID, "You cannot connect with yourself"); err != nil {
		return Result{}, err
	}

	now := s.now()
	req := &models.ConnectionRequest{FromUserID: auth.UserID, ToUserID: targetID, CreatedAt: now}
	err := s.conns.CreatePendingRequest(ctx, req, ConnectionRequestLimit, now.Add(-ConnectionRequestWindow))
	switch {
	case errors.Is(err, repositories.ErrRateLimited):
		metrics.ConnectionRequests.WithLabelValues("rate_limited").Inc()
		return Result{}, apperrors.RateLimited("You have sent more than 20 connection requests in the last 24 hours")
	case errors.Is(err, repositories.ErrRequestPending):
		metrics.ConnectionRequests.WithLabelValues("pending").Inc()
		return Result{Success: true, Message: "Connection request pending"}, nil
	case errors.Is(err, repositories.ErrAlreadyConnected):
		metrics.ConnectionRequests.WithLabelValues("connected").Inc()
		return Result{Success: true, Message: "You are already connected with this user"}, nil
	case repositories.IsNotFound(err):
		return Result{}, apperrors.NotFound("User")
	case err != nil:
		return Result{}, apperrors.Unavailable("storage", err)
	}
	metrics.ConnectionRequests.WithLabelValues("created").Inc()

	event := ConnectionEvent{RequestID: req.ID, FromUserID: auth.UserID, ToUserID: targetID}
	if err := s.scheduler.Schedule(ctx, EventConnectionRequested, event, 0); err != nil {
		s.logger.Warn("Failed to schedule connection event", zap.Uint("request_id", req.ID), zap.Error(err))
	}
	return Result{Success: true, Message: "Connection request sent successfully"}, nil
}

// AcceptConnection accepts the pending request requesterID sent to the caller
func (s *GraphService) AcceptConnection(ctx context.Context, auth models.AuthContext, requesterID string) (Result, error) {
	if requesterID == "" {
		return Result{}, apperrors.InvalidArgument("Target id required")
	}

	_, err := s.conns.AcceptRequest(ctx, requesterID, auth.UserID)
	if repositories.IsNotFound(err) {
		return Result{Success: false, Message: "Connection request not found"}, nil
	}
	if err != nil {
		return Result{}, apperrors.Unavailable("storage", err)
	}
	return Result{Success: true, Message: "Connection accepted successfully"}, nil
}

// ListConnections materializes the caller's followers, following, connections
// and incoming pending requests
func (s *GraphService) ListConnections(ctx context.Context, auth models.AuthContext) (*Connections, error) {
	followers, err := s.follows.GetFollowers(ctx, auth.UserID)
	if err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}
	following, err := s.follows.GetFollowing(ctx, auth.UserID)
	if err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}
	connections, err := s.conns.GetConnections(ctx, auth.UserID)
	if err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}
	pending, err := s.conns.GetPendingRequesters(ctx, auth.UserID)
	if err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}

	now := s.now()
	return &Connections{
		Followers:          models.Summaries(followers, now),
		Following:          models.Summaries(following, now),
		Connections:        models.Summaries(connections, now),
		PendingConnections: models.Summaries(pending, now),
	}, nil
}

// HandleConnectionRequested notifies the recipient and books a reminder
func (s *GraphService) HandleConnectionRequested(ctx context.Context, job *scheduler.Job) error {
	var ev ConnectionEvent
	if err := job.Decode(&ev); err != nil {
		return err
	}
	if err := s.notifier.Notify(ctx, ev.ToUserID, ev.FromUserID, models.NotificationConnection, map[string]any{
		"requestId": ev.RequestID,
		"status":    models.ConnectionStatusPending,
	}); err != nil {
		return err
	}
	return s.scheduler.Schedule(ctx, EventConnectionReminder, ev, ConnectionRequestWindow)
}

// HandleConnectionReminder re-notifies the recipient if the request is still pending
func (s *GraphService) HandleConnectionReminder(ctx context.Context, job *scheduler.Job) error {
	var ev ConnectionEvent
	if err := job.Decode(&ev); err != nil {
		return err
	}
	_, err := s.conns.GetPendingRequest(ctx, ev.FromUserID, ev.ToUserID)
	if repositories.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.notifier.Notify(ctx, ev.ToUserID, ev.FromUserID, models.NotificationConnection, map[string]any{
		"requestId": ev.RequestID,
		"status":    models.ConnectionStatusPending,
		"reminder":  true,
	})
}
