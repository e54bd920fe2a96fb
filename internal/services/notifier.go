package services

import (
	"context"
	"time"

	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/anonto42/pingup/backend/internal/metrics"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/anonto42/pingup/backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// NotificationListLimit caps every notification read
const NotificationListLimit = 50

// Notifier writes and reads notifications
type Notifier struct {
	repo   repositories.NotificationRepository
	users  repositories.UserRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewNotifier creates a Notifier
func NewNotifier(repo repositories.NotificationRepository, users repositories.UserRepository, logger *zap.Logger) *Notifier {
	return &Notifier{repo: repo, users: users, logger: logger.Named("notifier"), now: time.Now}
}

// Notify records that actorID did typ to recipientID. The actor's display
// fields are copied into the record, so later profile edits do not change it.
// Acting on yourself is a silent no-op.
func (n *Notifier) Notify(ctx context.Context, recipientID, actorID, typ string, data bson.M) error {
	if recipientID == actorID {
		return nil
	}
	if !models.ValidNotificationType(typ) {
		return apperrors.InvalidArgument("unknown notification type")
	}

	actor, err := n.users.GetUserByID(ctx, actorID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return apperrors.NotFound("User")
		}
		return apperrors.Unavailable("storage", err)
	}

	notification := &models.Notification{
		User:      recipientID,
		Actor:     models.SnapshotOf(actor),
		Type:      typ,
		Data:      data,
		CreatedAt: n.now(),
	}
	if err := n.repo.Create(ctx, notification); err != nil {
		return apperrors.Unavailable("notifications", err)
	}
	return nil
}

// NotifyBestEffort calls Notify and only logs a failure
func (n *Notifier) NotifyBestEffort(ctx context.Context, recipientID, actorID, typ string, data bson.M) {
	if err := n.Notify(ctx, recipientID, actorID, typ, data); err != nil {
		metrics.NotificationFailures.Inc()
		n.logger.Warn("Failed to create notification",
			zap.String("type", typ),
			zap.String("recipient_id", recipientID),
			zap.String("actor_id", actorID),
			zap.Error(err),
		)
	}
}

// List returns the caller's newest notifications
func (n *Notifier) List(ctx context.Context, auth models.AuthContext) ([]models.Notification, error) {
	notifications, err := n.repo.ListByRecipient(ctx, auth.UserID, NotificationListLimit)
	if err != nil {
		return nil, apperrors.Unavailable("notifications", err)
	}
	return notifications, nil
}

// Grouped buckets the newest notifications by calendar day in loc
func (n *Notifier) Grouped(ctx context.Context, auth models.AuthContext, loc *time.Location) (models.GroupedNotifications, int64, error) {
	notifications, err := n.List(ctx, auth)
	if err != nil {
		return models.GroupedNotifications{}, 0, err
	}
	unread, err := n.UnreadCount(ctx, auth)
	if err != nil {
		return models.GroupedNotifications{}, 0, err
	}
	return models.GroupByDay(notifications, n.now(), loc), unread, nil
}

// MarkRead marks one of the caller's notifications read. Ids that are unknown or
// belong to someone else succeed without effect.
func (n *Notifier) MarkRead(ctx context.Context, auth models.AuthContext, notificationID string) error {
	if err := n.repo.MarkAsRead(ctx, auth.UserID, notificationID); err != nil {
		return apperrors.Unavailable("notifications", err)
	}
	return nil
}

func (n *Notifier) MarkAllRead(ctx context.Context, auth models.AuthContext) error {
	if err := n.repo.MarkAllAsRead(ctx, auth.UserID); err != nil {
		return apperrors.Unavailable("notifications", err)
	}
	return nil
}

func (n *Notifier) UnreadCount(ctx context.Context, auth models.AuthContext) (int64, error) {
	count, err := n.repo.UnreadCount(ctx, auth.UserID)
	if err != nil {
		return 0, apperrors.Unavailable("notifications", err)
	}
	return count, nil
}
