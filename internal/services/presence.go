package services

import (
	"context"
	"time"

	"github.com/anonto42/pingup/backend/internal/metrics"
	"github.com/anonto42/pingup/backend/internal/repositories"
	"go.uber.org/zap"
)

// Presence records user activity. Online status itself is derived at read time
// by models.IsOnline.
type Presence struct {
	users   repositories.UserRepository
	logger  *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewPresence creates a Presence tracker
func NewPresence(users repositories.UserRepository, logger *zap.Logger) *Presence {
	return &Presence{
		users:   users,
		logger:  logger.Named("presence"),
		now:     time.Now,
		timeout: 2 * time.Second,
	}
}

// Touch stamps userID as active now. Failures are logged, never returned.
func (p *Presence) Touch(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.users.TouchLastActive(ctx, userID, p.now()); err != nil {
		metrics.PresenceFailures.Inc()
		p.logger.Warn("Failed to update last active", zap.String("user_id", userID), zap.Error(err))
	}
}

// TouchAsync runs Touch in the background, detached from the request
func (p *Presence) TouchAsync(userID string) {
	go p.Touch(context.Background(), userID)
}
