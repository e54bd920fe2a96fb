package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/pingup/backend/internal/cache"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/anonto42/pingup/backend/internal/repositories"
	"github.com/anonto42/pingup/backend/internal/scheduler"
	"github.com/anonto42/pingup/backend/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recordingScheduler remembers every scheduled event
type recordingScheduler struct {
	mu     sync.Mutex
	events []string
	delays []time.Duration
	err    error
}

func (r *recordingScheduler) Schedule(_ context.Context, event string, _ any, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	r.delays = append(r.delays, delay)
	return nil
}

var errBoom = errors.New("boom")

type env struct {
	db            *gorm.DB
	users         *repositories.PostgresUserRepository
	follows       *repositories.PostgresFollowRepository
	conns         *repositories.PostgresConnectionRepository
	messages      *repositories.PostgresMessageRepository
	notifications *testutil.MemoryNotifications
	sched         *recordingScheduler
	uploader      *testutil.FakeUploader
	clock         *testutil.Clock
	notifier      *Notifier
	graph         *GraphService
	messaging     *MessagingService
	userSvc       *UserService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithCache(t, cache.NoopUnreadCache{})
}

func newEnvWithCache(t *testing.T, unread cache.UnreadCache) *env {
	t.Helper()
	db := testutil.NewDB(t)
	e := &env{
		db:            db,
		users:         repositories.NewPostgresUserRepository(db),
		follows:       repositories.NewPostgresFollowRepository(db),
		conns:         repositories.NewPostgresConnectionRepository(db),
		messages:      repositories.NewPostgresMessageRepository(db),
		notifications: &testutil.MemoryNotifications{},
		sched:         &recordingScheduler{},
		uploader:      &testutil.FakeUploader{},
		clock:         &testutil.Clock{T: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
	}
	log := zap.NewNop()

	e.notifier = NewNotifier(e.notifications, e.users, log)
	e.notifier.now = e.clock.Now
	e.graph = NewGraphService(e.users, e.follows, e.conns, e.notifier, e.sched, log)
	e.graph.now = e.clock.Now
	e.messaging = NewMessagingService(e.messages, e.users, unread, e.uploader, log)
	e.messaging.now = e.clock.Now
	e.userSvc = NewUserService(e.users, e.notifications, unread, e.uploader, log)
	e.userSvc.now = e.clock.Now
	return e
}

func as(u *models.User) models.AuthContext {
	return models.AuthContext{UserID: u.ID}
}

var _ scheduler.Scheduler = (*recordingScheduler)(nil)
