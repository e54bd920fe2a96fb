package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/anonto42/pingup/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryNotifications is an in-process notification store. Setting Err makes
// every Create fail.
type MemoryNotifications struct {
	mu    sync.Mutex
	items []models.Notification
	Err   error
}

func (m *MemoryNotifications) Create(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	n.ID = primitive.NewObjectID()
	m.items = append(m.items, *n)
	return nil
}

func (m *MemoryNotifications) ListByRecipient(_ context.Context, userID string, limit int64) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Notification{}
	for _, n := range m.items {
		if n.User == userID {
			out = append(out, n)
		}
	}
	// newest first, insertion order breaks ties
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryNotifications) MarkAsRead(_ context.Context, userID, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID.Hex() == notificationID && m.items[i].User == userID {
			m.items[i].Read = true
		}
	}
	return nil
}

func (m *MemoryNotifications) MarkAllAsRead(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].User == userID {
			m.items[i].Read = true
		}
	}
	return nil
}

func (m *MemoryNotifications) UnreadCount(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, it := range m.items {
		if it.User == userID && !it.Read {
			n++
		}
	}
	return n, nil
}

func (m *MemoryNotifications) DeleteForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	for _, it := range m.items {
		if it.User != userID {
			kept = append(kept, it)
		}
	}
	m.items = kept
	return nil
}

// ForUser returns everything stored for userID, newest first
func (m *MemoryNotifications) ForUser(userID string) []models.Notification {
	out, _ := m.ListByRecipient(context.Background(), userID, 1000)
	return out
}

// FakeUploader returns https://cdn.example.com/{kind}/{user}/{filename}
type FakeUploader struct {
	mu    sync.Mutex
	Err   error
	Calls int
}

func (f *FakeUploader) UploadImage(_ context.Context, _ []byte, userID, kind, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return "", f.Err
	}
	return "https://cdn.example.com/" + kind + "/" + userID + "/" + filename, nil
}
