package models

import "time"

const (
	ConnectionStatusPending  = "pending"
	ConnectionStatusAccepted = "accepted"
)

// ConnectionRequest is a mutual-connection proposal. PairKey is unique, so at
// most one request exists per unordered pair, whichever side sent it.
type ConnectionRequest struct {
	ID         uint      `json:"_id" gorm:"primaryKey"`
	FromUserID string    `json:"from_user_id" gorm:"size:128;index:idx_from_created"`
	ToUserID   string    `json:"to_user_id" gorm:"size:128;index"`
	PairKey    string    `json:"-" gorm:"size:260;uniqueIndex"`
	Status     string    `json:"status" gorm:"size:20;default:'pending';index"`
	CreatedAt  time.Time `json:"created_at" gorm:"index:idx_from_created"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Connection is an accepted, symmetric relationship stored once per pair with
// UserA < UserB.
type Connection struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserA     string    `json:"user_a" gorm:"size:128;index;uniqueIndex:idx_connection_pair"`
	UserB     string    `json:"user_b" gorm:"size:128;index;uniqueIndex:idx_connection_pair"`
	CreatedAt time.Time `json:"created_at"`
}

// NewConnection builds a connection row in canonical order
func NewConnection(x, y string) Connection {
	a, b := CanonicalPair(x, y)
	return Connection{UserA: a, UserB: b}
}

// CanonicalPair orders two user ids so the smaller comes first
func CanonicalPair(x, y string) (string, string) {
	if x > y {
		return y, x
	}
	return x, y
}

// PairKey identifies the unordered pair {x, y}
func PairKey(x, y string) string {
	a, b := CanonicalPair(x, y)
	return a + ":" + b
}
