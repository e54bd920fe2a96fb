package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	NotificationFollow     = "follow"
	NotificationComment    = "comment"
	NotificationLike       = "like"
	NotificationShare      = "share"
	NotificationConnection = "connection"
)

// ValidNotificationType reports whether t is a known notification type
func ValidNotificationType(t string) bool {
	switch t {
	case NotificationFollow, NotificationComment, NotificationLike, NotificationShare, NotificationConnection:
		return true
	}
	return false
}

// Notification is stored in MongoDB. Actor is frozen at creation time.
type Notification struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	User      string             `json:"user" bson:"user"`
	Actor     ActorSnapshot      `json:"actor" bson:"actor"`
	Type      string             `json:"type" bson:"type"`
	Data      bson.M             `json:"data,omitempty" bson:"data,omitempty"`
	Read      bool               `json:"read" bson:"read"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// ActorSnapshot holds the actor's display fields at the time of the action
type ActorSnapshot struct {
	ID       string `json:"_id" bson:"_id"`
	FullName string `json:"full_name" bson:"full_name"`
	Avatar   string `json:"avatar" bson:"avatar"`
	Username string `json:"username" bson:"username"`
}

// SnapshotOf freezes the display fields of u
func SnapshotOf(u *User) ActorSnapshot {
	return ActorSnapshot{
		ID:       u.ID,
		FullName: u.FullName,
		Avatar:   u.ProfilePicture,
		Username: u.Username,
	}
}

// GroupedNotifications buckets notifications by calendar day in the viewer's zone
type GroupedNotifications struct {
	Today     []Notification `json:"today"`
	Yesterday []Notification `json:"yesterday"`
	ThisWeek  []Notification `json:"thisWeek"`
	Earlier   []Notification `json:"earlier"`
}

// GroupByDay buckets notifications (already newest first) relative to now in loc
func GroupByDay(notifications []Notification, now time.Time, loc *time.Location) GroupedNotifications {
	now = now.In(loc)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	weekStart := todayStart.AddDate(0, 0, -7)

	g := GroupedNotifications{
		Today:     []Notification{},
		Yesterday: []Notification{},
		ThisWeek:  []Notification{},
		Earlier:   []Notification{},
	}
	for _, n := range notifications {
		at := n.CreatedAt.In(loc)
		switch {
		case !at.Before(todayStart):
			g.Today = append(g.Today, n)
		case !at.Before(yesterdayStart):
			g.Yesterday = append(g.Yesterday, n)
		case !at.Before(weekStart):
			g.ThisWeek = append(g.ThisWeek, n)
		default:
			g.Earlier = append(g.Earlier, n)
		}
	}
	return g
}
