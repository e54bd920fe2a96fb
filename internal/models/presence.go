package models

import "time"

// OnlineWindow is how long after the last activity a user still counts as online
const OnlineWindow = 2 * time.Minute

// IsOnline reports whether a user last active at lastActiveAt is online at now.
// It is derived at read time and never persisted.
func IsOnline(lastActiveAt *time.Time, now time.Time) bool {
	if lastActiveAt == nil {
		return false
	}
	return now.Sub(*lastActiveAt) <= OnlineWindow
}
