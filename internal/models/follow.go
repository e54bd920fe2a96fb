package models

import "time"

// Follow is a directed follow edge. A user's followers and following sets are
// both read from this table, so one row is visible from both sides.
type Follow struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	FollowerID  string    `json:"follower_id" gorm:"size:128;index;uniqueIndex:idx_follower_following"`
	FollowingID string    `json:"following_id" gorm:"size:128;index;uniqueIndex:idx_follower_following"`
	CreatedAt   time.Time `json:"created_at"`
}

// TargetRequest is the `{id}` body shared by follow, unfollow, connect and accept
type TargetRequest struct {
	ID string `json:"id" form:"id" validate:"required"`
}
