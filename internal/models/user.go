package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// User is a PingUp account. ID is issued by the identity provider.
type User struct {
	ID               string     `json:"_id" gorm:"primaryKey;size:128"`
	Email            string     `json:"email" gorm:"index"`
	FullName         string     `json:"full_name"`
	Username         string     `json:"username" gorm:"uniqueIndex;size:64"`
	Bio              string     `json:"bio"`
	ProfilePicture   string     `json:"profile_picture"`
	CoverPhoto       string     `json:"cover_photo"`
	Location         string     `json:"location"`
	FollowersCount   int64      `json:"followers_count" gorm:"not null;default:0"`
	FollowingCount   int64      `json:"following_count" gorm:"not null;default:0"`
	ConnectionsCount int64      `json:"connections_count" gorm:"not null;default:0"`
	LastActiveAt     *time.Time `json:"lastActiveAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// DefaultBio is given to accounts created on first sign-in
const DefaultBio = "Hey there! I am using PingUp."

// UserSummary is the compact user shape embedded in lists
type UserSummary struct {
	ID             string `json:"_id"`
	FullName       string `json:"full_name"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
	Bio            string `json:"bio"`
	IsOnline       bool   `json:"isOnline"`
}

// ToSummary projects the user, deriving isOnline at now
func (u *User) ToSummary(now time.Time) UserSummary {
	return UserSummary{
		ID:             u.ID,
		FullName:       u.FullName,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
		Bio:            u.Bio,
		IsOnline:       IsOnline(u.LastActiveAt, now),
	}
}

// Summaries projects a slice of users
func Summaries(users []User, now time.Time) []UserSummary {
	out := make([]UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToSummary(now))
	}
	return out
}

// UserProfile is a full user document plus the derived presence flag
type UserProfile struct {
	User
	IsOnline bool `json:"isOnline"`
}

// ToProfile wraps the user with its derived presence flag
func (u *User) ToProfile(now time.Time) UserProfile {
	return UserProfile{User: *u, IsOnline: IsOnline(u.LastActiveAt, now)}
}

// UpdateUserRequest defines the request body for updating the caller's profile.
// Empty fields are left unchanged.
type UpdateUserRequest struct {
	Username string `json:"username" form:"username" validate:"omitempty,min=3,max=30,alphanumunicode"`
	FullName string `json:"full_name" form:"full_name" validate:"omitempty,min=1,max=100"`
	Bio      string `json:"bio" form:"bio" validate:"omitempty,max=300"`
	Location string `json:"location" form:"location" validate:"omitempty,max=100"`
}

// DiscoverUsersRequest defines the request body for user discovery
type DiscoverUsersRequest struct {
	Input string `json:"input" form:"input"`
}

// ProfileRequest defines the request body for fetching another user's profile
type ProfileRequest struct {
	ProfileID string `json:"profileId" form:"profileId" validate:"required"`
}

// IdentityProfile is what the identity provider tells us about a signed-in user
type IdentityProfile struct {
	UID            string
	Email          string
	FullName       string
	ProfilePicture string
}

// AuthContext carries the verified caller identity into every core call
type AuthContext struct {
	UserID string
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
