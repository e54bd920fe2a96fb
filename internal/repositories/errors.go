package repositories

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the referenced record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrRequestPending is returned when a pending request already exists for the pair
	ErrRequestPending = errors.New("connection request pending")
	// ErrAlreadyConnected is returned when the pair is already connected
	ErrAlreadyConnected = errors.New("already connected")
	// ErrRateLimited is returned when the sender exceeded the request quota
	ErrRateLimited = errors.New("connection request quota exceeded")
	// ErrUsernameTaken is returned when an update hits the username unique index
	ErrUsernameTaken = errors.New("username taken")
)

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
