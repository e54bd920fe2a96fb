package models

import "gorm.io/gorm"

// AutoMigrate creates or updates the relational schema. Notifications live in
// Mongo and are not part of it.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Follow{},
		&ConnectionRequest{},
		&Connection{},
		&Message{},
	)
}
