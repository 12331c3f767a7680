package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: University must be migrated first as other models depend on it
func AllModels() []interface{} {
	return []interface{}{
		&University{},
		&Department{},
		&User{},
		&Complaint{},
		&ComplaintAssignment{},
		&Message{},
		&Activity{},
		&Notification{},
		&Attachment{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
