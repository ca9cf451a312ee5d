package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/models"
)

// Migrate creates or updates the results schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Exam{},
		&models.Enrollment{},
		&models.ExamResult{},
		&models.Attempt{},
		&models.ResultItem{},
		&models.EditState{},
		&models.ActivityLog{},
		&models.PDFJob{},
	); err != nil {
		return fmt.Errorf("failed to migrate results schema: %w", err)
	}

	return nil
}
