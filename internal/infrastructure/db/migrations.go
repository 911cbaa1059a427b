package db

import (
	"github.com/codefix/backend/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Task{},
		&domain.StageState{},
	); err != nil {
		return err
	}

	// One stage row per (task, stage name).
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_stage_states_task_name
		ON stage_states (task_id, name)
	`).Error
}
