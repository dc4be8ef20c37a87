package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lattice-auth/userstore/internal/model"
)

const migrationBackfillUserTimestamps = "2026-06-18_backfill_user_timestamps"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillUserTimestamps, apply: backfillUserTimestamps},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written before the timestamp columns existed carry zero values; stamp
// them so ordering and audit queries stay meaningful.
func backfillUserTimestamps(db *gorm.DB) error {
	now := time.Now().UTC()
	err := db.Model(&model.User{}).
		Where("created_at IS NULL OR created_at = ?", time.Time{}).
		Update("created_at", now).Error
	if err != nil {
		return err
	}
	return db.Model(&model.User{}).
		Where("updated_at IS NULL OR updated_at = ?", time.Time{}).
		Update("updated_at", now).Error
}
