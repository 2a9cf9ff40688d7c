// Package history persists a ledger of finished transfers so operators
// can see what landed in the upload root and what was abandoned.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Transfer is one finished upload, completed or cancelled.
type Transfer struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UploadID  string    `gorm:"index" json:"uploadId"`
	Name      string    `json:"filename"`
	Path      string    `json:"-"`
	Size      uint64    `json:"size"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ledger wraps the SQLite-backed transfer history.
type Ledger struct {
	db *gorm.DB
}

// Open opens (or creates) the ledger database at path and runs
// migrations.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	if err := db.AutoMigrate(&Transfer{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger database: %w", err)
	}

	log.Info().Str("path", path).Msg("transfer ledger opened")
	return &Ledger{db: db}, nil
}

// RecordTransfer inserts a finished transfer. Failures are logged and
// swallowed: the ledger must never fail an upload.
func (l *Ledger) RecordTransfer(uploadID, name, path string, size uint64, status string) {
	t := Transfer{
		UploadID: uploadID,
		Name:     name,
		Path:     path,
		Size:     size,
		Status:   status,
	}
	if err := l.db.Create(&t).Error; err != nil {
		log.Error().Err(err).
			Str("upload_id", uploadID).
			Str("filename", name).
			Msg("failed to record transfer")
	}
}

// Recent returns the newest transfers, most recent first.
func (l *Ledger) Recent(limit int) ([]Transfer, error) {
	var transfers []Transfer
	if err := l.db.Order("id desc").Limit(limit).Find(&transfers).Error; err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return transfers, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
