package database

import (
	"time"

	"gorm.io/gorm"
)

// Setting represents a key-value store for application settings
type Setting struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName overrides the table name
func (Setting) TableName() string {
	return "settings"
}

// Download is the persisted state of a queue item. Rows are upserted as
// the item progresses so an interrupted session leaves a trace.
type Download struct {
	ID          string     `gorm:"primaryKey"`
	URL         string     `gorm:"not null"`
	Title       string     `gorm:""`
	Status      string     `gorm:"not null;index"` // pending, running, completed, failed, cancelled
	Progress    float64    `gorm:"default:0.0"`
	Speed       int64      `gorm:"default:0"` // bytes/sec
	Error       string     `gorm:""`
	FilePath    string     `gorm:""`
	CreatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	StartedAt   *time.Time `gorm:""`
	CompletedAt *time.Time `gorm:""`
}

// TableName overrides the table name
func (Download) TableName() string {
	return "downloads"
}

// History is one successfully finished download
type History struct {
	ID           uint      `gorm:"primaryKey"`
	DownloadID   string    `gorm:"not null;uniqueIndex"`
	URL          string    `gorm:"not null;index"`
	VideoID      string    `gorm:"index"`
	Title        string    `gorm:"not null"`
	Uploader     string    `gorm:""`
	Duration     float64   `gorm:"default:0"` // seconds
	FilePath     string    `gorm:""`
	IsAudio      bool      `gorm:"default:false"`
	PresetHeight int       `gorm:"default:0"`
	Metadata     string    `gorm:"type:text"` // info JSON as returned by yt-dlp, may be empty
	DownloadedAt time.Time `gorm:"index;default:CURRENT_TIMESTAMP"`
}

// TableName overrides the table name
func (History) TableName() string {
	return "history"
}

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Setting{},
		&Download{},
		&History{},
	)
}
