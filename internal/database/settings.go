package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsStore persists user overrides in the settings table and serves
// them as a settings.Provider.
type SettingsStore struct {
	db *gorm.DB
}

// NewSettingsStore creates a store on db
func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Set stores value under key, replacing any previous value
func (s *SettingsStore) Set(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("setting key cannot be empty")
	}

	row := Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SettingsStore) Delete(key string) error {
	if err := s.db.Delete(&Setting{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// All returns every stored setting ordered by key
func (s *SettingsStore) All() ([]Setting, error) {
	var rows []Setting
	if err := s.db.Order("key ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return rows, nil
}

func (s *SettingsStore) lookup(key string) (string, bool) {
	if s == nil || s.db == nil {
		return "", false
	}
	var row Setting
	err := s.db.Where("key = ?", key).First(&row).Error
	if err != nil {
		return "", false
	}
	return row.Value, true
}

// Has implements settings.Lookup
func (s *SettingsStore) Has(key string) bool {
	_, ok := s.lookup(key)
	return ok
}

// GetInt implements settings.Provider
func (s *SettingsStore) GetInt(key string, def int) int {
	raw, ok := s.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return n
}

// GetBool implements settings.Provider
func (s *SettingsStore) GetBool(key string, def bool) bool {
	raw, ok := s.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return b
}

// GetString implements settings.Provider
func (s *SettingsStore) GetString(key string, def string) string {
	raw, ok := s.lookup(key)
	if !ok {
		return def
	}
	return raw
}

// IsNotFound reports whether err is gorm's record-not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
