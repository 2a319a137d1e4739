// Package history records finished downloads and the last known state of
// queue items in the database.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/justchokingaround/reel/internal/database"
	"github.com/justchokingaround/reel/internal/ytdlp"
)

// Service provides history management functionality
type Service struct {
	db *gorm.DB
}

// SortOrder defines the sorting order for history items
type SortOrder string

const (
	SortRecentFirst SortOrder = "recent_first"
	SortOldestFirst SortOrder = "oldest_first"
	SortTitleAsc    SortOrder = "title_asc"
	SortTitleDesc   SortOrder = "title_desc"
)

// FilterOptions defines filtering options for history queries
type FilterOptions struct {
	SearchQuery string    // Search in title and URL
	AudioOnly   *bool     // nil = both
	StartDate   time.Time // Filter by date range
	EndDate     time.Time
	Limit       int // Limit results (0 = no limit)
	Offset      int
	SortBy      SortOrder
}

// Entry is what the queue hands over when a download succeeds
type Entry struct {
	DownloadID   string
	URL          string
	Title        string
	Metadata     *ytdlp.VideoMetadata // optional
	OutputPath   string
	IsAudio      bool
	PresetHeight int
	DownloadedAt time.Time
}

// Item is a stored history record
type Item struct {
	ID           uint
	DownloadID   string
	URL          string
	VideoID      string
	Title        string
	Uploader     string
	Duration     time.Duration
	FilePath     string
	IsAudio      bool
	PresetHeight int
	DownloadedAt time.Time
}

// State is the persisted snapshot of a queue item
type State struct {
	ID          string
	URL         string
	Title       string
	Status      string
	Progress    float64
	Speed       int64
	Error       string
	FilePath    string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Stats summarises the history table
type Stats struct {
	TotalItems    int64
	AudioCount    int64
	VideoCount    int64
	TotalDuration time.Duration
}

// NewService creates a new history service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Add records a finished download. Adding the same download twice keeps
// the latest values.
func (s *Service) Add(ctx context.Context, e Entry) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if e.DownloadID == "" {
		return fmt.Errorf("history entry needs a download id")
	}

	record := database.History{
		DownloadID:   e.DownloadID,
		URL:          e.URL,
		Title:        e.Title,
		FilePath:     e.OutputPath,
		IsAudio:      e.IsAudio,
		PresetHeight: e.PresetHeight,
		DownloadedAt: e.DownloadedAt,
	}
	if record.DownloadedAt.IsZero() {
		record.DownloadedAt = time.Now()
	}

	if m := e.Metadata; m != nil {
		record.VideoID = m.ID
		record.Uploader = m.Uploader
		record.Duration = m.Duration
		if record.Title == "" {
			record.Title = m.Title
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		record.Metadata = string(raw)
	}
	if record.Title == "" {
		record.Title = e.URL
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "download_id"}},
		UpdateAll: true,
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to add history: %w", err)
	}
	return nil
}

// List retrieves history items with filtering and sorting
func (s *Service) List(ctx context.Context, filter FilterOptions) ([]Item, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := s.db.WithContext(ctx).Model(&database.History{})

	if q := strings.TrimSpace(filter.SearchQuery); q != "" {
		like := "%" + q + "%"
		query = query.Where("title LIKE ? OR url LIKE ?", like, like)
	}
	if filter.AudioOnly != nil {
		query = query.Where("is_audio = ?", *filter.AudioOnly)
	}
	if !filter.StartDate.IsZero() {
		query = query.Where("downloaded_at >= ?", filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query = query.Where("downloaded_at <= ?", filter.EndDate)
	}

	switch filter.SortBy {
	case SortOldestFirst:
		query = query.Order("downloaded_at ASC")
	case SortTitleAsc:
		query = query.Order("title ASC")
	case SortTitleDesc:
		query = query.Order("title DESC")
	default: // SortRecentFirst
		query = query.Order("downloaded_at DESC")
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []database.History
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	items := make([]Item, len(records))
	for i, record := range records {
		items[i] = toItem(record)
	}
	return items, nil
}

// Get retrieves one history item by id
func (s *Service) Get(ctx context.Context, id uint) (*Item, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var record database.History
	if err := s.db.WithContext(ctx).First(&record, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, fmt.Errorf("history item %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to fetch history item: %w", err)
	}

	item := toItem(record)
	return &item, nil
}

// Metadata returns the stored info JSON of a history item, or nil
func (s *Service) Metadata(ctx context.Context, id uint) (*ytdlp.VideoMetadata, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var record database.History
	if err := s.db.WithContext(ctx).Select("metadata").First(&record, id).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch history item: %w", err)
	}
	if record.Metadata == "" {
		return nil, nil
	}
	return ytdlp.ParseMetadata([]byte(record.Metadata))
}

// Delete removes a history item by id
func (s *Service) Delete(ctx context.Context, id uint) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.WithContext(ctx).Delete(&database.History{}, id).Error
}

// Clear removes all history items and returns how many were deleted
func (s *Service) Clear(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}
	res := s.db.WithContext(ctx).Where("1 = 1").Delete(&database.History{})
	return res.RowsAffected, res.Error
}

// GetStats retrieves history statistics
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	db := s.db.WithContext(ctx)
	var stats Stats

	if err := db.Model(&database.History{}).Count(&stats.TotalItems).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&database.History{}).Where("is_audio = ?", true).Count(&stats.AudioCount).Error; err != nil {
		return nil, err
	}
	stats.VideoCount = stats.TotalItems - stats.AudioCount

	var seconds float64
	if err := db.Model(&database.History{}).Select("COALESCE(SUM(duration), 0)").Scan(&seconds).Error; err != nil {
		return nil, err
	}
	stats.TotalDuration = time.Duration(seconds * float64(time.Second))

	return &stats, nil
}

// SaveState upserts the snapshot of a queue item
func (s *Service) SaveState(ctx context.Context, st State) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	row := database.Download{
		ID:          st.ID,
		URL:         st.URL,
		Title:       st.Title,
		Status:      st.Status,
		Progress:    st.Progress,
		Speed:       st.Speed,
		Error:       st.Error,
		FilePath:    st.FilePath,
		CreatedAt:   st.CreatedAt,
		UpdatedAt:   time.Now(),
		StartedAt:   st.StartedAt,
		CompletedAt: st.CompletedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = row.UpdatedAt
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "status", "progress", "speed", "error", "file_path", "updated_at", "started_at", "completed_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save download state: %w", err)
	}
	return nil
}

// States returns persisted queue snapshots, newest first. An empty status
// returns all of them.
func (s *Service) States(ctx context.Context, status string) ([]State, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var rows []database.Download
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch download states: %w", err)
	}

	states := make([]State, len(rows))
	for i, r := range rows {
		states[i] = State{
			ID:          r.ID,
			URL:         r.URL,
			Title:       r.Title,
			Status:      r.Status,
			Progress:    r.Progress,
			Speed:       r.Speed,
			Error:       r.Error,
			FilePath:    r.FilePath,
			CreatedAt:   r.CreatedAt,
			StartedAt:   r.StartedAt,
			CompletedAt: r.CompletedAt,
		}
	}
	return states, nil
}

func toItem(record database.History) Item {
	return Item{
		ID:           record.ID,
		DownloadID:   record.DownloadID,
		URL:          record.URL,
		VideoID:      record.VideoID,
		Title:        record.Title,
		Uploader:     record.Uploader,
		Duration:     time.Duration(record.Duration * float64(time.Second)),
		FilePath:     record.FilePath,
		IsAudio:      record.IsAudio,
		PresetHeight: record.PresetHeight,
		DownloadedAt: record.DownloadedAt,
	}
}
