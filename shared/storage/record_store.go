package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"velocity-scout/internal/models"
)

// Table names a logical table of the record store.
type Table string

const (
	TableSettings   Table = "settings"
	TableDiscovered Table = "analyzed_videos"
	TableExcluded   Table = "excluded_videos"
	TableAPIKeys    Table = "api_keys"
)

// Well-known settings keys.
const (
	SettingAuthToken       = "google_auth_token"
	SettingCredentialsPath = "credentials_path"
	SettingSyncEnabled     = "sync_enabled"
)

var (
	ErrUnknownTable    = errors.New("unknown table")
	ErrDuplicateAPIKey = errors.New("api key alias or value already exists")
)

type setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (setting) TableName() string { return string(TableSettings) }

type analyzedVideo struct {
	ID            string `gorm:"primaryKey"`
	Title         string
	Channel       string
	UploadDate    string
	Views         int64
	Subscribers   int64
	Duration      int
	ViewVelocity  float64 `gorm:"index"`
	RetrievedAt   time.Time
	SearchKeyword string `gorm:"index"`
	ThumbnailURL  string
	URL           string
}

func (analyzedVideo) TableName() string { return string(TableDiscovered) }

type excludedVideo struct {
	ID string `gorm:"primaryKey"`
}

func (excludedVideo) TableName() string { return string(TableExcluded) }

type apiKey struct {
	Alias string `gorm:"primaryKey"`
	Key   string `gorm:"uniqueIndex"`
}

func (apiKey) TableName() string { return string(TableAPIKeys) }

// RecordStore is the sqlite-backed store for settings, discovered videos,
// excluded video ids and named API keys. The whole store lives in one file
// so it can be synced as a single blob.
type RecordStore struct {
	db   *gorm.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the store at path and migrates its schema.
func Open(path string) (*RecordStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open record store %s: %w", path, err)
	}

	// sqlite allows one writer; a single connection avoids "database is locked".
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&setting{}, &analyzedVideo{}, &excludedVideo{}, &apiKey{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate record store: %w", err)
	}

	return &RecordStore{db: db, path: path, now: time.Now}, nil
}

// Path returns the backing file path.
func (s *RecordStore) Path() string {
	return s.path
}

// Close releases the underlying database handle.
func (s *RecordStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Snapshot writes a transactionally consistent copy of the store to path,
// which must not exist yet. Writers wait only while the copy is taken.
func (s *RecordStore) Snapshot(ctx context.Context, path string) error {
	if err := s.db.WithContext(ctx).Exec("VACUUM INTO ?", path).Error; err != nil {
		return fmt.Errorf("failed to snapshot record store: %w", err)
	}
	return nil
}

// GetSetting returns the value stored under key and whether it exists.
func (s *RecordStore) GetSetting(key string) (string, bool, error) {
	var row setting
	err := s.db.Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return row.Value, true, nil
}

// SetSetting inserts or replaces the value stored under key.
func (s *RecordStore) SetSetting(key, value string) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&setting{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// ListExcludedIDs returns a snapshot of every excluded video id.
func (s *RecordStore) ListExcludedIDs() (map[string]struct{}, error) {
	var ids []string
	if err := s.db.Model(&excludedVideo{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list excluded ids: %w", err)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// AddExcludedID marks a video id as never to be surfaced again.
func (s *RecordStore) AddExcludedID(id string) error {
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&excludedVideo{ID: id}).Error
	if err != nil {
		return fmt.Errorf("failed to exclude %s: %w", id, err)
	}
	return nil
}

// UpsertDiscoveredItems stores items under keyword, replacing any previous
// record with the same id.
func (s *RecordStore) UpsertDiscoveredItems(items []models.DiscoveredItem, keyword string) error {
	if len(items) == 0 {
		return nil
	}

	retrievedAt := s.now().UTC()
	rows := make([]analyzedVideo, 0, len(items))
	for _, item := range items {
		rows = append(rows, analyzedVideo{
			ID:            item.ID,
			Title:         item.Title,
			Channel:       item.Channel,
			UploadDate:    item.UploadDate,
			Views:         item.Views,
			Subscribers:   item.Subscribers,
			Duration:      item.DurationSeconds,
			ViewVelocity:  item.ViewVelocity,
			RetrievedAt:   retrievedAt,
			SearchKeyword: keyword,
			ThumbnailURL:  item.ThumbnailURL,
			URL:           item.URL,
		})
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to store %d discovered items: %w", len(items), err)
	}
	return nil
}

// ListDiscoveredItems returns stored items ranked by view velocity.
// An empty keyword returns items from every search.
func (s *RecordStore) ListDiscoveredItems(keyword string) ([]models.DiscoveredItem, error) {
	q := s.db.Order("view_velocity DESC")
	if keyword != "" {
		q = q.Where("search_keyword = ?", keyword)
	}

	var rows []analyzedVideo
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list discovered items: %w", err)
	}

	items := make([]models.DiscoveredItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, models.DiscoveredItem{
			ID:              r.ID,
			Title:           r.Title,
			Channel:         r.Channel,
			UploadDate:      r.UploadDate,
			Views:           r.Views,
			Subscribers:     r.Subscribers,
			DurationSeconds: r.Duration,
			ViewVelocity:    r.ViewVelocity,
			RetrievedAt:     r.RetrievedAt,
			SearchKeyword:   r.SearchKeyword,
			ThumbnailURL:    r.ThumbnailURL,
			URL:             r.URL,
		})
	}
	return items, nil
}

// CountDiscoveredItems returns the number of stored discovered items.
func (s *RecordStore) CountDiscoveredItems() (int64, error) {
	var n int64
	if err := s.db.Model(&analyzedVideo{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count discovered items: %w", err)
	}
	return n, nil
}

// DeleteByID removes the rows of table whose primary key is in ids and
// returns how many were deleted.
func (s *RecordStore) DeleteByID(table Table, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var (
		model  any
		column string
	)
	switch table {
	case TableSettings:
		model, column = &setting{}, "key"
	case TableDiscovered:
		model, column = &analyzedVideo{}, "id"
	case TableExcluded:
		model, column = &excludedVideo{}, "id"
	case TableAPIKeys:
		model, column = &apiKey{}, "alias"
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	res := s.db.Where(column+" IN ?", ids).Delete(model)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, res.Error)
	}
	return res.RowsAffected, nil
}

// ListAPIKeys returns every stored API key ordered by alias.
func (s *RecordStore) ListAPIKeys() ([]models.APIKey, error) {
	var rows []apiKey
	if err := s.db.Order("alias").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}

	keys := make([]models.APIKey, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, models.APIKey{Alias: r.Alias, Key: r.Key})
	}
	return keys, nil
}

// GetAPIKey returns the key stored under alias.
func (s *RecordStore) GetAPIKey(alias string) (string, bool, error) {
	var row apiKey
	err := s.db.Where("alias = ?", alias).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read api key %s: %w", alias, err)
	}
	return row.Key, true, nil
}

// AddAPIKey stores a new named key. Both alias and key must be unused.
func (s *RecordStore) AddAPIKey(alias, key string) error {
	var n int64
	if err := s.db.Model(&apiKey{}).Where("alias = ? OR key = ?", alias, key).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check api key %s: %w", alias, err)
	}
	if n > 0 {
		return ErrDuplicateAPIKey
	}

	if err := s.db.Create(&apiKey{Alias: alias, Key: key}).Error; err != nil {
		return fmt.Errorf("failed to add api key %s: %w", alias, err)
	}
	return nil
}

// DeleteAPIKey removes the key stored under alias and reports whether it existed.
func (s *RecordStore) DeleteAPIKey(alias string) (bool, error) {
	n, err := s.DeleteByID(TableAPIKeys, []string{alias})
	return n > 0, err
}
