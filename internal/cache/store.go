package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// --- Persistence Models ---

type audioCacheModel struct {
	ID             uint   `gorm:"primaryKey;column:id"`
	ContentHash    string `gorm:"column:content_hash;not null;uniqueIndex"`
	FilePath       string `gorm:"column:file_path;not null"`
	FileSizeBytes  int64  `gorm:"column:file_size_bytes;not null"`
	LastAccessedAt int64  `gorm:"column:last_accessed_at;not null;index"`
	CreatedAt      int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (audioCacheModel) TableName() string { return "audio_cache" }

type annotationCacheModel struct {
	ID             uint   `gorm:"primaryKey;column:id"`
	TextHash       string `gorm:"column:text_hash;not null;uniqueIndex:idx_annotation_text_provider"`
	Provider       string `gorm:"column:provider;not null;uniqueIndex:idx_annotation_text_provider"`
	AnnotatedText  string `gorm:"column:annotated_text;not null"`
	LastAccessedAt int64  `gorm:"column:last_accessed_at;not null"`
	CreatedAt      int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (annotationCacheModel) TableName() string { return "annotation_cache" }

type utteranceModel struct {
	ID            uint     `gorm:"primaryKey;column:id"`
	RunID         string   `gorm:"column:run_id;not null;index"`
	Text          string   `gorm:"column:text;not null"`
	AnnotatedText string   `gorm:"column:annotated_text"`
	Provider      string   `gorm:"column:provider"`
	VoiceID       string   `gorm:"column:voice_id"`
	Model         string   `gorm:"column:model"`
	SampleRate    int      `gorm:"column:sample_rate"`
	Segments      []string `gorm:"column:segments;type:text;serializer:json"`
	CreatedAt     int64    `gorm:"column:created_at;not null;index;autoCreateTime:false"`
}

func (utteranceModel) TableName() string { return "utterance_history" }

// Store owns the cache database. Timestamps are stored as Unix milliseconds.
type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *log.Logger
	closed atomic.Bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger for store diagnostics and slow queries.
func WithLogger(l *log.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// OpenStore opens (creating if needed) the SQLite database at path and
// migrates the cache schema. Use ":memory:" for a private in-memory database.
func OpenStore(path string, opts ...StoreOption) (*Store, error) {
	s := newStore(opts...)

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(
			s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.DebugLevel}),
			gormlogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		NowFunc: func() time.Time {
			return s.now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database (%s): %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	// single writer; an in-memory database also lives only as long as its one connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	s.db = db
	if err := s.migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func newStore(opts ...StoreOption) *Store {
	s := &Store{
		now:    time.Now,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&audioCacheModel{},
		&annotationCacheModel{},
		&utteranceModel{},
	); err != nil {
		return fmt.Errorf("failed to migrate cache schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Audio returns the audio cache backed by this store.
func (s *Store) Audio() *AudioCache {
	return &AudioCache{store: s}
}

// Annotations returns the annotation cache backed by this store.
func (s *Store) Annotations() *AnnotationCache {
	return &AnnotationCache{store: s}
}

// History returns the utterance history backed by this store.
func (s *Store) History() *History {
	return &History{store: s}
}

// Evictor returns the LRU evictor for the audio cache.
func (s *Store) Evictor() *Evictor {
	return &Evictor{store: s}
}

// Stats counts rows and audio bytes.
func (s *Store) Stats(ctx context.Context) (CacheStats, error) {
	if s.closed.Load() {
		return CacheStats{}, ErrStoreClosed
	}

	var stats CacheStats
	db := s.db.WithContext(ctx)
	if err := db.Model(&audioCacheModel{}).Count(&stats.AudioEntries).Error; err != nil {
		return CacheStats{}, fmt.Errorf("unable to count audio cache: %w", err)
	}
	if err := db.Model(&audioCacheModel{}).Select("COALESCE(SUM(file_size_bytes), 0)").Scan(&stats.AudioBytes).Error; err != nil {
		return CacheStats{}, fmt.Errorf("unable to sum audio cache: %w", err)
	}
	if err := db.Model(&annotationCacheModel{}).Count(&stats.AnnotationEntries).Error; err != nil {
		return CacheStats{}, fmt.Errorf("unable to count annotation cache: %w", err)
	}
	if err := db.Model(&utteranceModel{}).Count(&stats.HistoryEntries).Error; err != nil {
		return CacheStats{}, fmt.Errorf("unable to count history: %w", err)
	}
	return stats, nil
}

func (s *Store) stamp() int64 {
	return s.now().UnixMilli()
}

// touch returns the access time for a hit on a row last accessed at prev.
// It never returns a value <= prev, even when the clock has not advanced.
func (s *Store) touch(prev int64) int64 {
	now := s.stamp()
	if now <= prev {
		return prev + 1
	}
	return now
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
