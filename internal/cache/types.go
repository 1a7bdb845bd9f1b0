package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrCacheCorrupted is returned when a cached audio file cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")

	// ErrInvalidLimits is returned when eviction limits are negative
	ErrInvalidLimits = errors.New("eviction limits must not be negative")

	// ErrItemTooLarge is returned when an item exceeds the memory cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrStoreClosed is returned when an operation is attempted on a closed store
	ErrStoreClosed = errors.New("cache store is closed")
)

// AudioEntry mirrors one row of the audio cache.
type AudioEntry struct {
	ID             uint
	ContentHash    string
	FilePath       string
	FileSizeBytes  int64
	LastAccessedAt time.Time
	CreatedAt      time.Time
}

// AnnotationEntry mirrors one row of the annotation cache.
type AnnotationEntry struct {
	ID             uint
	TextHash       string
	Provider       string
	AnnotatedText  string
	LastAccessedAt time.Time
	CreatedAt      time.Time
}

// CacheStats holds a snapshot of the cache tables.
type CacheStats struct {
	AudioEntries      int64 // Rows in audio_cache
	AudioBytes        int64 // Sum of file_size_bytes
	AnnotationEntries int64 // Rows in annotation_cache
	HistoryEntries    int64 // Rows in utterance_history
}

// CacheConfig holds configuration for a cache Manager.
type CacheConfig struct {
	// Database
	DBPath string // SQLite file, or ":memory:"

	// Audio files
	AudioDir         string // Directory for rendered audio
	CompressionLevel int    // Zstd compression level (0 disables, 1-22)

	// Decoded audio kept in memory for replays
	MemoryCapacity int64 // Bytes, 0 disables

	// Eviction ceilings
	MaxBytes   int64 // Uncompressed PCM bytes
	MaxEntries int64 // Audio rows
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		DBPath:           "speakcache.db",
		AudioDir:         "audio",
		CompressionLevel: 3, // Balanced compression
		MemoryCapacity:   32 * 1024 * 1024,
		MaxBytes:         500 * 1024 * 1024,
		MaxEntries:       10000,
	}
}
