package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// CacheManager ties the cache database, the audio file store and the
// in-memory replay tier together and runs eviction across all three.
type CacheManager struct {
	store  *Store
	files  *FileStore
	memory *MemoryCache // nil when disabled

	config CacheConfig
	logger *log.Logger
}

// EvictionReport summarizes one eviction pass.
type EvictionReport struct {
	Evicted      []string // Paths of evicted entries
	FilesRemoved int      // Files actually deleted from disk
	Remaining    CacheStats
}

// NewCacheManager opens the database and the file store described by config.
func NewCacheManager(config *CacheConfig, opts ...StoreOption) (*CacheManager, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if config.MaxBytes < 0 || config.MaxEntries < 0 {
		return nil, ErrInvalidLimits
	}

	store, err := OpenStore(config.DBPath, opts...)
	if err != nil {
		return nil, err
	}

	files, err := NewFileStore(config.AudioDir, config.CompressionLevel)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	cm := &CacheManager{
		store:  store,
		files:  files,
		config: *config,
		logger: store.logger,
	}
	if config.MemoryCapacity > 0 {
		cm.memory = NewMemoryCache(config.MemoryCapacity)
	}
	return cm, nil
}

// Store returns the cache database.
func (cm *CacheManager) Store() *Store { return cm.store }

// Files returns the audio file store.
func (cm *CacheManager) Files() *FileStore { return cm.files }

// Audio returns the audio cache.
func (cm *CacheManager) Audio() *AudioCache { return cm.store.Audio() }

// Annotations returns the annotation cache.
func (cm *CacheManager) Annotations() *AnnotationCache { return cm.store.Annotations() }

// History returns the utterance history.
func (cm *CacheManager) History() *History { return cm.store.History() }

// Config returns the configuration the manager was opened with.
func (cm *CacheManager) Config() CacheConfig { return cm.config }

// Create starts writing the audio file for key.
func (cm *CacheManager) Create(key string) (AudioWriter, error) {
	return cm.files.Create(key)
}

// Open returns the decoded audio stored at path, served from memory when
// it was read recently.
func (cm *CacheManager) Open(path string) (io.ReadCloser, error) {
	if cm.memory != nil {
		if data, ok := cm.memory.Get(path); ok {
			cm.logger.Debug("Replay from memory", "path", path, "size", len(data))
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	data, err := cm.files.ReadAll(path)
	if err != nil {
		return nil, err
	}
	if cm.memory != nil {
		// values larger than the tier are simply not kept
		_ = cm.memory.Put(path, data)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Evict runs an eviction pass with the configured limits.
func (cm *CacheManager) Evict(ctx context.Context) (*EvictionReport, error) {
	return cm.EvictWithLimits(ctx, cm.config.MaxBytes, cm.config.MaxEntries)
}

// EvictWithLimits evicts down to the given limits and deletes the evicted
// files. A file that cannot be deleted is logged and does not fail the pass.
func (cm *CacheManager) EvictWithLimits(ctx context.Context, maxBytes, maxEntries int64) (*EvictionReport, error) {
	evicted, err := cm.store.Evictor().Evict(ctx, maxBytes, maxEntries)
	if err != nil {
		return nil, err
	}

	if cm.memory != nil {
		for _, p := range evicted {
			cm.memory.Delete(p)
		}
	}

	removed, err := cm.files.Remove(evicted)
	if err != nil {
		cm.logger.Warn("Could not remove evicted audio file", "err", err)
	}

	stats, err := cm.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to read cache stats: %w", err)
	}
	return &EvictionReport{
		Evicted:      evicted,
		FilesRemoved: removed,
		Remaining:    stats,
	}, nil
}

// Close closes the cache database.
func (cm *CacheManager) Close() error {
	return cm.store.Close()
}
