package cache

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// AudioCache maps an audio content hash to a rendered audio file.
type AudioCache struct {
	store *Store
}

// GetPath returns the file path stored under key. A miss is not an error.
// A hit refreshes the entry's access time.
func (c *AudioCache) GetPath(ctx context.Context, key string) (string, bool, error) {
	if c.store.closed.Load() {
		return "", false, ErrStoreClosed
	}

	var (
		m     audioCacheModel
		found bool
	)
	err := c.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("content_hash = ?", key).Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		m.LastAccessedAt = c.store.touch(m.LastAccessedAt)
		return tx.Model(&audioCacheModel{}).
			Where("id = ?", m.ID).
			Update("last_accessed_at", m.LastAccessedAt).Error
	})
	if err != nil {
		return "", false, fmt.Errorf("unable to read audio cache: %w", err)
	}
	if !found {
		return "", false, nil
	}
	return m.FilePath, true, nil
}

// Put records that the audio for key lives at path and holds size bytes.
// An existing entry for key is replaced.
func (c *AudioCache) Put(ctx context.Context, key, path string, size int64) error {
	if c.store.closed.Load() {
		return ErrStoreClosed
	}

	err := c.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m audioCacheModel
		err := tx.Where("content_hash = ?", key).Take(&m).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			now := c.store.stamp()
			return tx.Create(&audioCacheModel{
				ContentHash:    key,
				FilePath:       path,
				FileSizeBytes:  size,
				LastAccessedAt: now,
				CreatedAt:      now,
			}).Error
		case err != nil:
			return err
		}
		return tx.Model(&audioCacheModel{}).
			Where("id = ?", m.ID).
			Updates(map[string]any{
				"file_path":        path,
				"file_size_bytes":  size,
				"last_accessed_at": c.store.touch(m.LastAccessedAt),
			}).Error
	})
	if err != nil {
		return fmt.Errorf("unable to write audio cache: %w", err)
	}
	c.store.logger.Debug("Audio cached", "key", key, "path", path, "size", size)
	return nil
}

// Entry returns the raw row for key without refreshing it.
func (c *AudioCache) Entry(ctx context.Context, key string) (AudioEntry, bool, error) {
	if c.store.closed.Load() {
		return AudioEntry{}, false, ErrStoreClosed
	}
	var m audioCacheModel
	err := c.store.db.WithContext(ctx).Where("content_hash = ?", key).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AudioEntry{}, false, nil
	}
	if err != nil {
		return AudioEntry{}, false, fmt.Errorf("unable to read audio cache: %w", err)
	}
	return toAudioEntry(m), true, nil
}

// Entries lists all rows, least recently accessed first.
func (c *AudioCache) Entries(ctx context.Context) ([]AudioEntry, error) {
	if c.store.closed.Load() {
		return nil, ErrStoreClosed
	}
	var rows []audioCacheModel
	if err := c.store.db.WithContext(ctx).
		Order("last_accessed_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("unable to list audio cache: %w", err)
	}
	entries := make([]AudioEntry, 0, len(rows))
	for _, m := range rows {
		entries = append(entries, toAudioEntry(m))
	}
	return entries, nil
}

func toAudioEntry(m audioCacheModel) AudioEntry {
	return AudioEntry{
		ID:             m.ID,
		ContentHash:    m.ContentHash,
		FilePath:       m.FilePath,
		FileSizeBytes:  m.FileSizeBytes,
		LastAccessedAt: fromMillis(m.LastAccessedAt),
		CreatedAt:      fromMillis(m.CreatedAt),
	}
}
