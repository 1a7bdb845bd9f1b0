package cache

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Evictor enforces byte and entry ceilings over the audio cache.
type Evictor struct {
	store *Store
}

// Evict removes the least recently accessed audio rows until the remaining
// rows hold at most maxBytes bytes and at most maxEntries entries. Rows with
// equal access times are evicted in insertion order.
//
// Only rows are deleted. The returned file paths belong to the evicted rows
// and must be removed by the caller.
func (e *Evictor) Evict(ctx context.Context, maxBytes, maxEntries int64) ([]string, error) {
	if maxBytes < 0 || maxEntries < 0 {
		return nil, ErrInvalidLimits
	}
	if e.store.closed.Load() {
		return nil, ErrStoreClosed
	}

	var evicted []string
	err := e.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []audioCacheModel
		if err := tx.Select("id", "file_path", "file_size_bytes").
			Order("last_accessed_at ASC").
			Order("id ASC").
			Find(&rows).Error; err != nil {
			return err
		}

		var totalBytes int64
		totalEntries := int64(len(rows))
		for _, r := range rows {
			totalBytes += r.FileSizeBytes
		}

		for _, r := range rows {
			if totalBytes <= maxBytes && totalEntries <= maxEntries {
				break
			}
			if err := tx.Delete(&audioCacheModel{}, r.ID).Error; err != nil {
				return err
			}
			totalBytes -= r.FileSizeBytes
			totalEntries--
			evicted = append(evicted, r.FilePath)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to evict audio cache: %w", err)
	}

	if len(evicted) > 0 {
		e.store.logger.Info("Evicted audio cache entries", "count", len(evicted), "maxBytes", maxBytes, "maxEntries", maxEntries)
	}
	return evicted, nil
}
