package cache

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// AnnotationCache maps (text, provider) to a previously computed annotation.
// The same text has an independent entry per provider.
type AnnotationCache struct {
	store *Store
}

// Get returns the annotation stored for text and provider. A miss is not an
// error. A hit refreshes the entry's access time.
func (c *AnnotationCache) Get(ctx context.Context, text, provider string) (string, bool, error) {
	if c.store.closed.Load() {
		return "", false, ErrStoreClosed
	}

	var (
		m     annotationCacheModel
		found bool
	)
	err := c.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("text_hash = ? AND provider = ?", Hash(text), provider).Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		m.LastAccessedAt = c.store.touch(m.LastAccessedAt)
		return tx.Model(&annotationCacheModel{}).
			Where("id = ?", m.ID).
			Update("last_accessed_at", m.LastAccessedAt).Error
	})
	if err != nil {
		return "", false, fmt.Errorf("unable to read annotation cache: %w", err)
	}
	if !found {
		c.store.logger.Debug("Annotation cache miss", "provider", provider)
		return "", false, nil
	}
	c.store.logger.Debug("Annotation cache hit", "provider", provider, "id", m.ID)
	return m.AnnotatedText, true, nil
}

// Put stores annotated as the annotation of text by provider, replacing any
// previous annotation for the same pair.
func (c *AnnotationCache) Put(ctx context.Context, text, provider, annotated string) error {
	if c.store.closed.Load() {
		return ErrStoreClosed
	}

	textHash := Hash(text)
	err := c.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m annotationCacheModel
		err := tx.Where("text_hash = ? AND provider = ?", textHash, provider).Take(&m).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			now := c.store.stamp()
			return tx.Create(&annotationCacheModel{
				TextHash:       textHash,
				Provider:       provider,
				AnnotatedText:  annotated,
				LastAccessedAt: now,
				CreatedAt:      now,
			}).Error
		case err != nil:
			return err
		}
		return tx.Model(&annotationCacheModel{}).
			Where("id = ?", m.ID).
			Updates(map[string]any{
				"annotated_text":   annotated,
				"last_accessed_at": c.store.touch(m.LastAccessedAt),
			}).Error
	})
	if err != nil {
		return fmt.Errorf("unable to write annotation cache: %w", err)
	}
	return nil
}

// Entry returns the raw row for text and provider without refreshing it.
func (c *AnnotationCache) Entry(ctx context.Context, text, provider string) (AnnotationEntry, bool, error) {
	if c.store.closed.Load() {
		return AnnotationEntry{}, false, ErrStoreClosed
	}
	var m annotationCacheModel
	err := c.store.db.WithContext(ctx).
		Where("text_hash = ? AND provider = ?", Hash(text), provider).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AnnotationEntry{}, false, nil
	}
	if err != nil {
		return AnnotationEntry{}, false, fmt.Errorf("unable to read annotation cache: %w", err)
	}
	return AnnotationEntry{
		ID:             m.ID,
		TextHash:       m.TextHash,
		Provider:       m.Provider,
		AnnotatedText:  m.AnnotatedText,
		LastAccessedAt: fromMillis(m.LastAccessedAt),
		CreatedAt:      fromMillis(m.CreatedAt),
	}, true, nil
}
