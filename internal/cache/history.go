package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Utterance is one synthesized run as recorded in the history.
type Utterance struct {
	ID            uint
	RunID         string
	Text          string
	AnnotatedText string
	Provider      string
	VoiceID       string
	Model         string
	SampleRate    int

	// Segments holds the text of each synthesized segment, in order. Together
	// with VoiceID, Model and SampleRate it names the cached audio of the run.
	Segments []string

	CreatedAt time.Time
}

// History records synthesized utterances.
type History struct {
	store *Store
}

// Record appends u to the history. CreatedAt is set by the store.
func (h *History) Record(ctx context.Context, u Utterance) error {
	if h.store.closed.Load() {
		return ErrStoreClosed
	}
	m := utteranceModel{
		RunID:         u.RunID,
		Text:          u.Text,
		AnnotatedText: u.AnnotatedText,
		Provider:      u.Provider,
		VoiceID:       u.VoiceID,
		Model:         u.Model,
		SampleRate:    u.SampleRate,
		Segments:      u.Segments,
		CreatedAt:     h.store.stamp(),
	}
	if err := h.store.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("unable to record utterance: %w", err)
	}
	return nil
}

// Recent returns up to limit utterances, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]Utterance, error) {
	if h.store.closed.Load() {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = -1 // no limit
	}
	var rows []utteranceModel
	if err := h.store.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("unable to read history: %w", err)
	}
	out := make([]Utterance, 0, len(rows))
	for _, m := range rows {
		out = append(out, toUtterance(m))
	}
	return out, nil
}

// Get returns the utterance with the given id. A missing row is not an error.
func (h *History) Get(ctx context.Context, id uint) (Utterance, bool, error) {
	if h.store.closed.Load() {
		return Utterance{}, false, ErrStoreClosed
	}
	var m utteranceModel
	err := h.store.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Utterance{}, false, nil
	}
	if err != nil {
		return Utterance{}, false, fmt.Errorf("unable to read history: %w", err)
	}
	return toUtterance(m), true, nil
}

// Remove deletes the utterance with the given id and reports whether it
// existed. Its audio stays in the audio cache, which other runs share.
func (h *History) Remove(ctx context.Context, id uint) (bool, error) {
	if h.store.closed.Load() {
		return false, ErrStoreClosed
	}
	res := h.store.db.WithContext(ctx).Where("id = ?", id).Delete(&utteranceModel{})
	if res.Error != nil {
		return false, fmt.Errorf("unable to remove utterance: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func toUtterance(m utteranceModel) Utterance {
	return Utterance{
		ID:            m.ID,
		RunID:         m.RunID,
		Text:          m.Text,
		AnnotatedText: m.AnnotatedText,
		Provider:      m.Provider,
		VoiceID:       m.VoiceID,
		Model:         m.Model,
		SampleRate:    m.SampleRate,
		Segments:      m.Segments,
		CreatedAt:     fromMillis(m.CreatedAt),
	}
}
