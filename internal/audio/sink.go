package audio

import (
	"errors"
	"sync"
)

// ErrPlayerClosed is returned when writing to a closed player.
var ErrPlayerClosed = errors.New("player is closed")

// Sink consumes PCM chunks as they are produced. Close flushes and waits
// until the data has been consumed.
type Sink interface {
	Write(p []byte) (int, error)
	Close() error
}

// MockPlayer is a Sink that records what it is given instead of playing it.
type MockPlayer struct {
	mu     sync.Mutex
	data   []byte
	writes int
	closed bool
	err    error
}

// NewMockPlayer creates a recording player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// SetError makes following writes fail with err.
func (m *MockPlayer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockPlayer) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrPlayerClosed
	}
	if m.err != nil {
		return 0, m.err
	}
	m.data = append(m.data, p...)
	m.writes++
	return len(p), nil
}

func (m *MockPlayer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Played returns a copy of everything written.
func (m *MockPlayer) Played() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Writes returns the number of successful writes.
func (m *MockPlayer) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Closed reports whether Close was called.
func (m *MockPlayer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Sink = (*MockPlayer)(nil)
