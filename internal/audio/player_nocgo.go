//go:build nocgo
// +build nocgo

package audio

import (
	"errors"
	"time"
)

// ErrAudioUnavailable is returned by NewPlayer in builds without cgo.
var ErrAudioUnavailable = errors.New("audio playback not available in nocgo build")

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int
	Channels   int
	BufferSize time.Duration
}

// DefaultPlayerConfig returns the mono configuration for sampleRate.
func DefaultPlayerConfig(sampleRate int) PlayerConfig {
	return PlayerConfig{SampleRate: sampleRate, Channels: 1}
}

// Player is unavailable without cgo.
type Player struct{}

// NewPlayer always fails in nocgo builds.
func NewPlayer(PlayerConfig) (*Player, error) {
	return nil, ErrAudioUnavailable
}

func (p *Player) Write([]byte) (int, error) { return 0, ErrAudioUnavailable }

func (p *Player) Close() error { return nil }

var _ Sink = (*Player)(nil)
