//go:build !nocgo
// +build !nocgo

package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoFormat  Format
	otoErr     error
)

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int
	Channels   int
	BufferSize time.Duration // device buffer, 0 for the oto default
}

// DefaultPlayerConfig returns the mono configuration for sampleRate.
func DefaultPlayerConfig(sampleRate int) PlayerConfig {
	return PlayerConfig{SampleRate: sampleRate, Channels: 1}
}

// Player streams 16-bit PCM to the default audio device. Writes block
// while the device buffer is full, so a producer is paced by playback.
type Player struct {
	player *oto.Player
	pw     *io.PipeWriter

	mu     sync.Mutex
	closed bool
}

// NewPlayer opens the audio device and starts a playback stream.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ctx, err := deviceContext(config)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)
	if player == nil {
		return nil, errors.New("failed to create oto player")
	}
	player.Play()

	return &Player{player: player, pw: pw}, nil
}

func validateConfig(config PlayerConfig) error {
	if config.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	return nil
}

func deviceContext(config PlayerConfig) (*oto.Context, error) {
	want := Format{SampleRate: config.SampleRate, Channels: config.Channels, BitsPerSample: 16}
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   config.SampleRate,
			ChannelCount: config.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   config.BufferSize,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoContext, otoFormat = ctx, want
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoFormat != want {
		return nil, fmt.Errorf("audio device already opened at %d Hz, %d channels", otoFormat.SampleRate, otoFormat.Channels)
	}
	return otoContext, nil
}

// Write queues PCM for playback.
func (p *Player) Write(b []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, ErrPlayerClosed
	}
	return p.pw.Write(b)
}

// Close ends the stream and waits until everything queued has been played.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	_ = p.pw.Close()
	for p.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	return p.player.Close()
}

var _ Sink = (*Player)(nil)
