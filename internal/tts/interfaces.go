package tts

import (
	"context"
	"io"

	"github.com/dgnsrekt/speakcache/internal/cache"
)

// Synthesizer turns one segment of text into a stream of raw PCM bytes.
// Implementations include the Cartesia HTTP engine and the mock engine.
type Synthesizer interface {
	// Generate starts synthesis. Failing to start is reported here;
	// failures after the first byte are reported by the stream.
	Generate(ctx context.Context, req SynthesisRequest) (AudioStream, error)
}

// AudioStream yields audio chunks in order.
type AudioStream interface {
	// Recv returns the next chunk, or io.EOF after the last one.
	Recv() ([]byte, error)

	// Close releases the stream. It is safe to call after io.EOF.
	Close() error
}

// Annotator enriches text with prosody markup.
type Annotator interface {
	// Provider names the annotation provider; it scopes the annotation cache.
	Provider() string

	// Annotate returns the complete annotated text.
	Annotate(ctx context.Context, text string) (string, error)

	// Stream returns the annotated text as tokens with Marker between
	// speech segments.
	Stream(ctx context.Context, text string) (TokenStream, error)
}

// TokenStream yields text tokens in order.
type TokenStream interface {
	// Recv returns the next token, or io.EOF after the last one.
	Recv() (string, error)

	// Close releases the stream.
	Close() error
}

// AudioCache records where rendered audio lives. *cache.AudioCache
// implements it.
type AudioCache interface {
	GetPath(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, path string, size int64) error
}

// AudioFiles stores rendered audio. *cache.CacheManager and
// *cache.FileStore implement it.
type AudioFiles interface {
	Create(key string) (cache.AudioWriter, error)
	Open(path string) (io.ReadCloser, error)
}

// SynthesisConfig carries the parameters shared by every segment of a run.
type SynthesisConfig struct {
	APIKey     string
	VoiceID    string
	Model      string
	SampleRate int
	Language   string
}

// SynthesisRequest asks for the audio of one segment.
type SynthesisRequest struct {
	SynthesisConfig
	Text string
}

// CacheKey returns the audio cache key for text under this configuration.
func (c SynthesisConfig) CacheKey(text string) string {
	return cache.AudioCacheKey(cache.AudioKeyParams{
		Text:       text,
		VoiceID:    c.VoiceID,
		Model:      c.Model,
		SampleRate: c.SampleRate,
	})
}
