package engines

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/dgnsrekt/speakcache/internal/tts"
)

// MockEngine is an offline synthesizer producing deterministic PCM. The
// audio length is proportional to the text; the content is a quiet tone
// whose pitch depends on the text, so different segments differ.
type MockEngine struct {
	delay     time.Duration
	chunkSize int

	mu           sync.Mutex
	failure      error
	streamFailAt int
	calls        []string
}

// NewMockEngine creates a mock engine with no delay and 4KB chunks.
func NewMockEngine() *MockEngine {
	return &MockEngine{chunkSize: 4096, streamFailAt: -1}
}

// Generate renders req.Text as mono 16-bit PCM at req.SampleRate.
func (e *MockEngine) Generate(ctx context.Context, req tts.SynthesisRequest) (tts.AudioStream, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req.Text)
	failure, failAt := e.failure, e.streamFailAt
	e.mu.Unlock()

	if failure != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeTTSAPI, "mock engine failure", failure)
	}

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &mockStream{
		data:      Tone(req.Text, req.SampleRate),
		chunkSize: e.chunkSize,
		failAt:    failAt,
	}, nil
}

// SetDelay sets the simulated request latency.
func (e *MockEngine) SetDelay(delay time.Duration) {
	e.delay = delay
}

// SetChunkSize sets the size of streamed chunks.
func (e *MockEngine) SetChunkSize(n int) {
	if n > 0 {
		e.chunkSize = n
	}
}

// SetFailure makes every following Generate call fail with err.
func (e *MockEngine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failure = err
}

// SetStreamFailure makes following streams fail after chunk n. A negative n
// disables it.
func (e *MockEngine) SetStreamFailure(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streamFailAt = n
}

// ClearFailure resets the engine to normal operation.
func (e *MockEngine) ClearFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failure = nil
	e.streamFailAt = -1
}

// Calls returns the texts passed to Generate, in order.
func (e *MockEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Tone returns the PCM the mock engine renders for text: 60ms per rune,
// at least 100ms.
func Tone(text string, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	runes := len([]rune(text))
	duration := max(time.Duration(runes)*60*time.Millisecond, 100*time.Millisecond)
	samples := int(int64(duration) * int64(sampleRate) / int64(time.Second))

	var sum int
	for _, r := range text {
		sum += int(r)
	}
	freq := 220.0 + float64(sum%440)

	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(2000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		data[2*i] = byte(v)
		data[2*i+1] = byte(uint16(v) >> 8)
	}
	return data
}

type mockStream struct {
	data      []byte
	chunkSize int
	pos       int
	sent      int
	failAt    int
}

func (s *mockStream) Recv() ([]byte, error) {
	if s.failAt >= 0 && s.sent == s.failAt {
		return nil, io.ErrUnexpectedEOF
	}
	if s.pos >= len(s.data) {
		return nil, io.EOF
	}
	end := min(s.pos+s.chunkSize, len(s.data))
	chunk := s.data[s.pos:end]
	s.pos = end
	s.sent++
	return chunk, nil
}

func (s *mockStream) Close() error { return nil }

var _ tts.Synthesizer = (*MockEngine)(nil)
