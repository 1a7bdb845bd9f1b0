package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakcache/internal/tts"
	"golang.org/x/time/rate"
)

const (
	// DefaultCartesiaURL is the public Cartesia API endpoint.
	DefaultCartesiaURL = "https://api.cartesia.ai"

	// DefaultCartesiaVersion is sent as the Cartesia-Version header.
	DefaultCartesiaVersion = "2024-06-10"

	defaultChunkSize = 8 * 1024
	maxErrorBody     = 512
)

// CartesiaEngine synthesizes speech through the Cartesia bytes endpoint and
// streams the raw PCM response body.
type CartesiaEngine struct {
	baseURL     string
	version     string
	client      *http.Client
	chunkSize   int
	rateLimiter *rate.Limiter
	logger      *log.Logger
}

// CartesiaConfig holds configuration for the Cartesia engine.
type CartesiaConfig struct {
	// BaseURL of the API (defaults to DefaultCartesiaURL)
	BaseURL string

	// Version sent as the Cartesia-Version header
	Version string

	// HTTPClient used for requests (defaults to a client with Timeout)
	HTTPClient *http.Client

	// Timeout for a whole request, response body included (defaults to 2 minutes)
	Timeout time.Duration

	// ChunkSize bounds the chunks returned by the stream (defaults to 8KB)
	ChunkSize int

	// RequestsPerMinute limits outgoing requests (defaults to 120)
	RequestsPerMinute int

	Logger *log.Logger
}

// NewCartesiaEngine creates a new Cartesia engine.
func NewCartesiaEngine(config CartesiaConfig) *CartesiaEngine {
	if config.BaseURL == "" {
		config.BaseURL = DefaultCartesiaURL
	}
	if config.Version == "" {
		config.Version = DefaultCartesiaVersion
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaultChunkSize
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 120
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard)
	}

	return &CartesiaEngine{
		baseURL:     strings.TrimSuffix(config.BaseURL, "/"),
		version:     config.Version,
		client:      config.HTTPClient,
		chunkSize:   config.ChunkSize,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
		logger:      config.Logger,
	}
}

type cartesiaRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        cartesiaVoice        `json:"voice"`
	Language     string               `json:"language,omitempty"`
	OutputFormat cartesiaOutputFormat `json:"output_format"`
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// Generate sends one synthesis request. A non-2xx response is reported as a
// TTS_API error carrying the start of the response body.
func (e *CartesiaEngine) Generate(ctx context.Context, req tts.SynthesisRequest) (tts.AudioStream, error) {
	if err := e.rateLimiter.Wait(ctx); err != nil {
		return nil, tts.AsTTSError(err, tts.ErrorCodeTTSAPI, "rate limit wait cancelled")
	}

	body, err := json.Marshal(cartesiaRequest{
		ModelID:    req.Model,
		Transcript: req.Text,
		Voice:      cartesiaVoice{Mode: "id", ID: req.VoiceID},
		Language:   req.Language,
		OutputFormat: cartesiaOutputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: req.SampleRate,
		},
	})
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeTTSAPI, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeTTSAPI, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", req.APIKey)
	httpReq.Header.Set("Cartesia-Version", e.version)

	e.logger.Debug("Cartesia request", "model", req.Model, "voice", req.VoiceID, "chars", len(req.Text))

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, tts.AsTTSError(err, tts.ErrorCodeTTSAPI, "request failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, tts.NewTTSError(tts.ErrorCodeTTSAPI, "unexpected response",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt))))
	}

	return &bodyStream{body: resp.Body, buf: make([]byte, e.chunkSize)}, nil
}

// bodyStream reads a response body in chunks of at most len(buf) bytes. A
// read error is reported after the bytes read before it.
type bodyStream struct {
	body io.ReadCloser
	buf  []byte
	err  error
}

func (s *bodyStream) Recv() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	n := 0
	var err error
	for n < len(s.buf) && err == nil {
		var m int
		m, err = s.body.Read(s.buf[n:])
		n += m
	}
	s.err = err
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, s.buf[:n])
		return chunk, nil
	}
	return nil, err
}

func (s *bodyStream) Close() error {
	return s.body.Close()
}

var _ tts.Synthesizer = (*CartesiaEngine)(nil)
