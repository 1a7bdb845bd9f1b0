package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakcache/internal/annotate"
	"github.com/dgnsrekt/speakcache/internal/audio"
	"github.com/dgnsrekt/speakcache/internal/cache"
	"github.com/dgnsrekt/speakcache/internal/tts"
	"github.com/dgnsrekt/speakcache/internal/tts/engines"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	return &Config{
		Synthesis: tts.SynthesisConfig{
			VoiceID:    "voice",
			Model:      defaultModel,
			SampleRate: 16000,
			Language:   "en",
		},
		Engine:      "mock",
		Annotate:    true,
		Provider:    annotate.ProviderSentences,
		DBPath:      filepath.Join(dir, "cache.db"),
		CacheDir:    filepath.Join(dir, "audio"),
		MaxBytes:    defaultMaxSizeMB * 1024 * 1024,
		MaxEntries:  defaultMaxEntries,
		Compression: defaultCompression,
		AutoEvict:   true,
		Replay:      true,
	}
}

func newTestSession(t *testing.T, cfg *Config) (*session, *engines.MockEngine) {
	t.Helper()
	mock := engines.NewMockEngine()
	s, err := newSession(cfg, mock, log.New(io.Discard))
	if err != nil {
		t.Fatalf("newSession failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mock
}

func TestSessionRun(t *testing.T) {
	cfg := testConfig(t)
	s, mock := newTestSession(t, cfg)

	const text = "Hello there. How are you?"
	wavPath := filepath.Join(t.TempDir(), "out", "hello.wav")

	var first bytes.Buffer
	report, err := s.run(context.Background(), text, outputOptions{Stdout: &first, WAVPath: wavPath})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := report.Result.Segments; len(got) != 2 || got[0] != "Hello there." || got[1] != "How are you?" {
		t.Errorf("Segments = %q", got)
	}
	if report.Result.CacheMisses != 2 || report.Result.CacheHits != 0 {
		t.Errorf("misses = %d, hits = %d", report.Result.CacheMisses, report.Result.CacheHits)
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}
	if !bytes.Equal(first.Bytes(), report.Result.Bytes()) {
		t.Error("stdout does not match the delivered audio")
	}

	wav, err := os.ReadFile(wavPath)
	if err != nil {
		t.Fatalf("reading wav: %v", err)
	}
	if len(wav) != audio.WAVHeaderSize+first.Len() {
		t.Errorf("wav size = %d, want %d", len(wav), audio.WAVHeaderSize+first.Len())
	}

	if report.TextPath != textPathFor(wavPath) {
		t.Errorf("TextPath = %q", report.TextPath)
	}
	annotated, err := os.ReadFile(report.TextPath)
	if err != nil {
		t.Fatalf("reading annotated text: %v", err)
	}
	if string(annotated) != "Hello there.\nHow are you?\n" {
		t.Errorf("annotated text = %q", annotated)
	}

	rows, err := s.cache.History().Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Text != text || rows[0].RunID != report.RunID || rows[0].Provider != annotate.ProviderSentences {
		t.Errorf("history = %+v", rows)
	}

	// second run is served from the cache
	var second bytes.Buffer
	report, err = s.run(context.Background(), text, outputOptions{Stdout: &second})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if report.Result.CacheHits != 2 || report.Result.CacheMisses != 0 {
		t.Errorf("second run hits = %d, misses = %d", report.Result.CacheHits, report.Result.CacheMisses)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("replayed audio differs from the first run")
	}
	if n := len(mock.Calls()); n != 2 {
		t.Errorf("engine called %d times, want 2", n)
	}
}

func TestSessionReplay(t *testing.T) {
	s, mock := newTestSession(t, testConfig(t))
	ctx := context.Background()

	var first bytes.Buffer
	report, err := s.run(ctx, "Hello there. How are you?", outputOptions{Stdout: &first})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	rows, _ := s.cache.History().Recent(ctx, 1)
	if len(rows) != 1 {
		t.Fatalf("history has %d rows", len(rows))
	}
	if got := rows[0].Segments; len(got) != 2 || got[1] != "How are you?" || rows[0].SampleRate != 16000 {
		t.Errorf("recorded %+v", rows[0])
	}
	id := rows[0].ID

	// the recorded rate wins over the current configuration
	s.cfg.Synthesis.SampleRate = 24000
	player := audio.NewMockPlayer()
	var rate int
	s.newPlayer = func(sampleRate int) (audio.Sink, error) {
		rate = sampleRate
		return player, nil
	}
	wavPath := filepath.Join(t.TempDir(), "again.wav")

	var replayed bytes.Buffer
	u, err := s.replay(ctx, id, outputOptions{Stdout: &replayed, WAVPath: wavPath, Play: true})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if u.RunID != report.RunID {
		t.Errorf("replayed run %q, want %q", u.RunID, report.RunID)
	}
	if !bytes.Equal(replayed.Bytes(), first.Bytes()) {
		t.Error("replayed audio differs from the run")
	}
	if rate != 16000 || !bytes.Equal(player.Played(), first.Bytes()) {
		t.Errorf("player opened at %d Hz with %d bytes", rate, len(player.Played()))
	}
	wav, err := os.ReadFile(wavPath)
	if err != nil {
		t.Fatalf("reading wav: %v", err)
	}
	if len(wav) != audio.WAVHeaderSize+first.Len() {
		t.Errorf("wav size = %d", len(wav))
	}
	if n := len(mock.Calls()); n != 2 {
		t.Errorf("engine called %d times, want 2", n)
	}

	t.Run("unknown id", func(t *testing.T) {
		if _, err := s.replay(ctx, id+100, outputOptions{Stdout: io.Discard}); tts.CodeOf(err) != tts.ErrorCodeFileRead {
			t.Errorf("err = %v, want FILE_READ", err)
		}
	})

	t.Run("evicted audio", func(t *testing.T) {
		if err := s.cache.History().Record(ctx, cache.Utterance{
			RunID:      "gone",
			Text:       "Never cached.",
			VoiceID:    "voice",
			Model:      defaultModel,
			SampleRate: 16000,
			Segments:   []string{"Never cached."},
		}); err != nil {
			t.Fatal(err)
		}
		latest, _ := s.cache.History().Recent(ctx, 1)
		out := filepath.Join(t.TempDir(), "gone.wav")
		_, err := s.replay(ctx, latest[0].ID, outputOptions{WAVPath: out})
		if tts.CodeOf(err) != tts.ErrorCodeFileRead || !strings.Contains(err.Error(), "evicted") {
			t.Errorf("err = %v, want FILE_READ about eviction", err)
		}
		if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("output created for a failed replay: %v", err)
		}
	})

	t.Run("terminal", func(t *testing.T) {
		if _, err := s.replay(ctx, id, outputOptions{}); tts.CodeOf(err) != tts.ErrorCodeInvalidFormat {
			t.Errorf("err = %v, want INVALID_FORMAT", err)
		}
	})
}

func TestSessionRunKeepsInputFile(t *testing.T) {
	s, _ := newTestSession(t, testConfig(t))

	dir := t.TempDir()
	const text = "Hello there. How are you?"
	input := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(input, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}

	report, err := s.run(context.Background(), text, outputOptions{
		WAVPath:   filepath.Join(dir, "notes.wav"),
		InputPath: input,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got, _ := os.ReadFile(input); string(got) != text {
		t.Errorf("input file changed to %q", got)
	}
	if want := filepath.Join(dir, "notes.annotated.txt"); report.TextPath != want {
		t.Errorf("TextPath = %q, want %q", report.TextPath, want)
	}
	if got, _ := os.ReadFile(report.TextPath); string(got) != "Hello there.\nHow are you?\n" {
		t.Errorf("annotated text = %q", got)
	}

	_, err = s.run(context.Background(), text, outputOptions{WAVPath: input, InputPath: input})
	if tts.CodeOf(err) != tts.ErrorCodeFileWrite {
		t.Errorf("writing the WAV over the input: err = %v, want FILE_WRITE", err)
	}
	if got, _ := os.ReadFile(input); string(got) != text {
		t.Errorf("input file changed to %q", got)
	}
}

func TestSessionRunWithoutReplay(t *testing.T) {
	cfg := testConfig(t)
	cfg.Replay = false
	s, _ := newTestSession(t, cfg)

	if _, err := s.run(context.Background(), "Once.", outputOptions{Stdout: io.Discard}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var out bytes.Buffer
	report, err := s.run(context.Background(), "Once.", outputOptions{Stdout: &out})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if out.Len() != 0 || report.Result.CacheHits != 1 {
		t.Errorf("wrote %d bytes with %d hits, want nothing replayed", out.Len(), report.Result.CacheHits)
	}

	// a WAV file still gets every byte
	wavPath := filepath.Join(t.TempDir(), "once.wav")
	report, err = s.run(context.Background(), "Once.", outputOptions{WAVPath: wavPath})
	if err != nil {
		t.Fatalf("wav run failed: %v", err)
	}
	if len(report.Result.Bytes()) == 0 {
		t.Error("cached audio was not replayed into the WAV file")
	}
}

func TestSessionRunNoAnnotation(t *testing.T) {
	cfg := testConfig(t)
	cfg.Annotate = false
	s, mock := newTestSession(t, cfg)

	wavPath := filepath.Join(t.TempDir(), "plain.wav")
	report, err := s.run(context.Background(), "One. Two.", outputOptions{WAVPath: wavPath})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if calls := mock.Calls(); len(calls) != 1 || calls[0] != "One. Two." {
		t.Errorf("calls = %q", calls)
	}
	if report.TextPath != "" {
		t.Errorf("TextPath = %q, want none without annotation", report.TextPath)
	}
	if _, err := os.Stat(textPathFor(wavPath)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unexpected annotated text file: %v", err)
	}
}

func TestSessionRunPlay(t *testing.T) {
	s, _ := newTestSession(t, testConfig(t))

	player := audio.NewMockPlayer()
	var rate int
	s.newPlayer = func(sampleRate int) (audio.Sink, error) {
		rate = sampleRate
		return player, nil
	}

	report, err := s.run(context.Background(), "Play me.", outputOptions{Play: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("player opened at %d Hz", rate)
	}
	if !bytes.Equal(player.Played(), report.Result.Bytes()) {
		t.Error("player did not receive the audio")
	}
	if !player.Closed() {
		t.Error("player was not closed")
	}
}

func TestSessionRunErrors(t *testing.T) {
	s, mock := newTestSession(t, testConfig(t))

	t.Run("empty text", func(t *testing.T) {
		_, err := s.run(context.Background(), "  \n", outputOptions{Stdout: io.Discard})
		if tts.CodeOf(err) != tts.ErrorCodeMissingText {
			t.Errorf("err = %v, want MISSING_TEXT", err)
		}
	})

	t.Run("no outputs", func(t *testing.T) {
		_, err := s.run(context.Background(), "Hi.", outputOptions{})
		if tts.CodeOf(err) != tts.ErrorCodeInvalidFormat {
			t.Errorf("err = %v, want INVALID_FORMAT", err)
		}
	})

	t.Run("device unavailable", func(t *testing.T) {
		s.newPlayer = func(int) (audio.Sink, error) { return nil, errors.New("no device") }
		wavPath := filepath.Join(t.TempDir(), "x.wav")
		_, err := s.run(context.Background(), "Hi.", outputOptions{WAVPath: wavPath, Play: true})
		if err == nil || !strings.Contains(err.Error(), "no device") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("engine failure", func(t *testing.T) {
		mock.SetFailure(errors.New("quota"))
		defer mock.ClearFailure()
		_, err := s.run(context.Background(), "Never cached.", outputOptions{Stdout: io.Discard})
		if tts.CodeOf(err) != tts.ErrorCodeTTSAPI {
			t.Errorf("err = %v, want TTS_API", err)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.run(ctx, "Too late.", outputOptions{Stdout: io.Discard})
		if tts.CodeOf(err) != tts.ErrorCodeCanceled {
			t.Errorf("err = %v, want CANCELED", err)
		}
	})
}

func TestNewSynthesizer(t *testing.T) {
	cfg := testConfig(t)

	synth, err := newSynthesizer(cfg, nil)
	if err != nil {
		t.Fatalf("mock engine: %v", err)
	}
	if _, ok := synth.(*engines.MockEngine); !ok {
		t.Errorf("got %T, want *engines.MockEngine", synth)
	}

	cfg.Engine = "cartesia"
	if _, err := newSynthesizer(cfg, nil); tts.CodeOf(err) != tts.ErrorCodeMissingAPIKey {
		t.Errorf("cartesia without key: err = %v, want MISSING_API_KEY", err)
	}

	cfg.Synthesis.APIKey = "key"
	if _, err := newSynthesizer(cfg, nil); err != nil {
		t.Errorf("cartesia with key: %v", err)
	}

	cfg.Engine = "espeak"
	if _, err := newSynthesizer(cfg, nil); !errors.Is(err, tts.ErrInvalidEngine) {
		t.Errorf("unknown engine: err = %v", err)
	}
}

func TestSidecarPath(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		wav   string
		input string
		want  string
	}{
		{"no input file", filepath.Join(dir, "notes.wav"), "", notes},
		{"other input file", filepath.Join(dir, "notes.wav"), filepath.Join(dir, "script.md"), notes},
		{"input file", filepath.Join(dir, "notes.wav"), notes, filepath.Join(dir, "notes.annotated.txt")},
		{"input file via dot-dot", dir + "/sub/../notes.wav", notes, dir + "/sub/../notes.annotated.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sidecarPath(tt.wav, tt.input); got != tt.want {
				t.Errorf("sidecarPath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTextPathFor(t *testing.T) {
	for in, want := range map[string]string{
		"out.wav":          "out.txt",
		"/tmp/a/b.WAV":     "/tmp/a/b.txt",
		"noext":            "noext.txt",
		"dir.v2/take.wave": "dir.v2/take.txt",
	} {
		if got := textPathFor(in); got != want {
			t.Errorf("textPathFor(%q) = %q, want %q", in, got, want)
		}
	}
}
