package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakcache/internal/annotate"
	"github.com/dgnsrekt/speakcache/internal/audio"
	"github.com/dgnsrekt/speakcache/internal/cache"
	"github.com/dgnsrekt/speakcache/internal/tts"
	"github.com/dgnsrekt/speakcache/internal/tts/engines"
	"github.com/google/uuid"
)

// outputOptions selects where the audio of a run goes.
type outputOptions struct {
	// Stdout receives raw PCM unless nil.
	Stdout io.Writer

	// WAVPath, when set, receives the audio as a WAV file and the
	// annotated text as a .txt file next to it.
	WAVPath string

	// Play streams the audio to the default device.
	Play bool

	// InputPath is the file the text was read from, if any. Outputs never
	// overwrite it.
	InputPath string
}

func (o outputOptions) empty() bool {
	return o.Stdout == nil && o.WAVPath == "" && !o.Play
}

// runReport summarizes one synthesis run.
type runReport struct {
	RunID     string
	Result    *tts.Result
	Annotated string
	TextPath  string
	Eviction  *cache.EvictionReport
}

// session owns the collaborators shared by the runs of one invocation.
type session struct {
	cfg       *Config
	cache     *cache.CacheManager
	synth     tts.Synthesizer
	annotator tts.Annotator
	logger    *log.Logger

	// newPlayer opens the audio device; replaced in tests.
	newPlayer func(sampleRate int) (audio.Sink, error)
}

// newSynthesizer builds the engine selected by cfg.
func newSynthesizer(cfg *Config, logger *log.Logger) (tts.Synthesizer, error) {
	engine, err := tts.ValidateEngineSelection(cfg.Engine, "")
	if err != nil {
		return nil, err
	}
	if err := cfg.Synthesis.Validate(engine == tts.EngineCartesia); err != nil {
		return nil, err
	}

	switch engine {
	case tts.EngineMock:
		return engines.NewMockEngine(), nil
	default:
		return engines.NewCartesiaEngine(engines.CartesiaConfig{Logger: logger}), nil
	}
}

// newSession opens the cache and wires synth behind it. A nil synth
// selects the configured engine.
func newSession(cfg *Config, synth tts.Synthesizer, logger *log.Logger) (*session, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if synth == nil {
		var err error
		if synth, err = newSynthesizer(cfg, logger); err != nil {
			return nil, err
		}
	}

	cm, err := cache.NewCacheManager(cfg.CacheConfig(), cache.WithLogger(logger.WithPrefix("cache")))
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeFileWrite, "unable to open cache", err).WithContext(tts.ContextPath, cfg.DBPath)
	}

	s := &session{
		cfg:    cfg,
		cache:  cm,
		synth:  synth,
		logger: logger,
		newPlayer: openPlayer,
	}

	if cfg.Annotate {
		a, err := annotate.New(cfg.Provider, annotate.Options{
			APIKey: cfg.ProviderAPIKey,
			Model:  cfg.ProviderModel,
			Logger: logger.WithPrefix("annotate"),
		})
		if err != nil {
			_ = cm.Close()
			return nil, err
		}
		s.annotator = annotate.NewCachingAnnotator(a, cm.Annotations(), logger)
	}
	return s, nil
}

func openPlayer(sampleRate int) (audio.Sink, error) {
	return audio.NewPlayer(audio.DefaultPlayerConfig(sampleRate))
}

func (s *session) Close() error {
	return s.cache.Close()
}

// run synthesizes text into the outputs in out.
func (s *session) run(ctx context.Context, text string, out outputOptions) (*runReport, error) {
	if err := tts.ValidateText(text); err != nil {
		return nil, err
	}
	if out.empty() {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidFormat,
			"refusing to write raw PCM to a terminal; use --output, --play or redirect stdout", nil)
	}
	if samePath(out.WAVPath, out.InputPath) {
		return nil, tts.NewTTSError(tts.ErrorCodeFileWrite, "output would overwrite the input file", nil).
			WithContext(tts.ContextPath, out.WAVPath)
	}

	sinks, closeSinks, err := s.openSinks(out, s.cfg.Synthesis.SampleRate)
	if err != nil {
		return nil, err
	}

	p, err := tts.NewPipeline(tts.PipelineConfig{
		Synthesizer: s.synth,
		Annotator:   s.annotator,
		AudioCache:  s.cache.Audio(),
		Files:       s.cache,
		// files and the device need every byte
		SkipCachedAudio: !s.cfg.Replay && out.WAVPath == "" && !out.Play,
		OnState: func(segment int, state tts.State) {
			s.logger.Debug("State", "segment", segment, "state", state)
		},
		Logger: s.logger.WithPrefix("pipeline"),
	})
	if err != nil {
		_ = closeSinks()
		return nil, err
	}

	runID := uuid.NewString()
	s.logger.Info("Run started", "run", runID, "chars", len([]rune(text)))

	result, err := p.Run(ctx, text, s.cfg.Synthesis, func(chunk []byte) error {
		for _, w := range sinks {
			if _, err := w.Write(chunk); err != nil {
				return tts.NewTTSError(tts.ErrorCodeFileWrite, "unable to write audio", err)
			}
		}
		return nil
	})
	if cerr := closeSinks(); err == nil && cerr != nil {
		err = tts.NewFileWriteError(out.WAVPath, cerr)
	}
	if err != nil {
		s.logger.Error("Run failed", "run", runID, "err", err)
		return nil, err
	}

	report := &runReport{
		RunID:     runID,
		Result:    result,
		Annotated: strings.Join(result.Segments, "\n"),
	}

	if s.annotator != nil && out.WAVPath != "" && strings.TrimSpace(report.Annotated) != strings.TrimSpace(text) {
		report.TextPath = sidecarPath(out.WAVPath, out.InputPath)
		if err := os.WriteFile(report.TextPath, []byte(report.Annotated+"\n"), 0o644); err != nil { //nolint:gosec
			return nil, tts.NewFileWriteError(report.TextPath, err)
		}
	}

	provider := ""
	if s.annotator != nil {
		provider = s.annotator.Provider()
	}
	if err := s.cache.History().Record(ctx, cache.Utterance{
		RunID:         runID,
		Text:          text,
		AnnotatedText: report.Annotated,
		Provider:      provider,
		VoiceID:       s.cfg.Synthesis.VoiceID,
		Model:         s.cfg.Synthesis.Model,
		SampleRate:    s.cfg.Synthesis.SampleRate,
		Segments:      result.Segments,
	}); err != nil {
		s.logger.Warn("Could not record history", "run", runID, "err", err)
	}

	if s.cfg.AutoEvict {
		report.Eviction, err = s.cache.Evict(ctx)
		if err != nil {
			s.logger.Warn("Eviction failed", "err", err)
		}
	}

	s.logger.Info("Run finished", "run", runID, "segments", len(result.Segments),
		"hits", result.CacheHits, "misses", result.CacheMisses)
	return report, nil
}

// replay writes the cached audio of the recorded run id to the outputs in
// out. Nothing is synthesized; a run whose audio was evicted fails before
// any output is opened.
func (s *session) replay(ctx context.Context, id uint, out outputOptions) (cache.Utterance, error) {
	if out.empty() {
		return cache.Utterance{}, tts.NewTTSError(tts.ErrorCodeInvalidFormat,
			"refusing to write raw PCM to a terminal; use --output, --play or redirect stdout", nil)
	}
	u, ok, err := s.cache.History().Get(ctx, id)
	if err != nil {
		return u, tts.NewTTSError(tts.ErrorCodeFileRead, "unable to read history", err)
	}
	if !ok {
		return u, tts.NewTTSError(tts.ErrorCodeFileRead, fmt.Sprintf("no utterance with id %d", id), nil)
	}
	if len(u.Segments) == 0 {
		return u, tts.NewTTSError(tts.ErrorCodeFileRead,
			fmt.Sprintf("utterance %d has no recorded audio; speak the text again", id), nil)
	}

	rate := u.SampleRate
	if rate == 0 {
		rate = s.cfg.Synthesis.SampleRate
	}
	cfg := tts.SynthesisConfig{VoiceID: u.VoiceID, Model: u.Model, SampleRate: rate}

	paths := make([]string, len(u.Segments))
	for i, seg := range u.Segments {
		path, ok, err := s.cache.Audio().GetPath(ctx, cfg.CacheKey(seg))
		if err != nil {
			return u, tts.NewTTSError(tts.ErrorCodeFileRead, "audio cache lookup failed", err)
		}
		if !ok {
			return u, tts.NewTTSError(tts.ErrorCodeFileRead,
				fmt.Sprintf("audio of utterance %d was evicted; speak the text again", id), nil).
				WithContext(tts.ContextSegment, i)
		}
		paths[i] = path
	}

	sinks, closeSinks, err := s.openSinks(out, rate)
	if err != nil {
		return u, err
	}
	w := io.MultiWriter(sinks...)
	for i, path := range paths {
		if ctx.Err() != nil {
			err = tts.NewTTSError(tts.ErrorCodeCanceled, "replay canceled", ctx.Err())
			break
		}
		if err = s.copyCached(w, path); err != nil {
			err = tts.AsTTSError(err, tts.ErrorCodeFileRead, "unable to replay audio").WithContext(tts.ContextSegment, i)
			break
		}
	}
	if cerr := closeSinks(); err == nil && cerr != nil {
		err = tts.NewFileWriteError(out.WAVPath, cerr)
	}
	if err != nil {
		return u, err
	}
	s.logger.Info("Replayed", "id", id, "run", u.RunID, "segments", len(paths))
	return u, nil
}

func (s *session) copyCached(w io.Writer, path string) error {
	r, err := s.cache.Open(path)
	if err != nil {
		return tts.NewFileReadError(path, err)
	}
	defer r.Close() //nolint:errcheck
	if _, err := io.Copy(w, r); err != nil {
		return tts.NewTTSError(tts.ErrorCodeFileWrite, "unable to write audio", err)
	}
	return nil
}

// openSinks opens every requested output at sampleRate. The returned func
// closes them, finalizing the WAV file and draining the player.
func (s *session) openSinks(out outputOptions, sampleRate int) ([]io.Writer, func() error, error) {
	var (
		sinks   []io.Writer
		closers []io.Closer
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	}

	if out.Stdout != nil {
		sinks = append(sinks, out.Stdout)
	}
	if out.WAVPath != "" {
		if err := os.MkdirAll(filepath.Dir(out.WAVPath), 0o755); err != nil { //nolint:gosec
			return nil, nil, tts.NewFileWriteError(out.WAVPath, err)
		}
		f, err := audio.CreateWAV(out.WAVPath, audio.PCM16Mono(sampleRate))
		if err != nil {
			return nil, nil, tts.NewFileWriteError(out.WAVPath, err)
		}
		sinks = append(sinks, f)
		closers = append(closers, f)
	}
	if out.Play {
		p, err := s.newPlayer(sampleRate)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("unable to open audio device: %w", err)
		}
		sinks = append(sinks, p)
		closers = append(closers, p)
	}
	return sinks, closeAll, nil
}

// textPathFor returns the annotated text path for a WAV path.
func textPathFor(wavPath string) string {
	return strings.TrimSuffix(wavPath, filepath.Ext(wavPath)) + ".txt"
}

// sidecarPath returns where the annotated text of a run goes. When the
// usual path is the input file itself, ".annotated.txt" is used instead.
func sidecarPath(wavPath, inputPath string) string {
	p := textPathFor(wavPath)
	if samePath(p, inputPath) {
		return strings.TrimSuffix(wavPath, filepath.Ext(wavPath)) + ".annotated.txt"
	}
	return p
}

// samePath reports whether a and b name the same file, following links
// when both exist.
func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if fa, err := os.Stat(a); err == nil {
		if fb, err := os.Stat(b); err == nil {
			return os.SameFile(fa, fb)
		}
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
