package tts

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakcache/internal/cache"
)

// DefaultReplayChunkSize is the chunk size used when replaying cached audio.
const DefaultReplayChunkSize = 32 * 1024

// PipelineConfig wires a Pipeline to its collaborators.
type PipelineConfig struct {
	// Synthesizer renders segments. Required.
	Synthesizer Synthesizer

	// Annotator, when set, splits and enriches the text before synthesis.
	Annotator Annotator

	// AudioCache and Files enable audio caching. Set both or neither.
	AudioCache AudioCache
	Files      AudioFiles

	// SkipCachedAudio delivers no bytes for segments served from the cache.
	SkipCachedAudio bool

	// ReplayChunkSize bounds the chunks delivered for cached segments.
	ReplayChunkSize int

	// OnState observes state transitions. segment is -1 outside a segment.
	OnState func(segment int, state State)

	Logger *log.Logger
}

// Pipeline turns text into an ordered stream of audio chunks, reusing
// cached renders where possible. Segments are processed strictly one after
// another; a Pipeline may be reused for many runs but not concurrently.
type Pipeline struct {
	synth     Synthesizer
	annotator Annotator
	cache     AudioCache
	files     AudioFiles

	skipCached bool
	chunkSize  int
	onState    func(int, State)
	logger     *log.Logger
}

// NewPipeline validates cfg and creates a pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Synthesizer == nil {
		return nil, ErrNoSynthesizer
	}
	if (cfg.AudioCache == nil) != (cfg.Files == nil) {
		return nil, errors.New("audio cache and audio files must be configured together")
	}

	p := &Pipeline{
		synth:      cfg.Synthesizer,
		annotator:  cfg.Annotator,
		cache:      cfg.AudioCache,
		files:      cfg.Files,
		skipCached: cfg.SkipCachedAudio,
		chunkSize:  cfg.ReplayChunkSize,
		onState:    cfg.OnState,
		logger:     cfg.Logger,
	}
	if p.chunkSize <= 0 {
		p.chunkSize = DefaultReplayChunkSize
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard)
	}
	return p, nil
}

// Run synthesizes text and calls onChunk with every audio chunk, in text
// order, as soon as it is available. onChunk may be nil.
//
// Whitespace-only text returns an empty result without calling any
// collaborator. The first error aborts the run; chunks already delivered
// are not taken back.
func (p *Pipeline) Run(ctx context.Context, text string, cfg SynthesisConfig, onChunk func([]byte) error) (*Result, error) {
	result := &Result{Chunks: [][]byte{}, Segments: []string{}}
	if strings.TrimSpace(text) == "" {
		return result, nil
	}

	p.setState(-1, StateIdle)
	if err := ctx.Err(); err != nil {
		return nil, p.fail(-1, canceled(err))
	}

	src, err := p.segmentSource(ctx, text)
	if err != nil {
		return nil, p.fail(-1, err)
	}
	defer src.Close() //nolint:errcheck

	for i := 0; ; i++ {
		seg, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, p.fail(i, AsTTSError(err, ErrorCodeAnnotation, "annotation stream failed"))
		}
		if err := ctx.Err(); err != nil {
			return nil, p.fail(i, canceled(err))
		}

		if err := p.runSegment(ctx, i, seg, cfg, result, onChunk); err != nil {
			return nil, p.fail(i, err)
		}
	}

	p.setState(-1, StateDone)
	p.logger.Debug("Pipeline finished", "segments", len(result.Segments), "hits", result.CacheHits, "misses", result.CacheMisses)
	return result, nil
}

type segmentSource interface {
	Next() (string, error)
	Close() error
}

func (p *Pipeline) segmentSource(ctx context.Context, text string) (segmentSource, error) {
	if p.annotator == nil {
		return &singleSegment{text: text}, nil
	}

	p.setState(-1, StateAnnotating)
	stream, err := p.annotator.Stream(ctx, text)
	if err != nil {
		return nil, AsTTSError(err, ErrorCodeAnnotation, "annotation failed")
	}
	return NewSegmentReader(stream), nil
}

func (p *Pipeline) runSegment(ctx context.Context, i int, seg string, cfg SynthesisConfig, result *Result, onChunk func([]byte) error) error {
	result.Segments = append(result.Segments, seg)
	key := cfg.CacheKey(seg)

	if p.cache != nil {
		p.setState(i, StateCacheLookup)
		path, ok, err := p.cache.GetPath(ctx, key)
		if err != nil {
			return NewTTSError(ErrorCodeFileRead, "audio cache lookup failed", err)
		}
		if ok {
			served, err := p.replay(ctx, i, path, result, onChunk)
			if err != nil {
				return err
			}
			if served {
				result.CacheHits++
				p.logger.Debug("Cache hit", "segment", i, "key", key)
				return nil
			}
		}
	}

	result.CacheMisses++
	p.logger.Debug("Cache miss", "segment", i, "key", key)
	return p.synthesize(ctx, i, seg, key, cfg, result, onChunk)
}

// replay delivers the cached audio at path. It reports false when the file
// cannot be read, in which case the segment is synthesized again.
func (p *Pipeline) replay(ctx context.Context, i int, path string, result *Result, onChunk func([]byte) error) (bool, error) {
	if p.skipCached {
		p.setState(i, StateCacheHit)
		return true, nil
	}

	rc, err := p.files.Open(path)
	if err != nil {
		p.logger.Warn("Cached audio unreadable, synthesizing again", "path", path, "err", err)
		return false, nil
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		p.logger.Warn("Cached audio unreadable, synthesizing again", "path", path, "err", err)
		return false, nil
	}

	p.setState(i, StateCacheHit)
	for off := 0; off < len(data); off += p.chunkSize {
		if err := ctx.Err(); err != nil {
			return false, canceled(err)
		}
		chunk := data[off:min(off+p.chunkSize, len(data))]
		if err := deliver(result, onChunk, chunk); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (p *Pipeline) synthesize(ctx context.Context, i int, seg, key string, cfg SynthesisConfig, result *Result, onChunk func([]byte) error) error {
	p.setState(i, StateSynthesizing)
	stream, err := p.synth.Generate(ctx, SynthesisRequest{SynthesisConfig: cfg, Text: seg})
	if err != nil {
		return AsTTSError(err, ErrorCodeTTSAPI, "synthesis request failed")
	}
	defer stream.Close() //nolint:errcheck

	if p.cache == nil {
		return p.stream(ctx, i, stream, nil, result, onChunk)
	}

	w, err := p.files.Create(key)
	if err != nil {
		return NewFileWriteError(key, err)
	}
	if err := p.stream(ctx, i, stream, w, result, onChunk); err != nil {
		_ = w.Abort()
		return err
	}

	p.setState(i, StateCachePersist)
	path, size, err := w.Commit()
	if err != nil {
		return NewFileWriteError(key, err)
	}
	if err := p.cache.Put(ctx, key, path, size); err != nil {
		return NewTTSError(ErrorCodeFileWrite, "audio cache update failed", err).WithContext(ContextPath, path)
	}
	return nil
}

func (p *Pipeline) stream(ctx context.Context, i int, stream AudioStream, w cache.AudioWriter, result *Result, onChunk func([]byte) error) error {
	p.setState(i, StateStreaming)
	for {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return canceled(ctx.Err())
			}
			return NewStreamError(i, err)
		}
		if len(chunk) == 0 {
			continue
		}
		if w != nil {
			if _, err := w.Write(chunk); err != nil {
				return NewTTSError(ErrorCodeFileWrite, "failed to write cached audio", err)
			}
		}
		if err := deliver(result, onChunk, chunk); err != nil {
			return err
		}
	}
}

func deliver(result *Result, onChunk func([]byte) error, chunk []byte) error {
	result.Chunks = append(result.Chunks, chunk)
	if onChunk == nil {
		return nil
	}
	return onChunk(chunk)
}

func (p *Pipeline) setState(segment int, s State) {
	if p.onState != nil {
		p.onState(segment, s)
	}
}

func (p *Pipeline) fail(segment int, err error) error {
	p.setState(segment, StateFailed)
	p.logger.Debug("Pipeline failed", "segment", segment, "err", err)
	return err
}

func canceled(err error) error {
	return NewTTSError(ErrorCodeCanceled, "pipeline canceled", err)
}

type singleSegment struct {
	text string
	done bool
}

func (s *singleSegment) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	s.done = true
	return s.text, nil
}

func (s *singleSegment) Close() error { return nil }
