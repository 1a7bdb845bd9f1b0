package annotate

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakcache/internal/tts"
)

// AnnotationStore persists annotated text per (text, provider).
// *cache.AnnotationCache implements it.
type AnnotationStore interface {
	Get(ctx context.Context, text, provider string) (string, bool, error)
	Put(ctx context.Context, text, provider, annotated string) error
}

// CachingAnnotator serves annotations from a store and records new ones.
// The stored value is the full streamed output, markers included. Store
// failures are logged and never fail an annotation.
type CachingAnnotator struct {
	next   tts.Annotator
	store  AnnotationStore
	logger *log.Logger
}

// NewCachingAnnotator wraps next with store. logger may be nil.
func NewCachingAnnotator(next tts.Annotator, store AnnotationStore, logger *log.Logger) *CachingAnnotator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &CachingAnnotator{next: next, store: store, logger: logger}
}

// Provider returns the wrapped annotator's provider.
func (c *CachingAnnotator) Provider() string { return c.next.Provider() }

// Stream replays a cached annotation as a single token, or streams from the
// wrapped annotator and stores the output once the stream ends cleanly.
func (c *CachingAnnotator) Stream(ctx context.Context, text string) (tts.TokenStream, error) {
	provider := c.next.Provider()
	annotated, ok, err := c.store.Get(ctx, text, provider)
	if err != nil {
		c.logger.Warn("Annotation cache lookup failed", "provider", provider, "err", err)
	}
	if ok {
		c.logger.Debug("Annotation cache hit", "provider", provider)
		return tts.NewTokenSlice(annotated), nil
	}

	upstream, err := c.next.Stream(ctx, text)
	if err != nil {
		return nil, err
	}
	return &teeStream{ctx: ctx, parent: c, text: text, provider: provider, upstream: upstream}, nil
}

// Annotate returns the annotation with markers replaced by spaces.
func (c *CachingAnnotator) Annotate(ctx context.Context, text string) (string, error) {
	stream, err := c.Stream(ctx, text)
	if err != nil {
		return "", err
	}
	reader := tts.NewSegmentReader(stream)
	defer reader.Close() //nolint:errcheck

	var segments []string
	for {
		seg, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", tts.AsTTSError(err, tts.ErrorCodeAnnotation, "annotation stream failed")
		}
		segments = append(segments, strings.TrimSpace(seg))
	}
	return strings.Join(segments, " "), nil
}

type teeStream struct {
	ctx      context.Context
	parent   *CachingAnnotator
	text     string
	provider string
	upstream tts.TokenStream
	buf      strings.Builder
}

func (s *teeStream) Recv() (string, error) {
	tok, err := s.upstream.Recv()
	if errors.Is(err, io.EOF) {
		s.persist()
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	s.buf.WriteString(tok)
	return tok, nil
}

func (s *teeStream) persist() {
	if strings.TrimSpace(s.buf.String()) == "" {
		return
	}
	if err := s.parent.store.Put(s.ctx, s.text, s.provider, s.buf.String()); err != nil {
		s.parent.logger.Warn("Annotation cache update failed", "provider", s.provider, "err", err)
	}
	s.buf.Reset()
}

func (s *teeStream) Close() error {
	return s.upstream.Close()
}

var _ tts.Annotator = (*CachingAnnotator)(nil)
