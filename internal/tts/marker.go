package tts

import (
	"errors"
	"io"
	"strings"
)

// Marker separates speech segments inside an annotator's streamed output.
const Marker = "[SEP]"

// SegmentReader splits a token stream into speech segments at Marker.
// A marker may be split across any number of tokens.
//
// Segments ending at a marker are trimmed and dropped when empty. Whatever
// remains when the stream ends is returned as the final segment untrimmed.
type SegmentReader struct {
	src     TokenStream
	buf     string
	pending []string
	done    bool
}

// NewSegmentReader reads segments from src.
func NewSegmentReader(src TokenStream) *SegmentReader {
	return &SegmentReader{src: src}
}

// Next returns the next segment, or io.EOF when the stream is exhausted.
// Errors from the underlying stream are returned as is.
func (r *SegmentReader) Next() (string, error) {
	for {
		if len(r.pending) > 0 {
			seg := r.pending[0]
			r.pending = r.pending[1:]
			return seg, nil
		}
		if r.done {
			return "", io.EOF
		}

		tok, err := r.src.Recv()
		if errors.Is(err, io.EOF) {
			r.done = true
			if r.buf != "" {
				seg := r.buf
				r.buf = ""
				return seg, nil
			}
			continue
		}
		if err != nil {
			return "", err
		}

		r.buf += tok
		for {
			i := strings.Index(r.buf, Marker)
			if i < 0 {
				break
			}
			if seg := strings.TrimSpace(r.buf[:i]); seg != "" {
				r.pending = append(r.pending, seg)
			}
			r.buf = r.buf[i+len(Marker):]
		}
	}
}

// Close closes the underlying stream.
func (r *SegmentReader) Close() error {
	return r.src.Close()
}

// SplitMarked splits a complete token sequence into segments.
func SplitMarked(tokens ...string) []string {
	r := NewSegmentReader(NewTokenSlice(tokens...))
	var out []string
	for {
		seg, err := r.Next()
		if err != nil {
			return out
		}
		out = append(out, seg)
	}
}

// tokenSlice is a TokenStream over fixed tokens.
type tokenSlice struct {
	tokens []string
}

// NewTokenSlice returns a TokenStream yielding tokens in order.
func NewTokenSlice(tokens ...string) TokenStream {
	return &tokenSlice{tokens: tokens}
}

func (s *tokenSlice) Recv() (string, error) {
	if len(s.tokens) == 0 {
		return "", io.EOF
	}
	tok := s.tokens[0]
	s.tokens = s.tokens[1:]
	return tok, nil
}

func (s *tokenSlice) Close() error {
	s.tokens = nil
	return nil
}
