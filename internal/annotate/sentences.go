package annotate

import (
	"context"
	"strings"

	"github.com/dgnsrekt/speakcache/internal/tts"
)

// SentenceAnnotator splits text into sentences without adding markup.
type SentenceAnnotator struct {
	parser *tts.SentenceParser
}

// NewSentenceAnnotator creates a local sentence annotator.
func NewSentenceAnnotator(opts ...tts.ParserOption) *SentenceAnnotator {
	return &SentenceAnnotator{parser: tts.NewSentenceParser(opts...)}
}

// Provider returns "sentences".
func (a *SentenceAnnotator) Provider() string { return ProviderSentences }

// Annotate returns the sentences joined by single spaces.
func (a *SentenceAnnotator) Annotate(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", tts.AsTTSError(err, tts.ErrorCodeAnnotation, "annotation canceled")
	}
	return strings.Join(a.parser.Sentences(text), " "), nil
}

// Stream yields one token per sentence with tts.Marker between them.
func (a *SentenceAnnotator) Stream(ctx context.Context, text string) (tts.TokenStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, tts.AsTTSError(err, tts.ErrorCodeAnnotation, "annotation canceled")
	}
	sentences := a.parser.Sentences(text)
	tokens := make([]string, 0, len(sentences))
	for i, s := range sentences {
		if i < len(sentences)-1 {
			s += tts.Marker
		}
		tokens = append(tokens, s)
	}
	return tts.NewTokenSlice(tokens...), nil
}

var _ tts.Annotator = (*SentenceAnnotator)(nil)
