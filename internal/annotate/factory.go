package annotate

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakcache/internal/tts"
)

// Provider names accepted by New.
const (
	ProviderClaude    = "claude"
	ProviderSentences = "sentences"
)

// Options configures an annotator. Fields a provider does not use are
// ignored.
type Options struct {
	// APIKey for remote providers.
	APIKey string

	// Model overrides the provider's default model.
	Model string

	// SystemPrompt overrides the default annotation prompt.
	SystemPrompt string

	// MaxTokens bounds the model response (defaults to 4096).
	MaxTokens int64

	// BaseURL and HTTPClient override the API endpoint and transport.
	BaseURL    string
	HTTPClient *http.Client

	// MaxRetries overrides the SDK retry count when set.
	MaxRetries *int

	Logger *log.Logger
}

// New returns the annotator for provider. Unknown providers yield an
// UNSUPPORTED_PROVIDER error.
func New(provider string, opts Options) (tts.Annotator, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderClaude:
		return NewClaudeAnnotator(opts), nil
	case ProviderSentences:
		return NewSentenceAnnotator(), nil
	default:
		return nil, tts.NewUnsupportedProviderError(provider)
	}
}
