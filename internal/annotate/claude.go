package annotate

import (
	"context"
	"io"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakcache/internal/tts"
)

// DefaultClaudeModel is the model used when none is configured.
const DefaultClaudeModel = "claude-sonnet-4-20250514"

const defaultMaxTokens = 4096

// SystemPrompt instructs the model to insert Cartesia SSML tags.
const SystemPrompt = `You are a speech emotion annotator for the Cartesia TTS engine.

Your task: Insert Cartesia SSML tags into the input text to add natural prosody (emotion, speed, volume).

Available SSML tags:
- <emotion value="..."/> : Emotions: neutral, angry, excited, content, sad, scared, happy, curious, sarcastic, hesitant, confident, calm, surprised
- <speed ratio="..."/> : Speed multiplier: 0.6 to 1.5 (1.0 = default)
- <volume ratio="..."/> : Volume multiplier: 0.5 to 2.0 (1.0 = default)

Rules:
1. Analyze each sentence for its emotional tone, appropriate speed, and volume
2. Insert SSML tags BEFORE the sentence or phrase they apply to
3. Do NOT modify the original text content, only insert tags
4. Do NOT add any explanation, markdown, or wrapping. Output ONLY the annotated text
5. Use emotion tags liberally but speed/volume tags sparingly (only when clearly needed)
6. If the text is already neutral with no clear emotional variation, still add <emotion value="neutral"/> at the start

Example input:
やったー！テストに合格した！でも、次の試験が心配だな…

Example output:
<emotion value="excited"/> <speed ratio="1.2"/> やったー！テストに合格した！ <emotion value="anxious"/> <speed ratio="0.9"/> でも、次の試験が心配だな…`

// StreamPromptSuffix is appended to the system prompt for streamed
// annotation so the output can be cut into speech segments.
const StreamPromptSuffix = `

Streaming rule:
7. Output the marker ` + tts.Marker + ` between speech segments (after each sentence or natural pause). Never output it inside a sentence or inside a tag.

Example streamed output:
<emotion value="excited"/> <speed ratio="1.2"/> やったー！テストに合格した！` + tts.Marker + `<emotion value="anxious"/> <speed ratio="0.9"/> でも、次の試験が心配だな…`

// ClaudeAnnotator annotates text with the Anthropic Messages API.
type ClaudeAnnotator struct {
	client       anthropic.Client
	model        string
	systemPrompt string
	maxTokens    int64
	logger       *log.Logger
}

// NewClaudeAnnotator creates an annotator. An empty API key lets the SDK
// fall back to ANTHROPIC_API_KEY.
func NewClaudeAnnotator(opts Options) *ClaudeAnnotator {
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.MaxRetries != nil {
		clientOpts = append(clientOpts, option.WithMaxRetries(*opts.MaxRetries))
	}

	a := &ClaudeAnnotator{
		client:       anthropic.NewClient(clientOpts...),
		model:        opts.Model,
		systemPrompt: opts.SystemPrompt,
		maxTokens:    opts.MaxTokens,
		logger:       opts.Logger,
	}
	if a.model == "" {
		a.model = DefaultClaudeModel
	}
	if a.systemPrompt == "" {
		a.systemPrompt = SystemPrompt
	}
	if a.maxTokens <= 0 {
		a.maxTokens = defaultMaxTokens
	}
	if a.logger == nil {
		a.logger = log.New(io.Discard)
	}
	return a
}

// Provider returns "claude".
func (a *ClaudeAnnotator) Provider() string { return ProviderClaude }

func (a *ClaudeAnnotator) params(system, text string) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	}
}

// Annotate returns text with SSML tags inserted. If the model answers with
// no text, the input is returned unchanged.
func (a *ClaudeAnnotator) Annotate(ctx context.Context, text string) (string, error) {
	resp, err := a.client.Messages.New(ctx, a.params(a.systemPrompt, text))
	if err != nil {
		return "", tts.AsTTSError(err, tts.ErrorCodeAnnotation, "claude request failed")
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	a.logger.Debug("Annotated", "model", a.model, "in", resp.Usage.InputTokens, "out", resp.Usage.OutputTokens)

	if strings.TrimSpace(b.String()) == "" {
		return text, nil
	}
	return b.String(), nil
}

// Stream returns the annotated text as it is generated, with tts.Marker
// between speech segments.
func (a *ClaudeAnnotator) Stream(ctx context.Context, text string) (tts.TokenStream, error) {
	stream := a.client.Messages.NewStreaming(ctx, a.params(a.systemPrompt+StreamPromptSuffix, text))
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, tts.AsTTSError(err, tts.ErrorCodeAnnotation, "claude stream failed")
	}
	return &claudeStream{stream: stream}, nil
}

type claudeStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (s *claudeStream) Recv() (string, error) {
	for s.stream.Next() {
		evt := s.stream.Current()
		if evt.Type == "content_block_delta" && evt.Delta.Type == "text_delta" && evt.Delta.Text != "" {
			return evt.Delta.Text, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", tts.AsTTSError(err, tts.ErrorCodeAnnotation, "claude stream failed")
	}
	return "", io.EOF
}

func (s *claudeStream) Close() error {
	return s.stream.Close()
}

var _ tts.Annotator = (*ClaudeAnnotator)(nil)
