package tts

import (
	"errors"
	"fmt"
	"strings"
)

// SupportedProviders lists the annotation providers accepted by the CLI.
var SupportedProviders = []string{"claude", "sentences"}

// UserMessage renders err as a single line suitable for a terminal user.
func UserMessage(err error) string {
	var te *TTSError
	if !errors.As(err, &te) {
		return err.Error()
	}

	cause := ""
	if te.Cause != nil {
		cause = te.Cause.Error()
	}

	switch te.Code {
	case ErrorCodeMissingAPIKey:
		return "API key is required. Set CARTESIA_API_KEY environment variable or add apiKey to the config file."
	case ErrorCodeMissingVoiceID:
		return "Voice ID is required. Use --voice-id flag or set CARTESIA_VOICE_ID environment variable."
	case ErrorCodeMissingText:
		return "Text is required. Use --text flag or --input to read from a file."
	case ErrorCodeInvalidFormat:
		return "Invalid format: " + te.Message
	case ErrorCodeFileRead:
		return "Failed to read file: " + te.Path()
	case ErrorCodeFileWrite:
		return "Failed to write file: " + te.Path()
	case ErrorCodeTTSAPI:
		return "Cartesia TTS API error: " + cause
	case ErrorCodeTTSStream:
		return fmt.Sprintf("TTS stream failed at segment %d: %s", te.Segment(), cause)
	case ErrorCodeAnnotation:
		return "Emotion annotation failed: " + cause
	case ErrorCodeUnsupportedProvider:
		p, _ := te.Context[ContextProvider].(string)
		return fmt.Sprintf("Unsupported annotation provider %q. Supported: %s.", p, strings.Join(SupportedProviders, ", "))
	case ErrorCodeCanceled:
		return "Canceled."
	default:
		return te.Error()
	}
}
