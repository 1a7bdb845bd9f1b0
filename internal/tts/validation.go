package tts

import (
	"fmt"
	"slices"
	"strings"
)

// ValidSampleRates lists the PCM sample rates accepted for synthesis.
var ValidSampleRates = []int{8000, 16000, 22050, 24000, 44100, 48000}

// ValidateEngineSelection resolves the engine to use. The CLI argument takes
// precedence over the configured engine; an empty selection falls back to
// Cartesia.
func ValidateEngineSelection(cliArg, configured string) (EngineType, error) {
	engineType := strings.ToLower(strings.TrimSpace(cliArg))
	if engineType == "" {
		engineType = strings.ToLower(strings.TrimSpace(configured))
	}

	switch engineType {
	case "", "cartesia":
		return EngineCartesia, nil
	case "mock":
		return EngineMock, nil
	default:
		return EngineNone, fmt.Errorf("%w: %s\n\nSupported engines:\n  - cartesia (Cartesia TTS API)\n  - mock (offline tone, for testing)", ErrInvalidEngine, engineType)
	}
}

// Validate checks cfg before any network call is made. Credentials are only
// required when requireCredentials is set.
func (c SynthesisConfig) Validate(requireCredentials bool) error {
	if requireCredentials && strings.TrimSpace(c.APIKey) == "" {
		return NewTTSError(ErrorCodeMissingAPIKey, "API key is required", nil)
	}
	if strings.TrimSpace(c.VoiceID) == "" {
		return NewTTSError(ErrorCodeMissingVoiceID, "voice ID is required", nil)
	}
	if strings.TrimSpace(c.Model) == "" {
		return NewTTSError(ErrorCodeInvalidFormat, "model is required", nil)
	}
	if !slices.Contains(ValidSampleRates, c.SampleRate) {
		return NewTTSError(ErrorCodeInvalidFormat,
			fmt.Sprintf("sample rate must be one of %v, got %d", ValidSampleRates, c.SampleRate), nil)
	}
	return nil
}

// ValidateText rejects text with nothing to speak.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return NewTTSError(ErrorCodeMissingText, "text is required", nil)
	}
	return nil
}
