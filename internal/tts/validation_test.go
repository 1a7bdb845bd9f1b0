package tts

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateEngineSelection(t *testing.T) {
	tests := []struct {
		name       string
		cliArg     string
		configured string
		want       EngineType
		wantErr    bool
	}{
		{name: "default", want: EngineCartesia},
		{name: "cli wins", cliArg: "mock", configured: "cartesia", want: EngineMock},
		{name: "configured", configured: " Mock ", want: EngineMock},
		{name: "explicit cartesia", cliArg: "CARTESIA", want: EngineCartesia},
		{name: "unknown", cliArg: "piper", want: EngineNone, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateEngineSelection(tt.cliArg, tt.configured)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidEngine) {
				t.Errorf("error = %v, want ErrInvalidEngine", err)
			}
			if tt.wantErr && !strings.Contains(err.Error(), "mock (offline tone") {
				t.Errorf("error %q does not describe the mock engine", err)
			}
			if got != tt.want {
				t.Errorf("engine = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSynthesisConfig_Validate(t *testing.T) {
	valid := SynthesisConfig{APIKey: "k", VoiceID: "v", Model: "sonic-2", SampleRate: 44100}

	tests := []struct {
		name        string
		mutate      func(*SynthesisConfig)
		credentials bool
		want        ErrorCode
	}{
		{name: "valid", mutate: func(*SynthesisConfig) {}, credentials: true},
		{name: "missing key", mutate: func(c *SynthesisConfig) { c.APIKey = " " }, credentials: true, want: ErrorCodeMissingAPIKey},
		{name: "key not required", mutate: func(c *SynthesisConfig) { c.APIKey = "" }},
		{name: "missing voice", mutate: func(c *SynthesisConfig) { c.VoiceID = "" }, want: ErrorCodeMissingVoiceID},
		{name: "missing model", mutate: func(c *SynthesisConfig) { c.Model = "" }, want: ErrorCodeInvalidFormat},
		{name: "bad sample rate", mutate: func(c *SynthesisConfig) { c.SampleRate = 12345 }, want: ErrorCodeInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate(tt.credentials)
			if CodeOf(err) != tt.want {
				t.Errorf("Validate() = %v, want code %q", err, tt.want)
			}
		})
	}
}

func TestValidateText(t *testing.T) {
	if err := ValidateText(" \n"); CodeOf(err) != ErrorCodeMissingText {
		t.Errorf("ValidateText(blank) = %v, want MISSING_TEXT", err)
	}
	if err := ValidateText("hi"); err != nil {
		t.Errorf("ValidateText(hi) = %v", err)
	}
}
