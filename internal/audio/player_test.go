//go:build !nocgo
// +build !nocgo

package audio

import "testing"

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  PlayerConfig
		wantErr bool
	}{
		{"default mono", DefaultPlayerConfig(44100), false},
		{"stereo", PlayerConfig{SampleRate: 48000, Channels: 2}, false},
		{"low rate", PlayerConfig{SampleRate: 8000, Channels: 1}, false},
		{"zero rate", PlayerConfig{Channels: 1}, true},
		{"five channels", PlayerConfig{SampleRate: 44100, Channels: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateConfig(tt.config); (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
