package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// AudioKeyParams is every parameter that changes synthesized bytes.
// Field order is part of the key format.
type AudioKeyParams struct {
	Text       string `json:"text"`
	VoiceID    string `json:"voiceId"`
	Model      string `json:"model"`
	SampleRate int    `json:"sampleRate"`
}

// Hash returns the lowercase hex SHA-256 digest of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// AudioCacheKey returns the content hash identifying one rendered audio file.
func AudioCacheKey(p AudioKeyParams) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding a struct of strings and an int cannot fail
	_ = enc.Encode(p)
	return Hash(string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))))
}
