package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgnsrekt/speakcache/internal/tts"
)

// Voice is a Cartesia voice owned by the account of the API key.
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
	Language    string `json:"language"`
	CreatedAt   string `json:"created_at"`
}

type voiceList struct {
	Data    []Voice `json:"data"`
	HasMore bool    `json:"has_more"`
}

// ListVoices returns the voices owned by the account of apiKey.
func (e *CartesiaEngine) ListVoices(ctx context.Context, apiKey string) ([]Voice, error) {
	if apiKey == "" {
		return nil, tts.NewTTSError(tts.ErrorCodeMissingAPIKey, "Cartesia API key is required", nil)
	}
	if err := e.rateLimiter.Wait(ctx); err != nil {
		return nil, tts.AsTTSError(err, tts.ErrorCodeTTSAPI, "rate limit wait cancelled")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/voices/?is_owner=true", nil)
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeTTSAPI, "failed to build request", err)
	}
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("Cartesia-Version", e.version)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, tts.AsTTSError(err, tts.ErrorCodeTTSAPI, "voice list failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, tts.NewTTSError(tts.ErrorCodeTTSAPI, "voice list failed",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt))))
	}

	var list voiceList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeTTSAPI, "unable to decode voice list", err)
	}
	if list.HasMore {
		e.logger.Debug("Voice list truncated by the server", "voices", len(list.Data))
	}
	return list.Data, nil
}
