package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgnsrekt/speakcache/internal/tts"
)

type capturedRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
	System []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

func messageJSON(text string) string {
	return fmt.Sprintf(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",`+
		`"content":[{"type":"text","text":%q}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":7}}`, text)
}

func sseBody(deltas ...string) string {
	var b strings.Builder
	event := func(name, data string) {
		fmt.Fprintf(&b, "event: %s\ndata: %s\n\n", name, data)
	}
	event("message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant",`+
		`"model":"claude-sonnet-4-20250514","content":[],"stop_reason":null,"usage":{"input_tokens":3,"output_tokens":1}}}`)
	event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
	for _, d := range deltas {
		data, _ := json.Marshal(map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]string{"type": "text_delta", "text": d},
		})
		event("content_block_delta", string(data))
	}
	event("content_block_stop", `{"type":"content_block_stop","index":0}`)
	event("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}`)
	event("message_stop", `{"type":"message_stop"}`)
	return b.String()
}

func newClaudeServer(t *testing.T, handler func(w http.ResponseWriter, req capturedRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req capturedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testAnnotator(url string) *ClaudeAnnotator {
	retries := 0
	return NewClaudeAnnotator(Options{APIKey: "test-key", BaseURL: url + "/", MaxRetries: &retries})
}

func TestClaudeAnnotator_Annotate(t *testing.T) {
	annotated := `<emotion value="excited"/> こんにちは！ <emotion value="neutral"/> 今日はいい天気ですね。`
	var got capturedRequest
	srv := newClaudeServer(t, func(w http.ResponseWriter, req capturedRequest) {
		got = req
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageJSON(annotated)))
	})

	result, err := testAnnotator(srv.URL).Annotate(context.Background(), "こんにちは！今日はいい天気ですね。")
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	if result != annotated {
		t.Errorf("Annotate = %q, want %q", result, annotated)
	}

	if got.Model != DefaultClaudeModel {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.System) != 1 || !strings.Contains(got.System[0].Text, "SSML") {
		t.Errorf("system prompt missing SSML instructions: %+v", got.System)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content[0].Text != "こんにちは！今日はいい天気ですね。" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestClaudeAnnotator_AnnotateEmptyReturnsInput(t *testing.T) {
	srv := newClaudeServer(t, func(w http.ResponseWriter, _ capturedRequest) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageJSON("")))
	})

	result, err := testAnnotator(srv.URL).Annotate(context.Background(), "元のテキスト")
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	if result != "元のテキスト" {
		t.Errorf("Annotate = %q, want input", result)
	}
}

func TestClaudeAnnotator_Errors(t *testing.T) {
	srv := newClaudeServer(t, func(w http.ResponseWriter, _ capturedRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})
	a := testAnnotator(srv.URL)

	if _, err := a.Annotate(context.Background(), "テスト"); tts.CodeOf(err) != tts.ErrorCodeAnnotation {
		t.Errorf("Annotate error = %v, want ANNOTATION", err)
	}
	if _, err := a.Stream(context.Background(), "テスト"); tts.CodeOf(err) != tts.ErrorCodeAnnotation {
		t.Errorf("Stream error = %v, want ANNOTATION", err)
	}
}

func TestClaudeAnnotator_Stream(t *testing.T) {
	var got capturedRequest
	srv := newClaudeServer(t, func(w http.ResponseWriter, req capturedRequest) {
		got = req
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sseBody(`<emotion value="excited"/> hel`, "lo[SE", `P]<emotion value="sad"/> world`)))
	})

	stream, err := testAnnotator(srv.URL).Stream(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	reader := tts.NewSegmentReader(stream)
	defer reader.Close() //nolint:errcheck

	var segments []string
	for {
		seg, err := reader.Next()
		if err != nil {
			break
		}
		segments = append(segments, seg)
	}

	want := []string{`<emotion value="excited"/> hello`, `<emotion value="sad"/> world`}
	if strings.Join(segments, "|") != strings.Join(want, "|") {
		t.Errorf("segments = %q, want %q", segments, want)
	}
	if !got.Stream {
		t.Error("request was not a streaming request")
	}
	if len(got.System) != 1 || !strings.Contains(got.System[0].Text, tts.Marker) {
		t.Error("stream system prompt does not mention the marker")
	}
}
