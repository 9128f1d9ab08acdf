package openai_provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, reply string, seen *request) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": reply}, "finish_reason": "stop"}},
		})
	}))
}

func TestChatJSON(t *testing.T) {
	var seen request
	srv := completionServer(t, "Sure:\n```json\n{\"queries\":[\"a\",\"b\"]}\n```", &seen)
	defer srv.Close()

	c := NewOpenAIClient(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "gpt-4o-mini", Temperature: 0.2, Timeout: time.Second})
	var out struct {
		Queries []string `json:"queries"`
	}
	require.NoError(t, c.ChatJSON(context.Background(), "Return JSON.", "plan espresso", &out))
	assert.Equal(t, []string{"a", "b"}, out.Queries)

	assert.Equal(t, "gpt-4o-mini", seen.Model)
	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, "json_object", seen.ResponseFormat.Type)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, "plan espresso", seen.Messages[1].Content)
}

func TestChatRejectsEmptyCompletion(t *testing.T) {
	var seen request
	srv := completionServer(t, "  ", &seen)
	defer srv.Close()

	c := NewOpenAIClient(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Timeout: time.Second})
	_, err := c.Chat(context.Background(), "", "hello")
	require.Error(t, err)
	assert.Nil(t, seen.ResponseFormat)
	assert.Len(t, seen.Messages, 1)
}
