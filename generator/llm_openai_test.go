package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAILLMFromConfig(t *testing.T) {
	_, err := NewOpenAILLMFromConfig(nil)
	require.Error(t, err)

	_, err = NewOpenAILLMFromConfig(&LLMSettings{Model: "m"})
	require.ErrorContains(t, err, "api key")

	_, err = NewOpenAILLMFromConfig(&LLMSettings{APIKey: "k"})
	require.ErrorContains(t, err, "model")

	llm, err := NewOpenAILLMFromConfig(&LLMSettings{APIKey: "k", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTemperature, llm.Temperature)
}

func TestOpenAILLMComplete(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "demo-model",
			"choices": []any{
				map[string]any{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": `{"title":"T"}`,
					},
				},
			},
		})
	}))
	defer server.Close()

	llm, err := NewOpenAILLMFromConfig(&LLMSettings{APIKey: "test-key", Model: "demo-model", BaseURL: server.URL})
	require.NoError(t, err)
	llm.Opts = append(llm.Opts, option.WithMaxRetries(0))

	out, err := llm.Complete(context.Background(), BuildContentPrompt("hello", ""))
	require.NoError(t, err)
	assert.Equal(t, `{"title":"T"}`, out)

	assert.Equal(t, "demo-model", captured["model"])
	format, ok := captured["response_format"].(map[string]any)
	require.True(t, ok, "response_format must be sent")
	assert.Equal(t, "json_object", format["type"])

	msgs, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
}

func TestOpenAILLMCompleteHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	llm, err := NewOpenAILLMFromConfig(&LLMSettings{APIKey: "bad", Model: "demo", BaseURL: server.URL})
	require.NoError(t, err)
	llm.Opts = append(llm.Opts, option.WithMaxRetries(0))

	_, err = llm.Complete(context.Background(), BuildContentPrompt("hello", ""))
	require.Error(t, err)
}
