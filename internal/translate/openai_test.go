package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(url string) *openai.Client {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = url + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestOpenAITranslator_Translate(t *testing.T) {
	t.Run("should send a translator prompt and trim the answer", func(t *testing.T) {
		// Arrange
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			var req openai.ChatCompletionRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if assert.Len(t, req.Messages, 2) {
				assert.Contains(t, req.Messages[0].Content, "from English to Russian")
				assert.Equal(t, "Good morning", req.Messages[1].Content)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Доброе утро \n"},"finish_reason":"stop"}]}`))
		}))
		defer server.Close()
		tr := NewOpenAITranslator(zaptest.NewLogger(t), newTestClient(server.URL), "")

		// Act
		out, err := tr.Translate(context.Background(), "Good morning", "en", "ru")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "Доброе утро", out)
	})

	t.Run("should mark rate limits transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
		}))
		defer server.Close()
		tr := NewOpenAITranslator(zaptest.NewLogger(t), newTestClient(server.URL), "gpt-4o-mini")

		_, err := tr.Translate(context.Background(), "Hello", "en", "ru")

		assert.True(t, IsTransient(err))
	})

	t.Run("should treat an empty choice list as a permanent error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"1","choices":[]}`))
		}))
		defer server.Close()
		tr := NewOpenAITranslator(zaptest.NewLogger(t), newTestClient(server.URL), "")

		_, err := tr.Translate(context.Background(), "Hello", "en", "ru")

		require.Error(t, err)
		assert.False(t, IsTransient(err))
	})
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "Armenian", LanguageName("hy"))
	assert.Equal(t, "German", LanguageName("DE"))
	assert.Equal(t, "xx", LanguageName("xx"))
}
