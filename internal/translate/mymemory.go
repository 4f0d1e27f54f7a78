package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMyMemoryURL is the public MyMemory endpoint
const DefaultMyMemoryURL = "https://api.mymemory.translated.net/get"

// MyMemoryTranslator calls the MyMemory translation memory API
type MyMemoryTranslator struct {
	logger   *zap.Logger
	endpoint string
	client   *http.Client
}

// NewMyMemoryTranslator creates a new MyMemoryTranslator instance
func NewMyMemoryTranslator(logger *zap.Logger, endpoint string) *MyMemoryTranslator {
	if endpoint == "" {
		endpoint = DefaultMyMemoryURL
	}
	return &MyMemoryTranslator{
		logger:   logger.With(zap.String("component", "translator")),
		endpoint: endpoint,
		client:   createHTTPClient(),
	}
}

// createHTTPClient bounds connection setup and header wait; the caller's context bounds the rest
func createHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
	}
	return &http.Client{Transport: transport}
}

type myMemoryResponse struct {
	ResponseData struct {
		TranslatedText string `json:"translatedText"`
	} `json:"responseData"`
	Matches []struct {
		Translation string `json:"translation"`
	} `json:"matches"`
}

// Translate requests ?q=<text>&langpair=<src>|<tgt> and returns the first match
func (m *MyMemoryTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if isBlank(text) {
		return text, nil
	}

	params := url.Values{}
	params.Set("q", text)
	params.Set("langpair", sourceLang+"|"+targetLang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("translation interrupted: %w", ctx.Err())
		}
		return "", &TransientError{Err: fmt.Errorf("request to %s failed: %w", m.endpoint, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &TransientError{Err: fmt.Errorf("translation service returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translation service returned status %d", resp.StatusCode)
	}

	var parsed myMemoryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unexpected response format: %w", err)
	}

	translated := ""
	if len(parsed.Matches) > 0 {
		translated = parsed.Matches[0].Translation
	}
	if strings.TrimSpace(translated) == "" {
		translated = parsed.ResponseData.TranslatedText
	}
	if strings.TrimSpace(translated) == "" {
		return "", fmt.Errorf("unexpected response format: no translation in response")
	}

	m.logger.Debug("translated segment",
		zap.String("langpair", sourceLang+"|"+targetLang),
		zap.Int("source_chars", len(text)),
		zap.Int("translated_chars", len(translated)))

	return translated, nil
}
