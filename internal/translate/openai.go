package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAITranslator translates through a chat completion model
type OpenAITranslator struct {
	logger *zap.Logger
	client *openai.Client
	model  string
}

// NewOpenAITranslator creates a new OpenAITranslator instance
func NewOpenAITranslator(logger *zap.Logger, client *openai.Client, model string) *OpenAITranslator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAITranslator{
		logger: logger.With(zap.String("component", "translator")),
		client: client,
		model:  model,
	}
}

// Translate asks the model for a bare translation of text
func (o *OpenAITranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if isBlank(text) {
		return text, nil
	}

	systemPrompt := fmt.Sprintf(
		"You are a professional translator. Translate the following text from %s to %s. Only return the translation, nothing else.",
		LanguageName(sourceLang), LanguageName(targetLang))

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("translation interrupted: %w", ctx.Err())
		}
		if isRetryableAPIError(err) {
			return "", &TransientError{Err: err}
		}
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("unexpected response format: no choices")
	}
	translated := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translated == "" {
		return "", fmt.Errorf("unexpected response format: empty translation")
	}

	o.logger.Debug("translated segment",
		zap.String("model", o.model),
		zap.String("target", targetLang),
		zap.Int("translated_chars", len(translated)))

	return translated, nil
}

func isRetryableAPIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	// transport failures surface unwrapped
	return true
}
