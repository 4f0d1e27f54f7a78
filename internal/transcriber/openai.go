package transcriber

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// transcriptionClient is the part of the go-openai client used here
type transcriptionClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAIRecognizer transcribes through the hosted Whisper API
type OpenAIRecognizer struct {
	logger *zap.Logger
	client transcriptionClient
	model  string
}

// NewOpenAIRecognizer creates a new OpenAIRecognizer instance
func NewOpenAIRecognizer(logger *zap.Logger, client *openai.Client, model string) *OpenAIRecognizer {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIRecognizer{
		logger: logger.With(zap.String("component", "transcriber")),
		client: client,
		model:  model,
	}
}

// Transcribe uploads the audio file and reads segment timings from the verbose JSON response
func (o *OpenAIRecognizer) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("transcription interrupted: %w", ctx.Err())
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403) {
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 500 {
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	t := &Transcription{
		Language: NormalizeLanguage(resp.Language),
		Segments: make([]TranscriptionSegment, 0, len(resp.Segments)),
	}
	for _, seg := range resp.Segments {
		t.Segments = append(t.Segments, TranscriptionSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}

	o.logger.Info("transcription completed",
		zap.String("language", t.Language),
		zap.Int("segments", len(t.Segments)))

	return t, t.Validate()
}
