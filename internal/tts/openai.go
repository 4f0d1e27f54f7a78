package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var openAIVoices = map[string]openai.SpeechVoice{
	"alloy":   openai.VoiceAlloy,
	"echo":    openai.VoiceEcho,
	"fable":   openai.VoiceFable,
	"onyx":    openai.VoiceOnyx,
	"nova":    openai.VoiceNova,
	"shimmer": openai.VoiceShimmer,
}

// OpenAIEngine synthesizes speech through the hosted speech endpoint
type OpenAIEngine struct {
	logger *zap.Logger
	client *openai.Client
	model  string
}

// NewOpenAIEngine creates a new OpenAIEngine instance
func NewOpenAIEngine(logger *zap.Logger, client *openai.Client, model string) *OpenAIEngine {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	return &OpenAIEngine{
		logger: logger.With(zap.String("component", "tts")),
		client: client,
		model:  model,
	}
}

// Synthesize writes WAV speech to outPath. Voice ids that are not OpenAI voices fall back to nova.
func (o *OpenAIEngine) Synthesize(ctx context.Context, text, voiceID, outPath string) error {
	voice, ok := openAIVoices[voiceID]
	if !ok {
		voice = openai.VoiceNova
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("speech request interrupted: %w", ctx.Err())
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403 || apiErr.HTTPStatusCode == 404) {
			return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		return fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", outPath, err)
	}
	written, err := io.Copy(out, resp)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("error writing speech: %w", err)
	}
	if written == 0 {
		return fmt.Errorf("speech endpoint returned no audio")
	}

	o.logger.Debug("synthesized speech",
		zap.String("voice", string(voice)),
		zap.Int64("bytes", written))

	return nil
}
