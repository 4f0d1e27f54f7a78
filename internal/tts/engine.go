package tts

import (
	"context"
	"errors"
)

// ErrEngineUnavailable is returned when the voice engine or voice cannot be reached
var ErrEngineUnavailable = errors.New("voice synthesis engine unavailable")

// Engine synthesizes text at natural speed into an audio file at outPath
type Engine interface {
	Synthesize(ctx context.Context, text, voiceID, outPath string) error
}
