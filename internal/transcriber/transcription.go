package transcriber

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrEngineUnavailable is returned when the recognizer binary, model or service cannot be reached
var ErrEngineUnavailable = errors.New("speech recognition engine unavailable")

// Recognizer turns an audio file into timed text
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcription, error)
}

// TranscriptionSegment is one timed span of recognized speech, in seconds
type TranscriptionSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is the recognizer output for a whole file
type Transcription struct {
	Language string                 `json:"language"`
	Segments []TranscriptionSegment `json:"segments"`
}

// Validate checks the fields every consumer relies on. Segment timing is
// validated later by the timeline, which owns the overlap rules.
func (t *Transcription) Validate() error {
	if t == nil {
		return fmt.Errorf("transcription cannot be nil")
	}
	if t.Language == "" {
		return fmt.Errorf("detected language cannot be empty")
	}
	for i, seg := range t.Segments {
		if math.IsNaN(seg.Start) || math.IsNaN(seg.End) {
			return fmt.Errorf("segment %d has NaN timing", i)
		}
	}
	return nil
}

// Text joins all segment texts, used for logging and the saved transcript
func (t *Transcription) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if s := strings.TrimSpace(seg.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

var languageNames = map[string]string{
	"english":    "en",
	"russian":    "ru",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"armenian":   "hy",
	"italian":    "it",
	"portuguese": "pt",
	"ukrainian":  "uk",
	"chinese":    "zh",
	"japanese":   "ja",
	"korean":     "ko",
	"arabic":     "ar",
	"turkish":    "tr",
	"polish":     "pl",
	"dutch":      "nl",
	"hindi":      "hi",
}

// NormalizeLanguage maps recognizer language labels ("English", "en", "en-US") to ISO 639-1 codes
func NormalizeLanguage(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	if code, ok := languageNames[l]; ok {
		return code
	}
	if i := strings.IndexAny(l, "-_"); i > 0 {
		l = l[:i]
	}
	return l
}
