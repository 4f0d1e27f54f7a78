package transcriber

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscription_Validate(t *testing.T) {
	t.Run("should accept a transcription with a language", func(t *testing.T) {
		tr := &Transcription{Language: "en", Segments: []TranscriptionSegment{{Start: 0, End: 1, Text: "hi"}}}

		assert.NoError(t, tr.Validate())
	})

	t.Run("should accept zero segments", func(t *testing.T) {
		assert.NoError(t, (&Transcription{Language: "en"}).Validate())
	})

	t.Run("should reject a missing language", func(t *testing.T) {
		err := (&Transcription{}).Validate()

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "language")
	})

	t.Run("should reject NaN timing", func(t *testing.T) {
		tr := &Transcription{Language: "en", Segments: []TranscriptionSegment{{Start: math.NaN(), End: 1}}}

		assert.Error(t, tr.Validate())
	})

	t.Run("should reject nil", func(t *testing.T) {
		var tr *Transcription
		assert.Error(t, tr.Validate())
	})
}

func TestTranscription_Text(t *testing.T) {
	tr := &Transcription{Segments: []TranscriptionSegment{{Text: " Hello "}, {Text: ""}, {Text: "world"}}}

	assert.Equal(t, "Hello world", tr.Text())
}

func TestNormalizeLanguage(t *testing.T) {
	tests := map[string]string{
		"English": "en",
		"russian": "ru",
		"en":      "en",
		"en-US":   "en",
		"pt_BR":   "pt",
		" HY ":    "hy",
		"":        "",
	}
	for input, expected := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, expected, NormalizeLanguage(input))
		})
	}
}
