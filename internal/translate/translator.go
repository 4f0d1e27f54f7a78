package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Translator converts one segment of text between languages
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// TransientError marks a failure worth retrying, such as a network error or a 5xx response
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient translation error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err, or any error it wraps, is a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

var languageNames = map[string]string{
	"ru": "Russian",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"hy": "Armenian",
	"it": "Italian",
	"pt": "Portuguese",
	"uk": "Ukrainian",
	"zh": "Chinese",
	"ja": "Japanese",
}

// LanguageName returns the English name for a code, or the code itself
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
