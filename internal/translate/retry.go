package translate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryingTranslator retries transient failures with exponential backoff
type RetryingTranslator struct {
	next        Translator
	logger      *zap.Logger
	maxAttempts int
	baseBackoff time.Duration
}

// NewRetryingTranslator creates a new RetryingTranslator instance
func NewRetryingTranslator(next Translator, logger *zap.Logger, maxAttempts int, baseBackoff time.Duration) *RetryingTranslator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryingTranslator{
		next:        next,
		logger:      logger.With(zap.String("component", "translator")),
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
	}
}

// Translate calls the wrapped translator until it succeeds, fails permanently, or attempts run out
func (r *RetryingTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if isBlank(text) {
		return text, nil
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		translated, err := r.next.Translate(ctx, text, sourceLang, targetLang)
		if err == nil {
			return translated, nil
		}

		lastErr = err
		if !IsTransient(err) {
			return "", err
		}

		r.logger.Warn("translation attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.maxAttempts),
			zap.Error(err))

		if attempt == r.maxAttempts {
			break
		}

		// 2^(attempt-1) * baseBackoff
		backoff := r.baseBackoff * time.Duration(1<<(attempt-1))
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("translation cancelled: %w (last error: %v)", ctx.Err(), lastErr)
		case <-time.After(backoff):
		}
	}

	return "", fmt.Errorf("translation failed after %d attempts: %w", r.maxAttempts, lastErr)
}
