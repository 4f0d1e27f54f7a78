package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"videodubber/internal/audio"
	"videodubber/internal/performance"
	"videodubber/internal/tts"
)

const testRate = audio.DefaultSampleRate

// fakeEngine writes the natural speech length in ms into the output file
type fakeEngine struct {
	naturalMS map[string]int
	err       error
	block     bool
	calls     atomic.Int32
}

func (f *fakeEngine) Synthesize(ctx context.Context, text, voiceID, outPath string) error {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	ms, ok := f.naturalMS[text]
	if !ok {
		ms = 1000
	}
	return os.WriteFile(outPath, []byte(strconv.Itoa(ms)), 0644)
}

// fakeTools decodes the ms marker into a WAV and stretches by the factor product,
// with a configurable rounding error to exercise trimming and padding
type fakeTools struct {
	stretchErrorMS int
	stretchCalls   atomic.Int32
	lastFactors    []float64
}

func (f *fakeTools) Decode(ctx context.Context, inPath, outPath string, sampleRate int) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	ms, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return err
	}
	return audio.WriteWAV(outPath, tone(time.Duration(ms)*time.Millisecond, sampleRate))
}

func (f *fakeTools) Stretch(ctx context.Context, inPath, outPath string, factors []float64) error {
	f.stretchCalls.Add(1)
	f.lastFactors = factors
	in, err := audio.ReadWAV(inPath, 0)
	if err != nil {
		return err
	}
	product := 1.0
	for _, factor := range factors {
		product *= factor
	}
	d := time.Duration(in.Duration().Seconds()/product*float64(time.Second)) + time.Duration(f.stretchErrorMS)*time.Millisecond
	return audio.WriteWAV(outPath, tone(d, in.SampleRate))
}

func tone(d time.Duration, rate int) *audio.Clip {
	c := audio.NewSilence(d, rate)
	for i := range c.Samples {
		c.Samples[i] = 1000
	}
	return c
}

func newTestSynth(t *testing.T, engine tts.Engine, tools AudioTools, opts Options) *Synthesizer {
	t.Helper()
	if opts.TempDir == "" {
		opts.TempDir = t.TempDir()
	}
	return NewSynthesizer(zaptest.NewLogger(t), engine, tools, opts)
}

func assertScratchReleased(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "segment scratch dirs must be removed")
}

func TestSynthesizer_FastPaths(t *testing.T) {
	t.Run("should return exact silence for blank text without an engine call", func(t *testing.T) {
		// Arrange
		engine := &fakeEngine{}
		s := newTestSynth(t, engine, &fakeTools{}, Options{})

		for _, text := range []string{"", "   ", "\n\t"} {
			// Act
			clip, err := s.Synthesize(context.Background(), Request{Text: text, Target: 4 * time.Second})

			// Assert
			require.NoError(t, err)
			assert.Equal(t, 4*time.Second, clip.Duration())
			assert.Equal(t, 0, clip.Samples[0])
		}
		assert.Zero(t, engine.calls.Load())
	})

	t.Run("should return an empty clip for a zero target", func(t *testing.T) {
		engine := &fakeEngine{}
		s := newTestSynth(t, engine, &fakeTools{}, Options{})

		clip, err := s.Synthesize(context.Background(), Request{Text: "hello", Target: 0})

		require.NoError(t, err)
		assert.Zero(t, clip.Duration())
		assert.Zero(t, engine.calls.Load())
	})

	t.Run("should treat near-empty synthesis as silence without stretching", func(t *testing.T) {
		engine := &fakeEngine{naturalMS: map[string]int{"uh": 30}}
		tools := &fakeTools{}
		root := t.TempDir()
		s := newTestSynth(t, engine, tools, Options{TempDir: root})

		clip, err := s.Synthesize(context.Background(), Request{Text: "uh", Target: 2 * time.Second})

		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, clip.Duration())
		assert.Equal(t, 0, clip.Samples[len(clip.Samples)/2])
		assert.Zero(t, tools.stretchCalls.Load())
		assertScratchReleased(t, root)
	})
}

func TestSynthesizer_ExactDuration(t *testing.T) {
	tests := []struct {
		name      string
		naturalMS int
		target    time.Duration
		roundMS   int
	}{
		{"faster than natural", 6000, 4 * time.Second, 0},
		{"slower than natural", 2000, 4 * time.Second, 0},
		{"pathologically long speech", 20000, time.Second, 0},
		{"pathologically short speech", 60, 9 * time.Second, 0},
		{"stretch overshoots", 3000, 2500 * time.Millisecond, 7},
		{"stretch undershoots", 3000, 2500 * time.Millisecond, -7},
		{"sub-millisecond target", 1000, 1500 * time.Microsecond, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			engine := &fakeEngine{naturalMS: map[string]int{"text": tt.naturalMS}}
			tools := &fakeTools{stretchErrorMS: tt.roundMS}
			root := t.TempDir()
			s := newTestSynth(t, engine, tools, Options{TempDir: root})

			// Act
			clip, err := s.Synthesize(context.Background(), Request{Index: 3, Text: "text", Voice: "v", Target: tt.target})

			// Assert
			require.NoError(t, err)
			assert.Equal(t, audio.SampleCount(tt.target, testRate), len(clip.Samples))
			assert.Equal(t, int32(1), tools.stretchCalls.Load())
			for _, factor := range tools.lastFactors {
				assert.GreaterOrEqual(t, factor, audio.MinTempoFactor)
				assert.LessOrEqual(t, factor, audio.MaxTempoFactor)
			}
			assertScratchReleased(t, root)
		})
	}
}

func TestSynthesizer_Failures(t *testing.T) {
	t.Run("should wrap engine errors with the segment index", func(t *testing.T) {
		// Arrange
		root := t.TempDir()
		s := newTestSynth(t, &fakeEngine{err: assert.AnError}, &fakeTools{}, Options{TempDir: root})

		// Act
		_, err := s.Synthesize(context.Background(), Request{Index: 7, Text: "hi", Target: time.Second})

		// Assert
		var failure *SynthesisFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, 7, failure.Index)
		assert.ErrorIs(t, err, assert.AnError)
		assertScratchReleased(t, root)
	})

	t.Run("should keep engine unavailability visible", func(t *testing.T) {
		engineErr := fmt.Errorf("%w: edge-tts", tts.ErrEngineUnavailable)
		s := newTestSynth(t, &fakeEngine{err: engineErr}, &fakeTools{}, Options{})

		_, err := s.Synthesize(context.Background(), Request{Text: "hi", Target: time.Second})

		assert.ErrorIs(t, err, tts.ErrEngineUnavailable)
	})

	t.Run("should time out a hung engine call", func(t *testing.T) {
		root := t.TempDir()
		s := newTestSynth(t, &fakeEngine{block: true}, &fakeTools{}, Options{TempDir: root, EngineTimeout: 20 * time.Millisecond})

		_, err := s.Synthesize(context.Background(), Request{Text: "hi", Target: time.Second})

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assertScratchReleased(t, root)
	})

	t.Run("should not call the engine once cancelled", func(t *testing.T) {
		engine := &fakeEngine{}
		s := newTestSynth(t, engine, &fakeTools{}, Options{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.Synthesize(ctx, Request{Text: "hi", Target: time.Second})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, engine.calls.Load())
	})

	t.Run("should report a failed stretch", func(t *testing.T) {
		s := newTestSynth(t, &fakeEngine{}, failingStretch{&fakeTools{}}, Options{})

		_, err := s.Synthesize(context.Background(), Request{Index: 2, Text: "hi", Target: time.Second})

		var failure *SynthesisFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, 2, failure.Index)
		assert.Contains(t, err.Error(), "stretch speech")
	})
}

type failingStretch struct {
	*fakeTools
}

func (f failingStretch) Stretch(ctx context.Context, inPath, outPath string, factors []float64) error {
	return errors.New("atempo exploded")
}

// countingLimiter records acquire/release pairs
type countingLimiter struct {
	acquired atomic.Int32
	released atomic.Int32
}

func (c *countingLimiter) Acquire(ctx context.Context) error {
	c.acquired.Add(1)
	return ctx.Err()
}

func (c *countingLimiter) Release() {
	c.released.Add(1)
}

func TestSynthesizer_SharedResources(t *testing.T) {
	t.Run("should hold a capacity slot only around the engine call", func(t *testing.T) {
		limiter := &countingLimiter{}
		s := newTestSynth(t, &fakeEngine{}, &fakeTools{}, Options{Limiter: limiter})

		_, err := s.Synthesize(context.Background(), Request{Text: "hi", Target: time.Second})

		require.NoError(t, err)
		assert.Equal(t, int32(1), limiter.acquired.Load())
		assert.Equal(t, int32(1), limiter.released.Load())
	})

	t.Run("should record collaborator calls", func(t *testing.T) {
		monitor := performance.NewCallMonitor(zap.NewNop())
		s := newTestSynth(t, &fakeEngine{}, &fakeTools{}, Options{Monitor: monitor})

		_, err := s.Synthesize(context.Background(), Request{Text: "hi", Target: time.Second})

		require.NoError(t, err)
		metrics := monitor.GetMetrics()
		assert.Equal(t, int64(1), metrics["tts_engine"].Calls)
		assert.Equal(t, int64(1), metrics["ffmpeg_stretch"].Calls)
	})
}
