package audio

import (
	"fmt"
	"time"
)

// DefaultSampleRate is the rate every clip is normalized to before it joins a track.
// 48 samples per millisecond keeps millisecond boundaries exact.
const DefaultSampleRate = 48000

// Clip is a mono 16-bit PCM buffer held fully in memory
type Clip struct {
	Samples    []int
	SampleRate int
}

// NewClip creates an empty clip at the given sample rate
func NewClip(sampleRate int) *Clip {
	return &Clip{SampleRate: sampleRate}
}

// NewSilence creates a clip of exactly d (rounded to the millisecond) of silence
func NewSilence(d time.Duration, sampleRate int) *Clip {
	return &Clip{
		Samples:    make([]int, SampleCount(d, sampleRate)),
		SampleRate: sampleRate,
	}
}

// SampleCount returns the number of samples covering d at sampleRate, with d rounded to the millisecond
func SampleCount(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	ms := d.Round(time.Millisecond).Milliseconds()
	return int((ms*int64(sampleRate) + 500) / 1000)
}

// Duration returns the playback length of the clip
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(len(c.Samples)) * int64(time.Second) / int64(c.SampleRate))
}

// Seconds returns the playback length in fractional seconds
func (c *Clip) Seconds() float64 {
	return c.Duration().Seconds()
}

// Append adds other to the end of the clip. Both clips must share a sample rate.
func (c *Clip) Append(other *Clip) error {
	if other == nil || len(other.Samples) == 0 {
		return nil
	}
	if other.SampleRate != c.SampleRate {
		return fmt.Errorf("sample rate mismatch: track %d Hz, clip %d Hz", c.SampleRate, other.SampleRate)
	}
	c.Samples = append(c.Samples, other.Samples...)
	return nil
}

// AppendSilence adds d of silence to the end of the clip
func (c *Clip) AppendSilence(d time.Duration) {
	c.Samples = append(c.Samples, make([]int, SampleCount(d, c.SampleRate))...)
}

// FitTo trims or pads the clip with trailing silence so it lasts exactly d
func (c *Clip) FitTo(d time.Duration) {
	want := SampleCount(d, c.SampleRate)
	switch {
	case len(c.Samples) > want:
		c.Samples = c.Samples[:want]
	case len(c.Samples) < want:
		c.Samples = append(c.Samples, make([]int, want-len(c.Samples))...)
	}
}
