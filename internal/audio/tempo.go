package audio

import (
	"fmt"
	"math"
)

// Bounds of a single atempo filter invocation
const (
	MinTempoFactor = 0.5
	MaxTempoFactor = 2.0
)

// Thresholds at which a whole halving or doubling step is peeled off the remaining factor
const (
	tempoDoubleAbove = 1.95
	tempoHalveBelow  = 0.51
)

// TempoChain decomposes an arbitrary playback speed into ordered atempo factors,
// each within [MinTempoFactor, MaxTempoFactor], whose product equals speed.
func TempoChain(speed float64) ([]float64, error) {
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed <= 0 {
		return nil, fmt.Errorf("invalid tempo factor %v", speed)
	}

	var chain []float64
	for speed > tempoDoubleAbove {
		chain = append(chain, MaxTempoFactor)
		speed /= MaxTempoFactor
	}
	for speed < tempoHalveBelow {
		chain = append(chain, MinTempoFactor)
		speed /= MinTempoFactor
	}

	return append(chain, math.Min(MaxTempoFactor, math.Max(MinTempoFactor, speed))), nil
}
