package audio

import (
	"math"
	"sync/atomic"
)

// DefaultMeterGain maps the block norm of typical program material into the
// meter range.
const DefaultMeterGain = 0.1

// Level is a loudness estimate in [0, 1].
type Level float32

// Meter estimates loudness as the gain-scaled Euclidean norm of a block. It
// is not a calibrated dBFS or LUFS measurement.
type Meter struct {
	Gain float32
}

// Measure returns clamp(gain * sqrt(sum(x^2)), 0, 1).
func (m Meter) Measure(block []float32) Level {
	var sum float64
	for _, s := range block {
		sum += float64(s) * float64(s)
	}
	v := float64(m.Gain) * math.Sqrt(sum)
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 1:
		return 1
	}
	return Level(v)
}

// atomicLevel is written by a callback and read by the control side.
type atomicLevel struct {
	bits atomic.Uint32
}

func (a *atomicLevel) Store(l Level) { a.bits.Store(math.Float32bits(float32(l))) }

func (a *atomicLevel) Load() Level { return Level(math.Float32frombits(a.bits.Load())) }
