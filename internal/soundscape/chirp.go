package soundscape

import (
	"math/rand/v2"
	"time"
)

// ChirpConfig tunes the randomized bird chirps.
type ChirpConfig struct {
	// MeanInterval is the mean time between chirps. Fire times form a
	// Poisson process, so intervals are exponentially distributed.
	MeanInterval time.Duration

	// SpreadHz is the width of the uniform frequency jump: each chirp retunes
	// the oscillator to base + U[0, SpreadHz).
	SpreadHz float64

	// Pulse is how long the amplitude takes to fall from the mix level back
	// to silence.
	Pulse time.Duration
}

// DefaultChirp fires one chirp every 5 s on average, with a
// jump of up to 200 Hz and a 0.1 s decay.
var DefaultChirp = ChirpConfig{
	MeanInterval: 5 * time.Second,
	SpreadHz:     200,
	Pulse:        100 * time.Millisecond,
}

// Scheduler draws chirp timing and pitch from a seedable random source.
// It is not safe for concurrent use; the engine calls it under its lock.
type Scheduler struct {
	rng  *rand.Rand
	mean time.Duration
}

// NewScheduler returns a scheduler with the given mean interval. A nil rng
// is replaced by one seeded from the runtime's entropy.
func NewScheduler(mean time.Duration, rng *rand.Rand) *Scheduler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Scheduler{rng: rng, mean: mean}
}

// NewSeededScheduler returns a scheduler whose sequence is fully determined
// by seed.
func NewSeededScheduler(mean time.Duration, seed uint64) *Scheduler {
	return NewScheduler(mean, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Next returns the delay until the next chirp.
func (s *Scheduler) Next() time.Duration {
	return time.Duration(s.rng.ExpFloat64() * float64(s.mean))
}

// Offset returns a frequency offset drawn uniformly from [0, spread).
func (s *Scheduler) Offset(spread float64) float64 {
	return s.rng.Float64() * spread
}
