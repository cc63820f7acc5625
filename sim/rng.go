package sim

import (
	"fmt"
	"math/rand"
	"time"
)

// SimulationKey is the seed of a whole experiment.
// Two experiments with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical results.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// Stream is the random-number stream shared by every replication of an experiment.
// It is never reseeded between replications: consecutive replications continue the
// same sequence, which keeps them statistically independent.
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type Stream struct {
	rng    *rand.Rand
	key    SimulationKey
	seeded bool
}

// NewStream creates a stream seeded from the wall clock. Call Seed once before the
// first draw for a reproducible experiment.
func NewStream() *Stream {
	key := NewSimulationKey(time.Now().UnixNano())
	return &Stream{rng: rand.New(rand.NewSource(int64(key))), key: key}
}

// NewSeededStream creates a stream that has already consumed its one seeding.
func NewSeededStream(key SimulationKey) *Stream {
	return &Stream{rng: rand.New(rand.NewSource(int64(key))), key: key, seeded: true}
}

// Seed fixes the stream to key. It may be called at most once per experiment.
func (s *Stream) Seed(key SimulationKey) error {
	if s.seeded {
		return fmt.Errorf("seeding stream with %d: %w: stream already seeded with %d", key, ErrConfiguration, s.key)
	}
	s.rng.Seed(int64(key))
	s.key = key
	s.seeded = true
	return nil
}

// Key returns the seed the stream currently follows.
func (s *Stream) Key() SimulationKey {
	return s.key
}

// Seeded reports whether Seed has been called (or the stream was built seeded).
func (s *Stream) Seeded() bool {
	return s.seeded
}

// Rand exposes the underlying generator to samplers.
func (s *Stream) Rand() *rand.Rand {
	return s.rng
}

// Float64 returns a uniform sample in [0, 1).
func (s *Stream) Float64() float64 {
	return s.rng.Float64()
}

// Substream draws the next seed from this stream and returns an independent stream built
// from it. Used to hand each concurrently running replication its own generator while
// keeping the experiment reproducible from a single key.
func (s *Stream) Substream() *Stream {
	return NewSeededStream(NewSimulationKey(s.rng.Int63()))
}
