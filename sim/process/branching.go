package process

import (
	"fmt"
	"math"
	"sort"

	"github.com/inference-sim/faultsim/sim"
)

// ProbabilityTolerance is how far a branch probability table may sum away from 1.
const ProbabilityTolerance = 1e-9

// Uniform is a source of uniform samples in [0, 1). *sim.Stream and *rand.Rand satisfy it.
type Uniform interface {
	Float64() float64
}

// Branching takes exactly one of several mutually exclusive pathways per cycle, chosen at
// random with fixed probabilities.
type Branching struct {
	name          string
	branches      []Process
	probabilities []float64
	cdf           []float64
	uniform       Uniform
	selected      int // branch chosen by the most recent Trigger, -1 before the first
}

// NewBranching returns a probabilistic choice over branches. probabilities must have the same
// length as branches, lie in [0, 1] and sum to 1.
func NewBranching(name string, branches []Process, probabilities []float64, u Uniform) (*Branching, error) {
	if err := requireChildren("children", branches); err != nil {
		return nil, err
	}
	if len(probabilities) != len(branches) {
		return nil, sim.NewFieldError(sim.ErrConfiguration, "probabilities",
			"got %d probabilities for %d branches", len(probabilities), len(branches))
	}
	if u == nil {
		return nil, sim.NewFieldError(sim.ErrConfiguration, "uniform", "a uniform source is required")
	}
	cdf := make([]float64, len(probabilities))
	cumulative := 0.0
	for i, p := range probabilities {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, sim.NewFieldError(sim.ErrConfiguration, fmt.Sprintf("probabilities[%d]", i),
				"must be in [0, 1], got %v", p)
		}
		cumulative += p
		cdf[i] = cumulative
	}
	if math.Abs(cumulative-1) > ProbabilityTolerance {
		return nil, sim.NewFieldError(sim.ErrConfiguration, "probabilities", "must sum to 1, got %v", cumulative)
	}
	// Ensure last CDF entry is exactly 1.0
	cdf[len(cdf)-1] = 1.0

	probs := make([]float64, len(probabilities))
	copy(probs, probabilities)
	return &Branching{
		name:          name,
		branches:      branches,
		probabilities: probs,
		cdf:           cdf,
		uniform:       u,
		selected:      -1,
	}, nil
}

func (b *Branching) Name() string { return b.name }

func (b *Branching) ArrivalTime() (float64, error) { return 0, abstractArrival(b.name) }

// Select returns the first branch whose cumulative probability exceeds u.
// Each branch's upper bound is exclusive.
func (b *Branching) Select(u float64) int {
	idx := sort.Search(len(b.cdf), func(i int) bool { return b.cdf[i] > u })
	if idx >= len(b.cdf) {
		idx = len(b.cdf) - 1
	}
	return idx
}

// Trigger draws one uniform sample, selects a branch and delegates to it.
func (b *Branching) Trigger(s *sim.Scheduler) (*sim.Event, error) {
	b.selected = b.Select(b.uniform.Float64())
	return b.branches[b.selected].Trigger(s)
}

// UpdateStatistics credits only the selected branch.
func (b *Branching) UpdateStatistics(dt float64, n int) {
	if b.selected < 0 {
		return
	}
	b.branches[b.selected].UpdateStatistics(dt, n)
}

// Selected returns the branch chosen by the most recent Trigger, or -1.
func (b *Branching) Selected() int { return b.selected }

// CDF returns a copy of the cumulative probability table.
func (b *Branching) CDF() []float64 {
	out := make([]float64, len(b.cdf))
	copy(out, b.cdf)
	return out
}

func (b *Branching) WaitTime() float64 { return sumWaitTime(b.branches) }
func (b *Branching) Count() int        { return sumCount(b.branches) }

// Statistic is the probability-weighted sum of the branches' own statistics.
func (b *Branching) Statistic() float64 {
	total := 0.0
	for i, br := range b.branches {
		total += b.probabilities[i] * br.Statistic()
	}
	return total
}

func (b *Branching) Collect(sink Sink) error { return sink.Collect(b.Statistic()) }

func (b *Branching) Children() []Process { return b.branches }

func (b *Branching) sealed() {}
