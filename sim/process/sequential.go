package process

import (
	"github.com/inference-sim/faultsim/sim"
)

// Sequential runs its children one after another and wraps around at the end, e.g. a
// failure stage followed by one or more recovery stages.
type Sequential struct {
	name         string
	children     []Process
	index        int // next child to trigger
	last         int // child selected by the most recent Trigger, -1 before the first
	availability bool
}

// NewSequential returns a round-robin composite over stages. Its statistic is the mean wait
// per completed stage.
func NewSequential(name string, stages []Process) (*Sequential, error) {
	if err := requireChildren("children", stages); err != nil {
		return nil, err
	}
	return &Sequential{name: name, children: stages, last: -1}, nil
}

// NewAvailability returns a Sequential whose first stage is the "up" stage and whose statistic
// is the fraction of observed time spent in it.
func NewAvailability(name string, stages []Process) (*Sequential, error) {
	if err := requireChildren("children", stages); err != nil {
		return nil, err
	}
	if len(stages) < 2 {
		return nil, sim.NewFieldError(sim.ErrConfiguration, "children", "availability needs an up stage and at least one down stage, got %d stage(s)", len(stages))
	}
	return &Sequential{name: name, children: stages, last: -1, availability: true}, nil
}

func (q *Sequential) Name() string { return q.name }

func (q *Sequential) ArrivalTime() (float64, error) { return 0, abstractArrival(q.name) }

// Trigger selects children[index], advances the index cyclically and delegates.
func (q *Sequential) Trigger(s *sim.Scheduler) (*sim.Event, error) {
	q.last = q.index
	q.index = (q.index + 1) % len(q.children)
	return q.children[q.last].Trigger(s)
}

// UpdateStatistics credits the child that just fired, never the composite itself.
func (q *Sequential) UpdateStatistics(dt float64, n int) {
	if q.last < 0 {
		return
	}
	q.children[q.last].UpdateStatistics(dt, n)
}

// LastFired returns the index of the child selected by the most recent Trigger, or -1.
func (q *Sequential) LastFired() int { return q.last }

// Availability reports whether the statistic is the up-time fraction.
func (q *Sequential) Availability() bool { return q.availability }

func (q *Sequential) WaitTime() float64 { return sumWaitTime(q.children) }
func (q *Sequential) Count() int        { return sumCount(q.children) }

// Statistic is stage0.WaitTime / total WaitTime for availability composites, otherwise the
// mean wait per completed stage. Both are 0 before any time has been credited.
func (q *Sequential) Statistic() float64 {
	if q.availability {
		return ratio(q.children[0].WaitTime(), q.WaitTime())
	}
	return ratio(q.WaitTime(), float64(q.Count()))
}

func (q *Sequential) Collect(sink Sink) error { return sink.Collect(q.Statistic()) }

func (q *Sequential) Children() []Process { return q.children }

func (q *Sequential) sealed() {}
