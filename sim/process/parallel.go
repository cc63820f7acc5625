package process

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/faultsim/sim"
	"github.com/inference-sim/faultsim/sim/dist"
)

// Parallel races independent children: the round ends when any of them fires.
//
// Only the winner is credited. The losers' samples are discarded rather than carried over as
// partial progress, which is exact only when every child is memoryless (exponential). Other
// distributions are accepted; InexactRaces reports them.
type Parallel struct {
	name     string
	children []Process
	winner   int // child that won the most recent race, -1 before the first
}

// NewParallel returns a race composite over children.
func NewParallel(name string, children []Process) (*Parallel, error) {
	if err := requireChildren("children", children); err != nil {
		return nil, err
	}
	p := &Parallel{name: name, children: children, winner: -1}
	if leaf := firstNonMemoryless(p); leaf != nil {
		logrus.Debugf("parallel %q: leaf %q uses %s", name, leaf.Name(), leaf.Distribution())
	}
	return p, nil
}

// InexactRaces describes every Parallel under root that races a non-exponential leaf, in
// depth-first order. Discarding race losers is only exact for exponential children.
func InexactRaces(root Process) []string {
	var out []string
	var walk func(p Process)
	walk = func(p Process) {
		if par, ok := p.(*Parallel); ok {
			if leaf := firstNonMemoryless(par); leaf != nil {
				out = append(out, fmt.Sprintf("parallel %q: leaf %q uses %s", par.name, leaf.Name(), leaf.Distribution()))
			}
		}
		for _, c := range p.Children() {
			walk(c)
		}
	}
	walk(root)
	return out
}

func firstNonMemoryless(p *Parallel) *Leaf {
	for _, l := range Leaves(p) {
		if !dist.IsMemoryless(l.Distribution()) {
			return l
		}
	}
	return nil
}

func (p *Parallel) Name() string { return p.name }

func (p *Parallel) ArrivalTime() (float64, error) { return 0, abstractArrival(p.name) }

// Trigger re-samples every child and returns the earliest of their events.
func (p *Parallel) Trigger(s *sim.Scheduler) (*sim.Event, error) {
	events := make([]*sim.Event, len(p.children))
	for i, c := range p.children {
		ev, err := c.Trigger(s)
		if err != nil {
			return nil, fmt.Errorf("%s: child %d: %w", p.name, i, err)
		}
		events[i] = ev
	}
	ev, idx, err := s.RaceFirst(events)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	p.winner = idx
	return ev, nil
}

// UpdateStatistics credits only the child that won the last race.
func (p *Parallel) UpdateStatistics(dt float64, n int) {
	if p.winner < 0 {
		return
	}
	p.children[p.winner].UpdateStatistics(dt, n)
}

// Winner returns the index of the child that won the most recent race, or -1.
func (p *Parallel) Winner() int { return p.winner }

func (p *Parallel) WaitTime() float64 { return sumWaitTime(p.children) }
func (p *Parallel) Count() int        { return sumCount(p.children) }

// Statistic is the mean time between firings of any child, or 0 before the first.
func (p *Parallel) Statistic() float64 {
	return ratio(p.WaitTime(), float64(p.Count()))
}

func (p *Parallel) Collect(sink Sink) error { return sink.Collect(p.Statistic()) }

func (p *Parallel) Children() []Process { return p.children }

func (p *Parallel) sealed() {}
