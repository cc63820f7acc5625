// Package process implements the composable random processes that make up a failure/recovery
// model: Leaf nodes sample a distribution, and the Sequential, Parallel and Branching
// composites combine children by round-robin, by race and by weighted choice.
//
// A composite exclusively owns its children. Statistics are attributed to the leaf whose event
// actually fired, however deep the composition, so every node's WaitTime and Count describe
// only the cycles it produced.
package process

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/inference-sim/faultsim/sim"
	"github.com/inference-sim/faultsim/sim/dist"
)

// Sink receives the one scalar a process tree reports per replication.
type Sink interface {
	Collect(sample float64) error
}

// Process is a node of a process tree. The set of implementations is closed:
// *Leaf, *Sequential, *Parallel and *Branching.
type Process interface {
	// Name identifies the node in logs and reports.
	Name() string
	// ArrivalTime samples the node's own distribution. Composites have none and
	// return an error matching sim.ErrAbstractMethod and sim.ErrConfiguration.
	ArrivalTime() (float64, error)
	// Trigger schedules the node's next completion on s and returns the event to await.
	Trigger(s *sim.Scheduler) (*sim.Event, error)
	// UpdateStatistics credits dt of waiting and n completed cycles to the node that
	// produced the last fired event.
	UpdateStatistics(dt float64, n int)
	// WaitTime is the cumulative wait credited to this node and its descendants.
	WaitTime() float64
	// Count is the number of completed cycles credited to this node and its descendants.
	Count() int
	// Statistic is the derived scalar reported by Collect.
	Statistic() float64
	// Collect appends Statistic to the sink's open row.
	Collect(sink Sink) error
	// Children returns the owned child nodes; nil for leaves.
	Children() []Process

	sealed()
}

// Leaf is a process driven by a single distribution.
type Leaf struct {
	name     string
	dist     dist.Distribution
	rng      *rand.Rand
	waitTime float64
	count    int
	pending  *sim.Event
}

// NewLeaf returns a leaf sampling d from rng.
func NewLeaf(name string, d dist.Distribution, rng *rand.Rand) *Leaf {
	return &Leaf{name: name, dist: d, rng: rng}
}

func (l *Leaf) Name() string { return l.name }

// Distribution returns the leaf's distribution.
func (l *Leaf) Distribution() dist.Distribution { return l.dist }

func (l *Leaf) ArrivalTime() (float64, error) {
	return l.dist.Sample(l.rng), nil
}

func (l *Leaf) Trigger(s *sim.Scheduler) (*sim.Event, error) {
	if l.pending != nil && l.pending.Pending() {
		return nil, fmt.Errorf("trigger %s: %w: a trigger is already pending at t=%g",
			l.name, sim.ErrConfiguration, l.pending.Time())
	}
	delay, err := l.ArrivalTime()
	if err != nil {
		return nil, err
	}
	ev, err := s.Schedule(delay, l.name)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: %w", l.name, err)
	}
	l.pending = ev
	return ev, nil
}

func (l *Leaf) UpdateStatistics(dt float64, n int) {
	l.waitTime += dt
	l.count += n
}

func (l *Leaf) WaitTime() float64 { return l.waitTime }
func (l *Leaf) Count() int        { return l.count }

// Statistic returns the mean wait per completed cycle, or 0 before the first cycle.
func (l *Leaf) Statistic() float64 {
	return ratio(l.waitTime, float64(l.count))
}

func (l *Leaf) Collect(sink Sink) error { return sink.Collect(l.Statistic()) }

func (l *Leaf) Children() []Process { return nil }

func (l *Leaf) String() string { return l.name + " " + l.dist.String() }

func (l *Leaf) sealed() {}

// ratio divides num by den, returning the sentinel 0 when den is 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func sumWaitTime(children []Process) float64 {
	total := 0.0
	for _, c := range children {
		total += c.WaitTime()
	}
	return total
}

func sumCount(children []Process) int {
	total := 0
	for _, c := range children {
		total += c.Count()
	}
	return total
}

func abstractArrival(name string) error {
	return fmt.Errorf("%s: arrival time of a composite: %w: %w", name, sim.ErrAbstractMethod, sim.ErrConfiguration)
}

func requireChildren(field string, children []Process) error {
	if len(children) == 0 {
		return sim.NewFieldError(sim.ErrConfiguration, field, "at least one child is required")
	}
	for i, c := range children {
		if c == nil {
			return sim.NewFieldError(sim.ErrConfiguration, fmt.Sprintf("%s[%d]", field, i), "child is nil")
		}
	}
	return nil
}

// Leaves returns the leaf nodes under p in depth-first order.
func Leaves(p Process) []*Leaf {
	if l, ok := p.(*Leaf); ok {
		return []*Leaf{l}
	}
	var out []*Leaf
	for _, c := range p.Children() {
		out = append(out, Leaves(c)...)
	}
	return out
}

// Describe renders the tree rooted at p on a single line.
func Describe(p Process) string {
	var b strings.Builder
	describe(&b, p)
	return b.String()
}

func describe(b *strings.Builder, p Process) {
	if l, ok := p.(*Leaf); ok {
		b.WriteString(l.String())
		return
	}
	b.WriteString(p.Name())
	switch p.(type) {
	case *Sequential:
		b.WriteString(" sequential [ ")
	case *Parallel:
		b.WriteString(" parallel [ ")
	case *Branching:
		b.WriteString(" branching [ ")
	}
	for i, c := range p.Children() {
		if i > 0 {
			b.WriteString(", ")
		}
		describe(b, c)
	}
	b.WriteString(" ]")
}
