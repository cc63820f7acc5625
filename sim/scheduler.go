package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Scheduler owns the simulated clock of a single replication and the queue of pending events.
// Processing is single-threaded: an event's continuation runs to completion before the next
// event is popped, and continuations may schedule further events.
//
// Thread-safety: NOT thread-safe. One Scheduler per replication.
type Scheduler struct {
	clock     float64
	queue     eventQueue
	nextSeq   uint64
	processed int64
}

// NewScheduler returns a scheduler with its clock at zero and an empty queue.
func NewScheduler() *Scheduler {
	return &Scheduler{queue: make(eventQueue, 0)}
}

// Now returns the current simulated time.
func (s *Scheduler) Now() float64 {
	return s.clock
}

// Processed returns the number of events delivered so far.
func (s *Scheduler) Processed() int64 {
	return s.processed
}

// Pending returns the number of queued events that can still fire.
func (s *Scheduler) Pending() int {
	n := 0
	for _, ev := range s.queue {
		if ev.Pending() {
			n++
		}
	}
	return n
}

// Schedule returns an event that fires at Now()+delay on behalf of owner.
// The event is queued immediately; attach a continuation with Await.
func (s *Scheduler) Schedule(delay float64, owner string) (*Event, error) {
	if delay < 0 || math.IsNaN(delay) || math.IsInf(delay, 0) {
		return nil, NewFieldError(ErrDegenerateInput, "delay", "must be a finite value >= 0, got %v", delay)
	}
	ev := &Event{
		at:    s.clock + delay,
		seq:   s.nextSeq,
		owner: owner,
		state: eventPending,
	}
	s.nextSeq++
	s.queue.push(ev)
	return ev, nil
}

// Await attaches the continuation to run when ev fires. Only pending events can be awaited.
func (s *Scheduler) Await(ev *Event, resume Resume) error {
	if ev == nil {
		return fmt.Errorf("await: %w: nil event", ErrConfiguration)
	}
	if !ev.Pending() {
		return fmt.Errorf("await %s@%g: %w: event is no longer pending", ev.owner, ev.at, ErrConfiguration)
	}
	if ev.resume != nil {
		return fmt.Errorf("await %s@%g: %w: event already has a waiter", ev.owner, ev.at, ErrConfiguration)
	}
	ev.resume = resume
	return nil
}

// RaceFirst resolves a set of independently scheduled events to the earliest one.
// Ties go to the event scheduled first. Every other member of the set is discarded:
// it stays in the queue but is dropped without moving the clock when it surfaces.
func (s *Scheduler) RaceFirst(events []*Event) (*Event, int, error) {
	if len(events) == 0 {
		return nil, -1, fmt.Errorf("race: %w: no events", ErrConfiguration)
	}
	winner := -1
	for i, ev := range events {
		if ev == nil || !ev.Pending() {
			return nil, -1, fmt.Errorf("race: %w: member %d is not pending", ErrConfiguration, i)
		}
		if winner < 0 || ev.before(events[winner]) {
			winner = i
		}
	}
	for i, ev := range events {
		if i != winner {
			ev.state = eventDiscarded
		}
	}
	return events[winner], winner, nil
}

// Advance pops the earliest live event, moves the clock to its time and runs its continuation.
// It returns false when no live event remains.
func (s *Scheduler) Advance() (bool, error) {
	ev := s.nextLive()
	if ev == nil {
		return false, nil
	}
	s.queue.popNext()
	s.clock = ev.at
	ev.state = eventFired
	s.processed++
	logrus.Tracef("[t=%.4f] firing %s (seq %d)", s.clock, ev.owner, ev.seq)
	if ev.resume == nil {
		return true, nil
	}
	if err := ev.resume(s.clock); err != nil {
		return true, fmt.Errorf("resuming %s at t=%g: %w", ev.owner, s.clock, err)
	}
	return true, nil
}

// Run advances while the earliest live event is strictly before until, then sets the clock to
// until. Events scheduled exactly at until do not fire.
func (s *Scheduler) Run(until float64) error {
	if math.IsNaN(until) || math.IsInf(until, 0) {
		return NewFieldError(ErrDegenerateInput, "until", "horizon must be finite, got %v", until)
	}
	if until < s.clock {
		return NewFieldError(ErrDegenerateInput, "until", "horizon %v is before the current time %v", until, s.clock)
	}
	for {
		ev := s.nextLive()
		if ev == nil || ev.at >= until {
			break
		}
		if _, err := s.Advance(); err != nil {
			return err
		}
	}
	s.clock = until
	logrus.Tracef("[t=%.4f] horizon reached, %d events processed", s.clock, s.processed)
	return nil
}

// nextLive drops discarded events from the head of the queue and returns the earliest live one.
func (s *Scheduler) nextLive() *Event {
	for {
		ev := s.queue.peek()
		if ev == nil || ev.Pending() {
			return ev
		}
		s.queue.popNext()
	}
}
