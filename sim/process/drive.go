package process

import (
	"fmt"

	"github.com/inference-sim/faultsim/sim"
)

// Drive arms the run loop of root on s. Each time root's pending event fires, the elapsed time
// since the previous firing is credited through root.UpdateStatistics and root is triggered
// again. Drive only schedules the first trigger; the caller advances s.
func Drive(s *sim.Scheduler, root Process) error {
	prev := s.Now()
	var cycle sim.Resume
	arm := func() error {
		ev, err := root.Trigger(s)
		if err != nil {
			return err
		}
		return s.Await(ev, cycle)
	}
	cycle = func(now float64) error {
		root.UpdateStatistics(now-prev, 1)
		prev = now
		return arm()
	}
	if err := arm(); err != nil {
		return fmt.Errorf("starting %s: %w", root.Name(), err)
	}
	return nil
}

// Simulate drives root on a fresh scheduler until horizon and returns the scheduler.
func Simulate(root Process, horizon float64) (*sim.Scheduler, error) {
	s := sim.NewScheduler()
	if err := Drive(s, root); err != nil {
		return s, err
	}
	if err := s.Run(horizon); err != nil {
		return s, err
	}
	return s, nil
}
