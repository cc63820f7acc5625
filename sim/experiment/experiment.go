// Package experiment turns a YAML experiment description into replicated simulation runs.
//
// A Config names a process tree (NodeSpec), the number of replications, the horizon and
// optionally a parameter sweep. The Registry builds a fresh tree per replication, the Runner
// drives replications (serially or on an errgroup) and feeds one sample per replication into
// a stats.Collector, and Sweep repeats that per swept parameter value.
package experiment

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/faultsim/sim"
	"github.com/inference-sim/faultsim/sim/stats"
)

// Experiment binds a Config to the stream, collector and runner of one invocation.
type Experiment struct {
	ID        uuid.UUID
	Config    *Config
	Stream    *sim.Stream
	Collector *stats.Collector
	Runner    *Runner
	Log       *logrus.Entry
}

// New prepares an experiment. The stream is seeded from cfg.Seed when set and from the wall
// clock otherwise. reg may be nil, in which case no metrics are recorded.
func New(cfg *Config, reg prometheus.Registerer) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := cfg.StatTable()
	if err != nil {
		return nil, sim.NewFieldError(sim.ErrConfiguration, "stats", "%v", err)
	}

	stream := sim.NewStream()
	if cfg.Seed != nil {
		stream = sim.NewSeededStream(sim.NewSimulationKey(*cfg.Seed))
	}

	id := uuid.New()
	log := logrus.WithField("run_id", id.String())

	runner := NewRunner()
	runner.Workers = cfg.Workers
	runner.Log = log
	if reg != nil {
		runner.Metrics = NewMetrics(reg)
	}

	return &Experiment{
		ID:        id,
		Config:    cfg,
		Stream:    stream,
		Collector: stats.NewCollector(table),
		Runner:    runner,
		Log:       log,
	}, nil
}

// Run executes the experiment: a sweep when one is configured, otherwise a single row keyed
// "run". It returns the swept values of the closed rows (nil without a sweep).
func (e *Experiment) Run(ctx context.Context) ([]float64, error) {
	e.Log.Infof("experiment starting: seed=%d replications=%d horizon=%g workers=%d",
		e.Stream.Key(), e.Config.Replications, e.Config.Horizon, e.Runner.Workers)
	if e.Config.Sweep != nil {
		return Sweep(ctx, e.Config, e.Runner, e.Stream, e.Collector)
	}
	if err := RunOnce(ctx, e.Config, e.Runner, e.Stream, e.Collector, SingleRowKey); err != nil {
		return nil, err
	}
	return nil, nil
}

// SingleRowKey keys the one row of an experiment without a sweep.
const SingleRowKey = "run"
