package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/faultsim/sim"
	"github.com/inference-sim/faultsim/sim/process"
)

// Job is one batch of replications of a single process tree.
type Job struct {
	Process      NodeSpec
	Parameters   map[string]float64
	Replications int
	Horizon      float64
}

// Runner executes the replications of a Job.
//
// With Workers <= 1 replications run one after another and all draw from the shared stream
// directly. With Workers > 1 each replication gets its own substream, seeded serially from
// the shared stream before any replication starts, so results depend on the seed but not on
// scheduling. Samples always reach the sink in replication order.
type Runner struct {
	Registry *Registry
	Workers  int
	Metrics  *Metrics
	Log      *logrus.Entry
}

// NewRunner returns a serial runner over the built-in kinds.
func NewRunner() *Runner {
	return &Runner{Registry: NewRegistry(), Workers: 1, Log: logrus.NewEntry(logrus.StandardLogger())}
}

// Run executes job.Replications independent replications, each on a fresh scheduler and a
// fresh tree, and collects one scalar per replication into sink. A malformed job fails before
// any replication executes.
func (r *Runner) Run(ctx context.Context, job Job, stream *sim.Stream, sink process.Sink) error {
	if job.Replications <= 0 {
		return sim.NewFieldError(sim.ErrConfiguration, "replications", "must be > 0, got %d", job.Replications)
	}
	if math.IsNaN(job.Horizon) || math.IsInf(job.Horizon, 0) || job.Horizon <= 0 {
		return sim.NewFieldError(sim.ErrConfiguration, "horizon", "must be a finite value > 0, got %v", job.Horizon)
	}
	// Build once against a throwaway stream to surface configuration errors without
	// consuming the shared one.
	probe, err := r.Registry.Build(job.Process, job.Parameters, sim.NewSeededStream(0))
	if err != nil {
		if errors.Is(err, sim.ErrConfiguration) {
			return fmt.Errorf("building process tree: %w", err)
		}
		return fmt.Errorf("building process tree: %w: %w", sim.ErrConfiguration, err)
	}
	for _, race := range process.InexactRaces(probe) {
		r.log().Warnf("%s; discarding race losers is only exact for exponential children", race)
	}
	r.log().Debugf("replicating %s: %d runs to t=%g", process.Describe(probe), job.Replications, job.Horizon)

	if r.Workers <= 1 {
		return r.runSerial(ctx, job, stream, sink)
	}
	return r.runParallel(ctx, job, stream, sink)
}

func (r *Runner) runSerial(ctx context.Context, job Job, stream *sim.Stream, sink process.Sink) error {
	for i := 0; i < job.Replications; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		root, err := r.replicate(i, job, stream)
		if err != nil {
			return err
		}
		if err := root.Collect(sink); err != nil {
			return fmt.Errorf("replication %d: %w", i, err)
		}
	}
	return nil
}

func (r *Runner) runParallel(ctx context.Context, job Job, stream *sim.Stream, sink process.Sink) error {
	substreams := make([]*sim.Stream, job.Replications)
	for i := range substreams {
		substreams[i] = stream.Substream()
	}
	samples := make([]capture, job.Replications)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Workers)
	for i := 0; i < job.Replications; i++ {
		i := i // per-iteration copy (go directive lowered below 1.22)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			root, err := r.replicate(i, job, substreams[i])
			if err != nil {
				return err
			}
			return root.Collect(&samples[i])
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i := range samples {
		if err := sink.Collect(samples[i].value); err != nil {
			return fmt.Errorf("replication %d: %w", i, err)
		}
	}
	return nil
}

// replicate builds a fresh tree on stream and drives it to the horizon.
func (r *Runner) replicate(i int, job Job, stream *sim.Stream) (process.Process, error) {
	start := time.Now()
	root, err := r.Registry.Build(job.Process, job.Parameters, stream)
	if err != nil {
		return nil, fmt.Errorf("replication %d: building process tree: %w", i, err)
	}
	s, err := process.Simulate(root, job.Horizon)
	if err != nil {
		return nil, fmt.Errorf("replication %d: %w", i, err)
	}
	if r.Metrics != nil {
		r.Metrics.Replications.Inc()
		r.Metrics.Events.Add(float64(s.Processed()))
		r.Metrics.ReplicationDuration.Observe(time.Since(start).Seconds())
	}
	r.log().Debugf("replication %d: %d events, %d cycles, statistic %.6g",
		i, s.Processed(), root.Count(), root.Statistic())
	return root, nil
}

func (r *Runner) log() *logrus.Entry {
	if r.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return r.Log
}

// capture is a single-sample Sink used to hand a replication's result back to the caller.
type capture struct {
	value float64
	set   bool
}

func (c *capture) Collect(v float64) error {
	if c.set {
		return errors.New("replication reported more than one sample")
	}
	c.value, c.set = v, true
	return nil
}
