package experiment

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/inference-sim/faultsim/sim"
	"github.com/inference-sim/faultsim/sim/stats"
)

// RowKey formats a swept value as a collector row key.
func RowKey(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// MaxSweepRows bounds the number of values a single sweep may produce.
const MaxSweepRows = 10000

// SweepValues returns Start, Start+Step, ... up to End inclusive. Values are computed as
// Start + i*Step so rounding does not accumulate across steps.
func SweepValues(s SweepSpec) ([]float64, error) {
	if !isFinite(s.Start) {
		return nil, sim.NewFieldError(sim.ErrConfiguration, "sweep.start", "must be finite, got %v", s.Start)
	}
	if !isFinite(s.End) {
		return nil, sim.NewFieldError(sim.ErrConfiguration, "sweep.end", "must be finite, got %v", s.End)
	}
	if !isFinite(s.Step) || s.Step <= 0 {
		return nil, sim.NewFieldError(sim.ErrConfiguration, "sweep.step", "must be a finite value > 0, got %v", s.Step)
	}
	if s.End < s.Start {
		return nil, sim.NewFieldError(sim.ErrConfiguration, "sweep.end", "must be >= start (%v), got %v", s.Start, s.End)
	}
	steps := math.Floor((s.End-s.Start)/s.Step + 1e-6)
	if steps+1 > MaxSweepRows {
		return nil, sim.NewFieldError(sim.ErrConfiguration, "sweep.step",
			"%v to %v by %v gives more than %d rows", s.Start, s.End, s.Step, MaxSweepRows)
	}
	values := make([]float64, int(steps)+1)
	for i := range values {
		values[i] = s.Start + float64(i)*s.Step
	}
	return values, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// sweepKeys formats every swept value as a row key. Two values sharing a key would silently
// overwrite each other's row, so that is an error.
func sweepKeys(s SweepSpec, values []float64) ([]string, error) {
	keys := make([]string, len(values))
	seen := make(map[string]float64, len(values))
	for i, v := range values {
		key := RowKey(v)
		if prev, ok := seen[key]; ok {
			return nil, sim.NewFieldError(sim.ErrConfiguration, "sweep.step",
				"step %v is finer than the row key precision: %v and %v both map to row %q", s.Step, prev, v, key)
		}
		seen[key] = v
		keys[i] = key
	}
	return keys, nil
}

// Sweep runs one row per swept value of cfg.Sweep.Parameter: StartRow, one Runner.Run over
// cfg.Replications replications, DoneRow. It returns the swept values of the rows that were
// closed. The first failing row aborts the sweep; earlier rows stay in the collector.
func Sweep(ctx context.Context, cfg *Config, r *Runner, stream *sim.Stream, coll *stats.Collector) ([]float64, error) {
	if cfg.Sweep == nil {
		return nil, sim.NewFieldError(sim.ErrConfiguration, "sweep", "no sweep configured")
	}
	values, err := SweepValues(*cfg.Sweep)
	if err != nil {
		return nil, err
	}
	keys, err := sweepKeys(*cfg.Sweep, values)
	if err != nil {
		return nil, err
	}
	done := make([]float64, 0, len(values))
	for i, v := range values {
		params := make(map[string]float64, len(cfg.Parameters)+1)
		for k, pv := range cfg.Parameters {
			params[k] = pv
		}
		params[cfg.Sweep.Parameter] = v

		key := keys[i]
		if err := runRow(ctx, cfg, r, stream, coll, key, params); err != nil {
			return done, fmt.Errorf("sweep %s=%s: %w", cfg.Sweep.Parameter, key, err)
		}
		done = append(done, v)
		r.log().Infof("sweep %s=%s done (%d/%d)", cfg.Sweep.Parameter, key, i+1, len(values))
	}
	return done, nil
}

// RunOnce runs a single row keyed by key with the config's own parameters.
func RunOnce(ctx context.Context, cfg *Config, r *Runner, stream *sim.Stream, coll *stats.Collector, key string) error {
	return runRow(ctx, cfg, r, stream, coll, key, cfg.Parameters)
}

func runRow(ctx context.Context, cfg *Config, r *Runner, stream *sim.Stream, coll *stats.Collector, key string, params map[string]float64) error {
	coll.StartRow(key)
	job := Job{
		Process:      cfg.Process,
		Parameters:   params,
		Replications: cfg.Replications,
		Horizon:      cfg.Horizon,
	}
	if err := r.Run(ctx, job, stream, coll); err != nil {
		return err
	}
	if err := coll.DoneRow(key); err != nil {
		return err
	}
	if r.Metrics != nil {
		r.Metrics.Rows.Inc()
	}
	return nil
}
