// Package dist provides the leaf distributions of a process tree.
//
// Every sampler draws by inverse-transform from the caller's *rand.Rand, so all randomness in a
// replication flows through the experiment's shared stream. Quantile and moment formulas come
// from gonum's distuv.
package dist

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inference-sim/faultsim/sim"
)

// Distribution samples non-negative inter-event times.
type Distribution interface {
	// Sample returns a value >= 0 drawn from rng.
	Sample(rng *rand.Rand) float64
	// Mean returns the analytic mean, used for sanity checks and reports.
	Mean() float64
	// String describes the distribution and its parameters.
	String() string
}

// Exponential is memoryless; it is the only distribution for which racing and
// discarding losers is exact.
type Exponential struct {
	d distuv.Exponential
}

// NewExponential returns an exponential distribution with the given rate (events per unit time).
func NewExponential(rate float64) (*Exponential, error) {
	if err := requirePositive("rate", rate); err != nil {
		return nil, err
	}
	return &Exponential{d: distuv.Exponential{Rate: rate}}, nil
}

func (e *Exponential) Sample(rng *rand.Rand) float64 {
	return e.d.Quantile(rng.Float64())
}

func (e *Exponential) Mean() float64 { return e.d.Mean() }

// Rate returns the rate parameter.
func (e *Exponential) Rate() float64 { return e.d.Rate }

func (e *Exponential) String() string {
	return fmt.Sprintf("exponential(rate=%g)", e.d.Rate)
}

// Uniform draws from [a, b].
type Uniform struct {
	d distuv.Uniform
}

// NewUniform returns a uniform distribution on [a, b] with 0 <= a <= b and b > 0.
func NewUniform(a, b float64) (*Uniform, error) {
	if math.IsNaN(a) || a < 0 {
		return nil, sim.NewFieldError(sim.ErrDegenerateInput, "a", "must be >= 0, got %v", a)
	}
	if err := requirePositive("b", b); err != nil {
		return nil, err
	}
	if b < a {
		return nil, sim.NewFieldError(sim.ErrDegenerateInput, "b", "must be >= a (%v), got %v", a, b)
	}
	return &Uniform{d: distuv.Uniform{Min: a, Max: b}}, nil
}

func (u *Uniform) Sample(rng *rand.Rand) float64 {
	if u.d.Min == u.d.Max {
		return u.d.Min
	}
	return u.d.Quantile(rng.Float64())
}

func (u *Uniform) Mean() float64 { return u.d.Mean() }

func (u *Uniform) String() string {
	return fmt.Sprintf("uniform(a=%g, b=%g)", u.d.Min, u.d.Max)
}

// Weibull uses the (alpha=scale, beta=shape) parameterization.
type Weibull struct {
	d distuv.Weibull
}

// NewWeibull returns a Weibull distribution with scale alpha and shape beta.
func NewWeibull(alpha, beta float64) (*Weibull, error) {
	if err := requirePositive("alpha", alpha); err != nil {
		return nil, err
	}
	if err := requirePositive("beta", beta); err != nil {
		return nil, err
	}
	return &Weibull{d: distuv.Weibull{K: beta, Lambda: alpha}}, nil
}

func (w *Weibull) Sample(rng *rand.Rand) float64 {
	return w.d.Quantile(rng.Float64())
}

func (w *Weibull) Mean() float64 { return w.d.Mean() }

func (w *Weibull) String() string {
	return fmt.Sprintf("weibull(alpha=%g, beta=%g)", w.d.Lambda, w.d.K)
}

// Constant always returns the same delay. It does not consume the stream.
type Constant struct {
	value float64
}

// NewConstant returns a distribution fixed at value (>= 0).
func NewConstant(value float64) (*Constant, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return nil, sim.NewFieldError(sim.ErrDegenerateInput, "value", "must be a finite value >= 0, got %v", value)
	}
	return &Constant{value: value}, nil
}

func (c *Constant) Sample(_ *rand.Rand) float64 { return c.value }

func (c *Constant) Mean() float64 { return c.value }

func (c *Constant) String() string {
	return fmt.Sprintf("constant(value=%g)", c.value)
}

// IsMemoryless reports whether d forgets elapsed time, i.e. whether it is exponential.
func IsMemoryless(d Distribution) bool {
	_, ok := d.(*Exponential)
	return ok
}

func requirePositive(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return sim.NewFieldError(sim.ErrDegenerateInput, field, "must be a finite value > 0, got %v", v)
	}
	return nil
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return sim.NewFieldError(sim.ErrConfiguration, k, "distribution requires parameter %q", k)
		}
	}
	return nil
}

// Kinds lists the distribution names accepted by New.
func Kinds() []string {
	kinds := make([]string, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

var constructors = map[string]func(params map[string]float64) (Distribution, error){
	"exponential": func(p map[string]float64) (Distribution, error) {
		if err := requireParam(p, "rate"); err != nil {
			return nil, err
		}
		return NewExponential(p["rate"])
	},
	"uniform": func(p map[string]float64) (Distribution, error) {
		if err := requireParam(p, "a", "b"); err != nil {
			return nil, err
		}
		return NewUniform(p["a"], p["b"])
	},
	"weibull": func(p map[string]float64) (Distribution, error) {
		if err := requireParam(p, "alpha", "beta"); err != nil {
			return nil, err
		}
		return NewWeibull(p["alpha"], p["beta"])
	},
	"constant": func(p map[string]float64) (Distribution, error) {
		if err := requireParam(p, "value"); err != nil {
			return nil, err
		}
		return NewConstant(p["value"])
	},
}

// New creates a Distribution of the named kind from a params map.
func New(kind string, params map[string]float64) (Distribution, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, sim.NewFieldError(sim.ErrConfiguration, "kind", "unknown distribution type %q", kind)
	}
	return ctor(params)
}
