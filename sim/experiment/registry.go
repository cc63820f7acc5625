package experiment

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/inference-sim/faultsim/sim"
	"github.com/inference-sim/faultsim/sim/dist"
	"github.com/inference-sim/faultsim/sim/process"
)

// Builder constructs one node of a process tree from its BuildContext.
type Builder func(c *BuildContext) (process.Process, error)

// Registry maps a kind name to its Builder.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry returns a registry with every built-in kind registered.
func NewRegistry() *Registry {
	r := &Registry{builders: make(map[string]Builder)}
	for kind, fields := range leafFields {
		r.builders[kind] = leafBuilder(kind, fields)
	}
	r.builders["sequential"] = buildSequential
	r.builders["availability"] = buildAvailability
	r.builders["parallel"] = buildParallel
	r.builders["branching"] = buildBranching
	r.builders["n_exponential"] = buildNExponential
	r.builders["two_stage"] = buildTwoStage
	r.builders["three_stage"] = buildThreeStage
	return r
}

// Register adds a kind. Registering an existing kind is an error.
func (r *Registry) Register(kind string, b Builder) error {
	if kind == "" || b == nil {
		return fmt.Errorf("register kind %q: %w: empty kind or nil builder", kind, sim.ErrConfiguration)
	}
	if _, ok := r.builders[kind]; ok {
		return fmt.Errorf("register kind %q: %w: already registered", kind, sim.ErrConfiguration)
	}
	r.builders[kind] = b
	return nil
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.builders))
	for k := range r.builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build constructs a fresh process tree from spec. params are the experiment parameters
// that node fields may bind to; stream supplies every random draw of the tree.
func (r *Registry) Build(spec NodeSpec, params map[string]float64, stream *sim.Stream) (process.Process, error) {
	return r.build(spec, "process", params, stream)
}

func (r *Registry) build(spec NodeSpec, path string, params map[string]float64, stream *sim.Stream) (process.Process, error) {
	b, ok := r.builders[spec.Kind]
	if !ok {
		return nil, sim.NewFieldError(sim.ErrConfiguration, path+".kind", "unknown kind %q", spec.Kind)
	}
	c := &BuildContext{
		Spec:     spec,
		Path:     path,
		Params:   params,
		Stream:   stream,
		registry: r,
		used:     make(map[string]bool),
	}
	p, err := b(c)
	if err != nil {
		return nil, err
	}
	if err := c.checkUnused(); err != nil {
		return nil, err
	}
	return p, nil
}

// BuildContext gives a Builder access to its node's fields. Lookups record which fields were
// consumed so that leftover (misspelled or misplaced) fields are reported.
type BuildContext struct {
	Spec   NodeSpec
	Path   string
	Params map[string]float64
	Stream *sim.Stream

	registry          *Registry
	used              map[string]bool
	usedChildren      bool
	usedProbabilities bool
}

// Name returns the node name, defaulting to its kind.
func (c *BuildContext) Name() string {
	if c.Spec.Name != "" {
		return c.Spec.Name
	}
	return c.Spec.Kind
}

// Float resolves a scalar field. A bind entry names the experiment parameter to read; otherwise
// the node's own params are used; otherwise an experiment parameter of the same name.
func (c *BuildContext) Float(field string) (float64, error) {
	v, ok, err := c.lookup(field)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, sim.NewFieldError(sim.ErrConfiguration, c.Path+".params."+field, "required field is missing")
	}
	return v, nil
}

// FloatOr resolves an optional scalar field.
func (c *BuildContext) FloatOr(field string, def float64) (float64, error) {
	v, ok, err := c.lookup(field)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// Int resolves a scalar field that must hold a positive whole number.
func (c *BuildContext) Int(field string) (int, error) {
	v, err := c.Float(field)
	if err != nil {
		return 0, err
	}
	if v < 1 || v != math.Trunc(v) {
		return 0, sim.NewFieldError(sim.ErrConfiguration, c.Path+".params."+field, "must be a positive integer, got %v", v)
	}
	return int(v), nil
}

func (c *BuildContext) lookup(field string) (float64, bool, error) {
	c.used[field] = true
	if ref, ok := c.Spec.Bind[field]; ok {
		v, ok := c.Params[ref]
		if !ok {
			return 0, false, sim.NewFieldError(sim.ErrConfiguration, c.Path+".bind."+field, "unknown experiment parameter %q", ref)
		}
		return v, true, nil
	}
	if v, ok := c.Spec.Params[field]; ok {
		return v, true, nil
	}
	if v, ok := c.Params[field]; ok {
		return v, true, nil
	}
	return 0, false, nil
}

// Children builds every child node. At least one child is required.
func (c *BuildContext) Children() ([]process.Process, error) {
	c.usedChildren = true
	if len(c.Spec.Children) == 0 {
		return nil, sim.NewFieldError(sim.ErrConfiguration, c.Path+".children", "at least one child is required")
	}
	out := make([]process.Process, len(c.Spec.Children))
	for i, child := range c.Spec.Children {
		p, err := c.registry.build(child, fmt.Sprintf("%s.children[%d]", c.Path, i), c.Params, c.Stream)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// Probabilities returns the branch probability list.
func (c *BuildContext) Probabilities() []float64 {
	c.usedProbabilities = true
	return c.Spec.Probabilities
}

// Wrap prefixes a constructor error with this node's path.
func (c *BuildContext) Wrap(err error) error {
	var fe *sim.FieldError
	if errors.As(err, &fe) {
		return &sim.FieldError{Field: c.Path + "." + fe.Field, Reason: fe.Reason, Err: fe.Err}
	}
	return fmt.Errorf("%s: %w", c.Path, err)
}

func (c *BuildContext) checkUnused() error {
	for _, field := range sortedKeys(c.Spec.Params) {
		if !c.used[field] {
			return sim.NewFieldError(sim.ErrConfiguration, c.Path+".params."+field, "not a field of kind %q", c.Spec.Kind)
		}
	}
	for _, field := range sortedKeys(c.Spec.Bind) {
		if !c.used[field] {
			return sim.NewFieldError(sim.ErrConfiguration, c.Path+".bind."+field, "not a field of kind %q", c.Spec.Kind)
		}
	}
	if len(c.Spec.Children) > 0 && !c.usedChildren {
		return sim.NewFieldError(sim.ErrConfiguration, c.Path+".children", "kind %q takes no children", c.Spec.Kind)
	}
	if len(c.Spec.Probabilities) > 0 && !c.usedProbabilities {
		return sim.NewFieldError(sim.ErrConfiguration, c.Path+".probabilities", "kind %q takes no probabilities", c.Spec.Kind)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// leafFields lists the fields each distribution kind reads, in dist.New's naming.
var leafFields = map[string][]string{
	"exponential": {"rate"},
	"uniform":     {"a", "b"},
	"weibull":     {"alpha", "beta"},
	"constant":    {"value"},
}

func leafBuilder(kind string, fields []string) Builder {
	return func(c *BuildContext) (process.Process, error) {
		values := make(map[string]float64, len(fields))
		for _, f := range fields {
			v, err := c.Float(f)
			if err != nil {
				return nil, err
			}
			values[f] = v
		}
		d, err := dist.New(kind, values)
		if err != nil {
			return nil, c.Wrap(paramsField(err))
		}
		return process.NewLeaf(c.Name(), d, c.Stream.Rand()), nil
	}
}

// paramsField moves a distribution's bare field name under "params.".
func paramsField(err error) error {
	var fe *sim.FieldError
	if errors.As(err, &fe) {
		return &sim.FieldError{Field: "params." + fe.Field, Reason: fe.Reason, Err: fe.Err}
	}
	return err
}

func buildSequential(c *BuildContext) (process.Process, error) {
	children, err := c.Children()
	if err != nil {
		return nil, err
	}
	p, err := process.NewSequential(c.Name(), children)
	if err != nil {
		return nil, c.Wrap(err)
	}
	return p, nil
}

func buildAvailability(c *BuildContext) (process.Process, error) {
	children, err := c.Children()
	if err != nil {
		return nil, err
	}
	p, err := process.NewAvailability(c.Name(), children)
	if err != nil {
		return nil, c.Wrap(err)
	}
	return p, nil
}

func buildParallel(c *BuildContext) (process.Process, error) {
	children, err := c.Children()
	if err != nil {
		return nil, err
	}
	p, err := process.NewParallel(c.Name(), children)
	if err != nil {
		return nil, c.Wrap(err)
	}
	return p, nil
}

func buildBranching(c *BuildContext) (process.Process, error) {
	children, err := c.Children()
	if err != nil {
		return nil, err
	}
	p, err := process.NewBranching(c.Name(), children, c.Probabilities(), c.Stream)
	if err != nil {
		return nil, c.Wrap(err)
	}
	return p, nil
}

func exponentialLeaf(c *BuildContext, name string, rate float64, field string) (*process.Leaf, error) {
	d, err := dist.NewExponential(rate)
	if err != nil {
		return nil, sim.NewFieldError(sim.ErrDegenerateInput, c.Path+".params."+field, "must be a finite value > 0, got %v", rate)
	}
	return process.NewLeaf(name, d, c.Stream.Rand()), nil
}

// buildNExponential is num_process identical exponential sources racing each other.
func buildNExponential(c *BuildContext) (process.Process, error) {
	n, err := c.Int("num_process")
	if err != nil {
		return nil, err
	}
	rate, err := c.Float("rate")
	if err != nil {
		return nil, err
	}
	children := make([]process.Process, n)
	for i := range children {
		leaf, err := exponentialLeaf(c, fmt.Sprintf("%s %d", c.Name(), i), rate, "rate")
		if err != nil {
			return nil, err
		}
		children[i] = leaf
	}
	p, err := process.NewParallel(c.Name(), children)
	if err != nil {
		return nil, c.Wrap(err)
	}
	return p, nil
}

// buildTwoStage is an exponential failure followed by an exponential recovery.
func buildTwoStage(c *BuildContext) (process.Process, error) {
	return buildStages(c, false)
}

// buildThreeStage adds a second recovery stage; its rate defaults to recovery_rate.
func buildThreeStage(c *BuildContext) (process.Process, error) {
	return buildStages(c, true)
}

func buildStages(c *BuildContext, second bool) (process.Process, error) {
	failRate, err := c.Float("failure_rate")
	if err != nil {
		return nil, err
	}
	recRate, err := c.Float("recovery_rate")
	if err != nil {
		return nil, err
	}
	fail, err := exponentialLeaf(c, "Fail", failRate, "failure_rate")
	if err != nil {
		return nil, err
	}
	stages := []process.Process{fail}
	if !second {
		rec, err := exponentialLeaf(c, "Recover", recRate, "recovery_rate")
		if err != nil {
			return nil, err
		}
		stages = append(stages, rec)
	} else {
		rec2Rate, err := c.FloatOr("recovery2_rate", recRate)
		if err != nil {
			return nil, err
		}
		rec1, err := exponentialLeaf(c, "Recover1", recRate, "recovery_rate")
		if err != nil {
			return nil, err
		}
		rec2, err := exponentialLeaf(c, "Recover2", rec2Rate, "recovery2_rate")
		if err != nil {
			return nil, err
		}
		stages = append(stages, rec1, rec2)
	}
	p, err := process.NewAvailability(c.Name(), stages)
	if err != nil {
		return nil, c.Wrap(err)
	}
	return p, nil
}
