package process

import (
	"errors"
	"math/rand"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/faultsim/sim"
	"github.com/inference-sim/faultsim/sim/dist"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.ErrorLevel)
	}
	os.Exit(m.Run())
}

// constLeaf returns a leaf that always waits delay.
func constLeaf(t *testing.T, name string, delay float64) *Leaf {
	t.Helper()
	d, err := dist.NewConstant(delay)
	require.NoError(t, err)
	return NewLeaf(name, d, rand.New(rand.NewSource(1)))
}

// seqUniform replays a fixed sequence of uniform samples, cycling at the end.
type seqUniform struct {
	vals []float64
	i    int
}

func (u *seqUniform) Float64() float64 {
	v := u.vals[u.i%len(u.vals)]
	u.i++
	return v
}

// recorder is a Sink that keeps every sample.
type recorder struct{ samples []float64 }

func (r *recorder) Collect(v float64) error {
	r.samples = append(r.samples, v)
	return nil
}

// === Leaf ===

func TestLeaf_ZeroCycles_StatisticIsZero(t *testing.T) {
	l := constLeaf(t, "idle", 3)
	assert.Equal(t, 0.0, l.Statistic())
}

func TestLeaf_ReentrantTrigger_IsRejected(t *testing.T) {
	s := sim.NewScheduler()
	l := constLeaf(t, "busy", 1)
	_, err := l.Trigger(s)
	require.NoError(t, err)

	_, err = l.Trigger(s)
	assert.True(t, errors.Is(err, sim.ErrConfiguration))
}

func TestLeaf_Simulate_CreditsEveryCycle(t *testing.T) {
	l := constLeaf(t, "tick", 2)
	_, err := Simulate(l, 11)
	require.NoError(t, err)

	// Firings at 2,4,6,8,10
	assert.Equal(t, 5, l.Count())
	assert.Equal(t, 10.0, l.WaitTime())
	assert.Equal(t, 2.0, l.Statistic())
}

func TestComposite_ArrivalTime_IsAbstract(t *testing.T) {
	a, b := constLeaf(t, "a", 1), constLeaf(t, "b", 1)
	seq, err := NewSequential("seq", []Process{a})
	require.NoError(t, err)
	par, err := NewParallel("par", []Process{b})
	require.NoError(t, err)
	br, err := NewBranching("br", []Process{constLeaf(t, "c", 1)}, []float64{1}, &seqUniform{vals: []float64{0}})
	require.NoError(t, err)

	for _, p := range []Process{seq, par, br} {
		_, err := p.ArrivalTime()
		assert.True(t, errors.Is(err, sim.ErrAbstractMethod), "%s: %v", p.Name(), err)
		assert.True(t, errors.Is(err, sim.ErrConfiguration), "%s: %v", p.Name(), err)
	}
}

// === Sequential ===

func TestSequential_SelectsChildrenRoundRobin(t *testing.T) {
	children := []Process{constLeaf(t, "s0", 1), constLeaf(t, "s1", 2), constLeaf(t, "s2", 3)}
	q, err := NewSequential("seq", children)
	require.NoError(t, err)
	s := sim.NewScheduler()

	for i := 0; i < 7; i++ {
		_, err := q.Trigger(s)
		require.NoError(t, err)
		assert.Equal(t, i%3, q.LastFired(), "cycle %d", i)
		_, err = s.Advance()
		require.NoError(t, err)
		q.UpdateStatistics(1, 1)
	}
}

func TestSequential_CountsSumToCycles(t *testing.T) {
	// GIVEN stages of 1, 2 and 3 time units (6 per round)
	children := []Process{constLeaf(t, "s0", 1), constLeaf(t, "s1", 2), constLeaf(t, "s2", 3)}
	q, err := NewSequential("seq", children)
	require.NoError(t, err)

	// WHEN run for ten full rounds (the firing at t=61 falls after the horizon)
	_, err = Simulate(q, 61)
	require.NoError(t, err)

	// THEN each stage completed 10 cycles and kept its own wait total
	assert.Equal(t, 30, q.Count())
	for i, want := range []float64{10, 20, 30} {
		assert.Equal(t, 10, children[i].Count(), "stage %d count", i)
		assert.Equal(t, want, children[i].WaitTime(), "stage %d wait", i)
	}
	assert.Equal(t, 2.0, q.Statistic())
}

func TestSequential_EmptyChildren_IsConfigurationError(t *testing.T) {
	_, err := NewSequential("empty", nil)
	assert.True(t, errors.Is(err, sim.ErrConfiguration))
}

func TestAvailability_UpAndDownTotals(t *testing.T) {
	up, down := constLeaf(t, "fail", 1), constLeaf(t, "recover", 1)
	a, err := NewAvailability("fr", []Process{up, down})
	require.NoError(t, err)

	up.UpdateStatistics(80, 1)
	down.UpdateStatistics(20, 1)

	assert.InDelta(t, 0.8, a.Statistic(), 1e-12)
	rec := &recorder{}
	require.NoError(t, a.Collect(rec))
	assert.Equal(t, []float64{a.Statistic()}, rec.samples)
}

func TestAvailability_ZeroCycles_ReturnsSentinel(t *testing.T) {
	a, err := NewAvailability("fr", []Process{constLeaf(t, "fail", 1), constLeaf(t, "recover", 1)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.Statistic())
}

func TestAvailability_SingleStage_IsConfigurationError(t *testing.T) {
	_, err := NewAvailability("fr", []Process{constLeaf(t, "fail", 1)})
	assert.True(t, errors.Is(err, sim.ErrConfiguration))
}

func TestAvailability_ThreeStages_SumsAllDownStages(t *testing.T) {
	up, r1, r2 := constLeaf(t, "fail", 6), constLeaf(t, "r1", 1), constLeaf(t, "r2", 1)
	a, err := NewAvailability("fr3", []Process{up, r1, r2})
	require.NoError(t, err)

	_, err = Simulate(a, 81)
	require.NoError(t, err)

	// Ten rounds of 8 units: 60 up, 20 down.
	assert.InDelta(t, 0.75, a.Statistic(), 1e-12)
}

// === Parallel ===

func TestParallel_FixedDelays_ChildOneWins(t *testing.T) {
	children := []Process{constLeaf(t, "c0", 5), constLeaf(t, "c1", 2), constLeaf(t, "c2", 9)}
	p, err := NewParallel("race", children)
	require.NoError(t, err)

	s := sim.NewScheduler()
	for round := 0; round < 3; round++ {
		ev, err := p.Trigger(s)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Winner())
		assert.Equal(t, 2.0, ev.Time()-s.Now())
		_, err = s.Advance()
		require.NoError(t, err)
	}
}

func TestParallel_OnlyWinnerIsCredited(t *testing.T) {
	children := []Process{constLeaf(t, "c0", 5), constLeaf(t, "c1", 2), constLeaf(t, "c2", 9)}
	p, err := NewParallel("race", children)
	require.NoError(t, err)

	s, err := Simulate(p, 11)
	require.NoError(t, err)

	assert.Equal(t, 0, children[0].Count())
	assert.Equal(t, 5, children[1].Count())
	assert.Equal(t, 10.0, children[1].WaitTime())
	assert.Equal(t, 0, children[2].Count())
	assert.Equal(t, 2.0, p.Statistic())
	assert.EqualValues(t, 5, s.Processed(), "discarded losers must never fire")
}

func TestInexactRaces_ReportsNonExponentialRacesOnly(t *testing.T) {
	d, err := dist.NewExponential(1)
	require.NoError(t, err)
	expLeaf := func(name string) *Leaf { return NewLeaf(name, d, rand.New(rand.NewSource(1))) }

	exact, err := NewParallel("exact", []Process{expLeaf("a"), expLeaf("b")})
	require.NoError(t, err)
	assert.Empty(t, InexactRaces(exact))

	inexact, err := NewParallel("inexact", []Process{expLeaf("c"), constLeaf(t, "fixed", 2)})
	require.NoError(t, err)
	root, err := NewSequential("root", []Process{exact, inexact})
	require.NoError(t, err)

	races := InexactRaces(root)
	require.Len(t, races, 1)
	assert.Contains(t, races[0], `parallel "inexact"`)
	assert.Contains(t, races[0], `leaf "fixed"`)
}

func TestParallel_NoCycles_StatisticIsZero(t *testing.T) {
	p, err := NewParallel("race", []Process{constLeaf(t, "slow", 50)})
	require.NoError(t, err)
	_, err = Simulate(p, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Statistic())
}

// === Branching ===

func TestBranching_Select_BoundaryIsExclusive(t *testing.T) {
	b, err := NewBranching("br", []Process{constLeaf(t, "b0", 1), constLeaf(t, "b1", 1)},
		[]float64{0.3, 0.7}, &seqUniform{vals: []float64{0}})
	require.NoError(t, err)

	assert.Equal(t, 0, b.Select(0.2))
	assert.Equal(t, 1, b.Select(0.5))
	assert.Equal(t, 1, b.Select(0.3))
	assert.Equal(t, 0, b.Select(0))
	assert.Equal(t, 1, b.Select(0.9999999))
}

func TestBranching_CDF_IsNonDecreasingAndEndsAtOne(t *testing.T) {
	b, err := NewBranching("br",
		[]Process{constLeaf(t, "b0", 1), constLeaf(t, "b1", 1), constLeaf(t, "b2", 1)},
		[]float64{0.1, 0.0, 0.9}, &seqUniform{vals: []float64{0}})
	require.NoError(t, err)
	cdf := b.CDF()
	for i := 1; i < len(cdf); i++ {
		assert.GreaterOrEqual(t, cdf[i], cdf[i-1])
	}
	assert.Equal(t, 1.0, cdf[len(cdf)-1])
	// A zero-probability branch is never selected.
	assert.Equal(t, 2, b.Select(0.1))
}

func TestBranching_InvalidProbabilities(t *testing.T) {
	two := func() []Process { return []Process{constLeaf(t, "b0", 1), constLeaf(t, "b1", 1)} }
	tests := []struct {
		name  string
		probs []float64
		field string
	}{
		{"sum below one", []float64{0.3, 0.6}, "probabilities"},
		{"sum above one", []float64{0.5, 0.6}, "probabilities"},
		{"length mismatch", []float64{1}, "probabilities"},
		{"negative entry", []float64{-0.5, 1.5}, "probabilities[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBranching("br", two(), tt.probs, &seqUniform{vals: []float64{0}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, sim.ErrConfiguration))
			var fe *sim.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestBranching_CreditsSelectedBranchAndWeightsStatistic(t *testing.T) {
	b0, b1 := constLeaf(t, "b0", 1), constLeaf(t, "b1", 4)
	b, err := NewBranching("br", []Process{b0, b1}, []float64{0.5, 0.5},
		&seqUniform{vals: []float64{0.1, 0.9}})
	require.NoError(t, err)

	_, err = Simulate(b, 10.5)
	require.NoError(t, err)

	// Firings: 1 (b0), 5 (b1), 6 (b0), 10 (b1)
	assert.Equal(t, 2, b0.Count())
	assert.Equal(t, 2.0, b0.WaitTime())
	assert.Equal(t, 2, b1.Count())
	assert.Equal(t, 8.0, b1.WaitTime())
	assert.InDelta(t, 0.5*1+0.5*4, b.Statistic(), 1e-12)
}

// === Nesting ===

func TestNested_AttributionReachesFiringLeaf(t *testing.T) {
	// GIVEN availability[ parallel[5, 2], recover 3 ]
	c0, c1 := constLeaf(t, "c0", 5), constLeaf(t, "c1", 2)
	race, err := NewParallel("sources", []Process{c0, c1})
	require.NoError(t, err)
	rec := constLeaf(t, "recover", 3)
	root, err := NewAvailability("plant", []Process{race, rec})
	require.NoError(t, err)

	// WHEN run for five rounds (firings at 2,5,7,...,25)
	_, err = Simulate(root, 25.5)
	require.NoError(t, err)

	// THEN only the winning source and the recovery stage were credited
	assert.Equal(t, 0, c0.Count())
	assert.Equal(t, 5, c1.Count())
	assert.Equal(t, 10.0, race.WaitTime())
	assert.Equal(t, 5, rec.Count())
	assert.Equal(t, 15.0, rec.WaitTime())
	assert.Equal(t, 10, root.Count())
	assert.InDelta(t, 0.4, root.Statistic(), 1e-12)
}

func TestDescribe_RendersTree(t *testing.T) {
	race, err := NewParallel("sources", []Process{constLeaf(t, "c0", 5)})
	require.NoError(t, err)
	root, err := NewSequential("plant", []Process{race, constLeaf(t, "fix", 1)})
	require.NoError(t, err)
	assert.Equal(t,
		"plant sequential [ sources parallel [ c0 constant(value=5) ], fix constant(value=1) ]",
		Describe(root))
	assert.Len(t, Leaves(root), 2)
}

// === End to end ===

func TestExponentialLeaf_MeanInterFailureNearInverseRate(t *testing.T) {
	stream := sim.NewSeededStream(42)
	d, err := dist.NewExponential(0.5)
	require.NoError(t, err)

	sum := 0.0
	const runs = 100
	for i := 0; i < runs; i++ {
		l := NewLeaf("fail", d, stream.Rand())
		_, err := Simulate(l, 1000)
		require.NoError(t, err)
		sum += l.Statistic()
	}
	assert.InDelta(t, 2.0, sum/runs, 0.2)
}
