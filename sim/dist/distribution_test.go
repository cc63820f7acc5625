package dist

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/faultsim/sim"
)

func TestNew_AllKinds_SamplesNonNegative(t *testing.T) {
	tests := []struct {
		kind   string
		params map[string]float64
	}{
		{"exponential", map[string]float64{"rate": 0.5}},
		{"uniform", map[string]float64{"a": 0, "b": 3}},
		{"weibull", map[string]float64{"alpha": 2, "beta": 0.7}},
		{"constant", map[string]float64{"value": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			d, err := New(tt.kind, tt.params)
			require.NoError(t, err)
			rng := rand.New(rand.NewSource(42))
			for i := 0; i < 10000; i++ {
				if v := d.Sample(rng); v < 0 || math.IsNaN(v) {
					t.Fatalf("sample %d: got %v, want >= 0", i, v)
				}
			}
		})
	}
}

func TestExponential_MeanMatchesRate(t *testing.T) {
	d, err := NewExponential(0.5)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(42))
	n := 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += d.Sample(rng)
	}
	mean := sum / float64(n)
	if math.Abs(mean-2.0)/2.0 > 0.05 {
		t.Errorf("exponential mean = %.3f, want ≈ 2.0 (within 5%%)", mean)
	}
	assert.InDelta(t, 2.0, d.Mean(), 1e-12)
}

func TestUniform_StaysInRange(t *testing.T) {
	d, err := NewUniform(1, 4)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		v := d.Sample(rng)
		if v < 1 || v > 4 {
			t.Fatalf("sample %d: %v outside [1, 4]", i, v)
		}
	}
	assert.InDelta(t, 2.5, d.Mean(), 1e-12)
}

func TestUniform_DegenerateInterval_ReturnsBound(t *testing.T) {
	d, err := NewUniform(2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, d.Sample(rand.New(rand.NewSource(1))))
}

func TestWeibull_ShapeOne_IsExponential(t *testing.T) {
	// Weibull(scale=2, shape=1) has mean 2, same as exponential(rate=0.5).
	d, err := NewWeibull(2, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d.Mean(), 1e-9)
}

func TestNew_RejectsBadParameters(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		params map[string]float64
		want   error
		field  string
	}{
		{"zero rate", "exponential", map[string]float64{"rate": 0}, sim.ErrDegenerateInput, "rate"},
		{"negative rate", "exponential", map[string]float64{"rate": -1}, sim.ErrDegenerateInput, "rate"},
		{"missing rate", "exponential", map[string]float64{}, sim.ErrConfiguration, "rate"},
		{"inverted uniform", "uniform", map[string]float64{"a": 3, "b": 1}, sim.ErrDegenerateInput, "b"},
		{"negative a", "uniform", map[string]float64{"a": -1, "b": 1}, sim.ErrDegenerateInput, "a"},
		{"zero shape", "weibull", map[string]float64{"alpha": 1, "beta": 0}, sim.ErrDegenerateInput, "beta"},
		{"missing scale", "weibull", map[string]float64{"beta": 1}, sim.ErrConfiguration, "alpha"},
		{"negative constant", "constant", map[string]float64{"value": -2}, sim.ErrDegenerateInput, "value"},
		{"unknown kind", "lognormal", nil, sim.ErrConfiguration, "kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, tt.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
			var fe *sim.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestIsMemoryless(t *testing.T) {
	e, _ := NewExponential(1)
	w, _ := NewWeibull(1, 1)
	assert.True(t, IsMemoryless(e))
	assert.False(t, IsMemoryless(w))
}

func TestKinds_Sorted(t *testing.T) {
	assert.Equal(t, []string{"constant", "exponential", "uniform", "weibull"}, Kinds())
}
