package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func alternating(a, b float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = a
		} else {
			out[i] = b
		}
	}
	return out
}

func enabledRegime() RegimeConfig {
	cfg := DefaultRegimeConfig()
	cfg.Enabled = true
	return cfg
}

func TestRegimeDisabledMultiplier(t *testing.T) {
	r := NewRegimeDetector(DefaultRegimeConfig())
	assert.Equal(t, RegimeUnknown, r.Refresh(repeat(0.01, 100)))
	assert.Equal(t, 1.0, r.Multiplier())
}

func TestRegimeNeedsLongWindow(t *testing.T) {
	r := NewRegimeDetector(enabledRegime())
	assert.Equal(t, RegimeUnknown, r.Refresh(repeat(0.01, 10)))
	assert.Equal(t, 1.0, r.Multiplier())
}

func TestRegimeClassification(t *testing.T) {
	tests := []struct {
		name    string
		returns []float64
		want    Regime
		mult    float64
	}{
		{"bull", alternating(0.011, 0.009, 60), RegimeBull, 1.0},
		{"bear", alternating(-0.011, -0.009, 60), RegimeBear, 0.5},
		{"sideways", alternating(0.001, -0.001, 60), RegimeSideways, 0.75},
		{"high volatility", append(alternating(0.001, -0.001, 40), alternating(0.05, -0.05, 20)...), RegimeHighVolatility, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegimeDetector(enabledRegime())
			assert.Equal(t, tt.want, r.Refresh(tt.returns))
			assert.Equal(t, tt.want, r.Current())
			assert.Equal(t, tt.mult, r.Multiplier())
		})
	}
}

func TestStddevIsSample(t *testing.T) {
	assert.InDelta(t, 1.0, stddev([]float64{1, 2, 3}), 1e-12)
	assert.Equal(t, 0.0, stddev([]float64{5}))
}
