package stock

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name       string
		initial    float64
		consumed   float64
		wastage    float64
		remaining  float64
		percentage int
	}{
		{name: "untouched keg", initial: 20, remaining: 20, percentage: 100},
		{name: "ipa example", initial: 20, consumed: 2.365, wastage: 0.1, remaining: 17.535, percentage: 88},
		{name: "overdrawn clamps to zero", initial: 10, consumed: 9, wastage: 2, remaining: 0, percentage: 0},
		{name: "zero initial", initial: 0, consumed: 3, remaining: 0, percentage: 0},
		{name: "negative inputs clamp", initial: 10, consumed: -4, wastage: -1, remaining: 10, percentage: 100},
		{name: "negative initial", initial: -5, consumed: 1, remaining: 0, percentage: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Compute("IPA", tc.initial, tc.consumed, tc.wastage)
			assert.Equal(t, "IPA", got.Style)
			assert.InDelta(t, tc.remaining, got.Remaining, 1e-9)
			assert.Equal(t, tc.percentage, got.Percentage)
			assert.GreaterOrEqual(t, got.ConsumedLiters, 0.0)
			assert.GreaterOrEqual(t, got.WastageLiters, 0.0)
		})
	}
}

func TestComputeRemainingFormulaHoldsForRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		initial := rng.Float64() * 50
		consumed := rng.Float64() * 60
		wastage := rng.Float64() * 5

		got := Compute("s", initial, consumed, wastage)

		want := initial - consumed - wastage
		if want < 0 {
			want = 0
		}
		assert.InDelta(t, want, got.Remaining, 1e-9)
		assert.GreaterOrEqual(t, got.Percentage, 0)
		assert.LessOrEqual(t, got.Percentage, 100)
	}

	assert.Equal(t, 0, Compute("s", 0, 0, 0).Percentage)
}
