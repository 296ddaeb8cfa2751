package gaze

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAveragePoint(t *testing.T) {
	left := Point{X: 0.2, Y: 0.4}
	right := Point{X: 0.6, Y: 0.8}

	t.Run("left invalid falls back to right", func(t *testing.T) {
		assert.Equal(t, right, AveragePoint(left, false, right, true))
	})
	t.Run("right invalid falls back to left", func(t *testing.T) {
		assert.Equal(t, left, AveragePoint(left, true, right, false))
	})
	t.Run("both valid is the mean", func(t *testing.T) {
		got := AveragePoint(left, true, right, true)
		assert.InDelta(t, 0.4, got.X, 1e-12)
		assert.InDelta(t, 0.6, got.Y, 1e-12)
	})
	t.Run("both invalid is NaN", func(t *testing.T) {
		assert.True(t, AveragePoint(left, false, right, false).IsNaN())
	})
}

func TestAverageValue(t *testing.T) {
	assert.Equal(t, 3.5, AverageValue(3.0, false, 3.5, true))
	assert.Equal(t, 3.0, AverageValue(3.0, true, 3.5, false))
	assert.Equal(t, 3.25, AverageValue(3.0, true, 3.5, true))
	assert.True(t, math.IsNaN(AverageValue(3.0, false, 3.5, false)))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.2346, Round(1.23456, 4))
	assert.Equal(t, 12.3, Round(12.34, 1))
	assert.Equal(t, -0.5, Round(-0.49999, 4))
	assert.Equal(t, 3.0, Round(2.999, 0))

	// halves resolve on the stored value, exact ties to even
	assert.Equal(t, 0.1, Round(0.15, 1))
	assert.Equal(t, 0.2, Round(0.25, 1))
	assert.Equal(t, 0.5, Round(0.45, 1))
	assert.Equal(t, 0.12, Round(0.125, 2))
	assert.Equal(t, 2.0, Round(2.5, 0))
	assert.Equal(t, -2.0, Round(-2.5, 0))
	assert.True(t, math.IsNaN(Round(math.NaN(), 4)))
}

func TestErrorKindsWrap(t *testing.T) {
	err := fmt.Errorf("%w: bad input", ErrConfiguration)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.False(t, errors.Is(err, ErrResourceAbsent))
}
