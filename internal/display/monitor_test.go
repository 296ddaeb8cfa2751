package display

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
)

func testMonitor(t *testing.T) *Monitor {
	t.Helper()
	m, err := NewMonitor("test", 53, 65, 1920, 1080)
	require.NoError(t, err)
	return m
}

func TestNewMonitor_Invalid(t *testing.T) {
	_, err := NewMonitor("bad", 0, 65, 1920, 1080)
	assert.True(t, errors.Is(err, gaze.ErrConfiguration))
	_, err = NewMonitor("bad", 53, 65, 0, 1080)
	assert.True(t, errors.Is(err, gaze.ErrConfiguration))
}

func TestMonitor_LinearConversions(t *testing.T) {
	m := testMonitor(t)

	assert.InDelta(t, 53.0, m.PixToCm(1920), 1e-9)
	assert.InDelta(t, 960.0, m.CmToPix(26.5), 1e-9)

	for _, px := range []float64{-960, -100, 0, 1, 540} {
		assert.InDelta(t, px, m.CmToPix(m.PixToCm(px)), 1e-9)
		assert.InDelta(t, px, m.DegToPix(m.PixToDeg(px)), 1e-9)
	}

	// One degree at 65cm is 65*0.017455 cm on screen.
	assert.InDelta(t, 65*0.017455*1920/53, m.DegToPix(1), 1e-9)
}

func TestMonitor_FlatCorrection(t *testing.T) {
	m := testMonitor(t)

	// On an axis the flat correction reduces to tan().
	got := m.DegFlatToPix(gaze.Point{X: 10, Y: 0})
	assert.InDelta(t, m.CmToPix(65*math.Tan(10*math.Pi/180)), got.X, 1e-9)
	assert.InDelta(t, 0, got.Y, 1e-12)

	for _, deg := range []gaze.Point{{X: 10, Y: 5}, {X: -20, Y: 15}, {X: 3, Y: -12}, {X: 0, Y: 7}} {
		back := m.PixToDegFlat(m.DegFlatToPix(deg))
		assert.InDelta(t, deg.X, back.X, 1e-9, "x for %+v", deg)
		assert.InDelta(t, deg.Y, back.Y, 1e-9, "y for %+v", deg)
	}
}
