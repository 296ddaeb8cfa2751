package coords_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
	"github.com/yeganesereshgi/Demo-Experiment/internal/display"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
)

func newTransform(t *testing.T) *coords.Transform {
	t.Helper()
	mon, err := display.NewMonitor("test", 53, 65, 1920, 1080)
	require.NoError(t, err)
	tr, err := coords.NewTransform(1920, 1080, mon)
	require.NoError(t, err)
	return tr
}

func TestNewTransform_InvalidSize(t *testing.T) {
	_, err := coords.NewTransform(0, 1080, nil)
	assert.True(t, errors.Is(err, gaze.ErrConfiguration))
}

func TestNormAnchors(t *testing.T) {
	tr := newTransform(t)

	got, err := tr.ToPresentation(gaze.Point{X: 0.5, Y: 0.5}, coords.Norm)
	require.NoError(t, err)
	assert.Equal(t, gaze.Point{X: 0, Y: 0}, got)

	got, err = tr.ToDevice(gaze.Point{X: 1, Y: 1}, coords.Norm)
	require.NoError(t, err)
	assert.Equal(t, gaze.Point{X: 1, Y: 0}, got)

	got, err = tr.ToPresentation(gaze.Point{X: 1, Y: 0}, coords.Norm)
	require.NoError(t, err)
	assert.Equal(t, gaze.Point{X: 1, Y: 1}, got)
}

func TestHeightAndPixFormulas(t *testing.T) {
	tr := newTransform(t)
	p := gaze.Point{X: 0.75, Y: 0.25}

	h, err := tr.ToPresentation(p, coords.Height)
	require.NoError(t, err)
	assert.InDelta(t, 0.25*1920.0/1080.0, h.X, 1e-12)
	assert.InDelta(t, 0.25, h.Y, 1e-12)

	px, err := tr.ToPresentation(p, coords.Pix)
	require.NoError(t, err)
	assert.Equal(t, gaze.Point{X: 480, Y: 270}, px)
}

func TestRoundTripEverySystem(t *testing.T) {
	tr := newTransform(t)
	pixelTol := 1.0 / 1080.0

	for _, sys := range coords.PresentationSystems {
		t.Run(string(sys), func(t *testing.T) {
			tol := 1e-12
			switch sys {
			case coords.Pix, coords.Cm, coords.Deg, coords.DegFlat, coords.DegFlatPos:
				tol = pixelTol
			}
			for x := 0.0; x <= 1.0; x += 0.05 {
				for y := 0.0; y <= 1.0; y += 0.05 {
					p := gaze.Point{X: x, Y: y}
					pres, err := tr.ToPresentation(p, sys)
					require.NoError(t, err)
					back, err := tr.ToDevice(pres, sys)
					require.NoError(t, err)
					if math.Abs(back.X-p.X) > tol || math.Abs(back.Y-p.Y) > tol {
						t.Fatalf("%v -> %v -> %v exceeds tolerance %g", p, pres, back, tol)
					}
				}
			}
		})
	}
}

func TestDisplayAreaIsIdentity(t *testing.T) {
	tr := newTransform(t)
	p := gaze.Point{X: 0.3, Y: 0.9}
	got, err := tr.ToPresentation(p, coords.DisplayArea)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	got, err = tr.ToDevice(p, coords.DisplayArea)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestTrackBoxToPresentation(t *testing.T) {
	tr := newTransform(t)
	p := gaze.Point{X: 0.25, Y: 0.75}

	n, err := tr.TrackBoxToPresentation(p, coords.Norm)
	require.NoError(t, err)
	assert.Equal(t, gaze.Point{X: 0.5, Y: -0.5}, n)

	h, err := tr.TrackBoxToPresentation(p, coords.Height)
	require.NoError(t, err)
	assert.InDelta(t, 0.25*1920.0/1080.0, h.X, 1e-12)
	assert.InDelta(t, -0.25, h.Y, 1e-12)

	px, err := tr.TrackBoxToPresentation(p, coords.Pix)
	require.NoError(t, err)
	assert.Equal(t, gaze.Point{X: 480, Y: -270}, px)

	_, err = tr.TrackBoxToPresentation(p, coords.DisplayArea)
	assert.ErrorIs(t, err, gaze.ErrConfiguration)
}

func TestUnsupportedSystem(t *testing.T) {
	tr := newTransform(t)
	_, err := tr.ToPresentation(gaze.Point{}, coords.System("furlong"))
	assert.ErrorIs(t, err, gaze.ErrConfiguration)
	_, err = tr.ToDevice(gaze.Point{}, coords.System("furlong"))
	assert.ErrorIs(t, err, gaze.ErrConfiguration)
	_, err = tr.ToDevice(gaze.Point{}, coords.TrackBox)
	assert.ErrorIs(t, err, gaze.ErrConfiguration)

	_, err = coords.ParseSystem("furlong")
	assert.ErrorIs(t, err, gaze.ErrConfiguration)
	s, err := coords.ParseSystem(" degFlatPos ")
	require.NoError(t, err)
	assert.Equal(t, coords.DegFlatPos, s)
}

func TestPhysicalSystemsNeedGeometry(t *testing.T) {
	tr, err := coords.NewTransform(1920, 1080, nil)
	require.NoError(t, err)

	_, err = tr.ToPresentation(gaze.Point{X: 0.5, Y: 0.5}, coords.Cm)
	assert.ErrorIs(t, err, gaze.ErrConfiguration)

	_, err = tr.ToPresentation(gaze.Point{X: 0.5, Y: 0.5}, coords.Pix)
	assert.NoError(t, err)
}
