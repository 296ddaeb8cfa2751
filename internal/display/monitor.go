package display

import (
	"fmt"
	"math"

	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
)

// tan(1°) as approximated by the stimulus toolkit's small-angle conversion.
const cmPerDegreeAtUnitDistance = 0.017455

// Monitor is the physical geometry of a display. It converts pixel offsets
// from the screen centre to centimetres and degrees of visual angle.
type Monitor struct {
	Name       string
	WidthCm    float64
	DistanceCm float64
	WidthPx    int
	HeightPx   int
}

// NewMonitor validates and returns a monitor description.
func NewMonitor(name string, widthCm, distanceCm float64, widthPx, heightPx int) (*Monitor, error) {
	if widthCm <= 0 || distanceCm <= 0 {
		return nil, fmt.Errorf("%w: monitor %q needs positive width and distance, got %.1fcm at %.1fcm",
			gaze.ErrConfiguration, name, widthCm, distanceCm)
	}
	if widthPx <= 0 || heightPx <= 0 {
		return nil, fmt.Errorf("%w: monitor %q needs a positive pixel size, got %dx%d",
			gaze.ErrConfiguration, name, widthPx, heightPx)
	}
	return &Monitor{Name: name, WidthCm: widthCm, DistanceCm: distanceCm, WidthPx: widthPx, HeightPx: heightPx}, nil
}

func (m *Monitor) PixToCm(px float64) float64 {
	return px * m.WidthCm / float64(m.WidthPx)
}

func (m *Monitor) CmToPix(cm float64) float64 {
	return cm * float64(m.WidthPx) / m.WidthCm
}

func (m *Monitor) PixToDeg(px float64) float64 {
	return m.PixToCm(px) / (m.DistanceCm * cmPerDegreeAtUnitDistance)
}

func (m *Monitor) DegToPix(deg float64) float64 {
	return m.CmToPix(deg * m.DistanceCm * cmPerDegreeAtUnitDistance)
}

// DegFlatToPix projects a pair of visual angles onto a flat screen. Each
// axis is stretched by the secant of the other axis' angle.
func (m *Monitor) DegFlatToPix(p gaze.Point) gaze.Point {
	a := math.Tan(p.X * math.Pi / 180)
	b := math.Tan(p.Y * math.Pi / 180)
	cx := m.DistanceCm * math.Hypot(1, b) * a
	cy := m.DistanceCm * math.Hypot(1, a) * b
	return gaze.Point{X: m.CmToPix(cx), Y: m.CmToPix(cy)}
}

// PixToDegFlat is the exact inverse of DegFlatToPix.
func (m *Monitor) PixToDegFlat(p gaze.Point) gaze.Point {
	u := m.PixToCm(p.X) / m.DistanceCm
	v := m.PixToCm(p.Y) / m.DistanceCm

	// With a=tan(x), b=tan(y): u² = a²(1+b²) and v² = b²(1+a²).
	// Solving for b² gives a quadratic with one non-negative root.
	k := u*u - v*v
	b2 := (-(1 + k) + math.Sqrt((1-k)*(1-k)+4*u*u)) / 2
	a2 := b2 + k

	a := math.Copysign(math.Sqrt(math.Max(a2, 0)), u)
	b := math.Copysign(math.Sqrt(math.Max(b2, 0)), v)
	return gaze.Point{X: math.Atan(a) * 180 / math.Pi, Y: math.Atan(b) * 180 / math.Pi}
}
