package coords

import (
	"fmt"
	"math"

	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
)

// Geometry converts between pixels and physical units for one monitor.
// Pixel values are measured from the screen centre.
type Geometry interface {
	PixToCm(px float64) float64
	CmToPix(cm float64) float64
	PixToDeg(px float64) float64
	DegToPix(deg float64) float64
	// PixToDegFlat and DegFlatToPix take both axes at once because the
	// flat-screen correction couples them.
	PixToDegFlat(p gaze.Point) gaze.Point
	DegFlatToPix(p gaze.Point) gaze.Point
}

// Transform converts between display-area space and the presentation systems
// of one presentation surface.
type Transform struct {
	width    float64
	height   float64
	geometry Geometry
}

// NewTransform returns a Transform for a surface of the given pixel size.
// geometry may be nil when only norm, height and pix are used.
func NewTransform(widthPx, heightPx int, geometry Geometry) (*Transform, error) {
	if widthPx <= 0 || heightPx <= 0 {
		return nil, fmt.Errorf("%w: surface size must be positive, got %dx%d",
			gaze.ErrConfiguration, widthPx, heightPx)
	}
	return &Transform{
		width:    float64(widthPx),
		height:   float64(heightPx),
		geometry: geometry,
	}, nil
}

// Size returns the surface size in pixels.
func (t *Transform) Size() (int, int) {
	return int(t.width), int(t.height)
}

func (t *Transform) aspect() float64 {
	return t.width / t.height
}

func (t *Transform) checkGeometry(s System) error {
	if s.needsGeometry() && t.geometry == nil {
		return fmt.Errorf("%w: coordinate system %q needs monitor geometry",
			gaze.ErrConfiguration, string(s))
	}
	return nil
}

// ToPresentation converts a display-area point into system s.
func (t *Transform) ToPresentation(p gaze.Point, s System) (gaze.Point, error) {
	if err := t.checkGeometry(s); err != nil {
		return gaze.Point{}, err
	}
	switch s {
	case DisplayArea:
		return p, nil
	case Norm:
		return gaze.Point{X: 2*p.X - 1, Y: -2*p.Y + 1}, nil
	case Height:
		return gaze.Point{X: (p.X - 0.5) * t.aspect(), Y: -p.Y + 0.5}, nil
	case Pix, Cm, Deg, DegFlat, DegFlatPos:
		return t.fromPix(t.deviceToPix(p), s), nil
	default:
		return gaze.Point{}, unsupported(s)
	}
}

// ToDevice converts a point in system s into display-area space.
func (t *Transform) ToDevice(p gaze.Point, s System) (gaze.Point, error) {
	if err := t.checkGeometry(s); err != nil {
		return gaze.Point{}, err
	}
	switch s {
	case DisplayArea:
		return p, nil
	case Norm:
		return gaze.Point{X: p.X/2 + 0.5, Y: p.Y/-2 + 0.5}, nil
	case Height:
		return gaze.Point{X: p.X/t.aspect() + 0.5, Y: -p.Y + 0.5}, nil
	case Pix:
		return t.pixToDevice(p), nil
	case Cm, Deg, DegFlat, DegFlatPos:
		px := t.toPix(p, s)
		px = gaze.Point{X: roundHalfEven(px.X), Y: roundHalfEven(px.Y)}
		return t.pixToDevice(px), nil
	default:
		return gaze.Point{}, unsupported(s)
	}
}

// TrackBoxToPresentation converts an eye position in track-box space (x and
// y only) into system s. Track-box space mirrors both axes relative to
// display-area space. There is no inverse.
func (t *Transform) TrackBoxToPresentation(p gaze.Point, s System) (gaze.Point, error) {
	if err := t.checkGeometry(s); err != nil {
		return gaze.Point{}, err
	}
	switch s {
	case Norm:
		return gaze.Point{X: -2*p.X + 1, Y: -2*p.Y + 1}, nil
	case Height:
		return gaze.Point{X: (-p.X + 0.5) * t.aspect(), Y: -p.Y + 0.5}, nil
	case Pix, Cm, Deg, DegFlat, DegFlatPos:
		px := gaze.Point{
			X: roundHalfEven((-p.X + 0.5) * t.width),
			Y: roundHalfEven((-p.Y + 0.5) * t.height),
		}
		return t.fromPix(px, s), nil
	default:
		return gaze.Point{}, unsupported(s)
	}
}

// deviceToPix maps display-area space to whole pixels from the centre.
func (t *Transform) deviceToPix(p gaze.Point) gaze.Point {
	return gaze.Point{
		X: roundHalfEven(t.width * (p.X - 0.5)),
		Y: roundHalfEven(-t.height * (p.Y - 0.5)),
	}
}

func (t *Transform) pixToDevice(p gaze.Point) gaze.Point {
	return gaze.Point{X: p.X/t.width + 0.5, Y: -p.Y/t.height + 0.5}
}

// fromPix converts a pixel position into one of the pixel-derived systems.
func (t *Transform) fromPix(px gaze.Point, s System) gaze.Point {
	switch s {
	case Cm:
		return gaze.Point{X: t.geometry.PixToCm(px.X), Y: t.geometry.PixToCm(px.Y)}
	case Deg:
		return gaze.Point{X: t.geometry.PixToDeg(px.X), Y: t.geometry.PixToDeg(px.Y)}
	case DegFlat, DegFlatPos:
		return t.geometry.PixToDegFlat(px)
	default:
		return px
	}
}

func (t *Transform) toPix(p gaze.Point, s System) gaze.Point {
	switch s {
	case Cm:
		return gaze.Point{X: t.geometry.CmToPix(p.X), Y: t.geometry.CmToPix(p.Y)}
	case Deg:
		return gaze.Point{X: t.geometry.DegToPix(p.X), Y: t.geometry.DegToPix(p.Y)}
	case DegFlat, DegFlatPos:
		return t.geometry.DegFlatToPix(p)
	default:
		return p
	}
}

// roundHalfEven matches the rounding used by the stimulus toolkit so pixel
// positions agree with what it draws.
func roundHalfEven(v float64) float64 {
	return math.RoundToEven(v)
}
