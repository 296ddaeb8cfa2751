// Package display describes the presentation surface the calibration and
// feedback loops draw on. Drawing happens in pixel space with the origin at
// the centre of the surface and +y pointing up.
package display

import (
	"image/color"
	"time"

	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
)

// Window is a frame-paced presentation surface with key polling.
type Window interface {
	// Size returns the surface size in pixels.
	Size() (width, height int)
	// Units returns the window's default presentation system.
	Units() coords.System
	// Flip presents everything drawn since the previous flip and blocks
	// until the next refresh. It returns the presentation time.
	Flip() time.Time
	// Keys returns keys pressed since the previous call.
	Keys() []string
	// ClearKeys drops any pending key presses.
	ClearKeys()

	DrawCircle(center gaze.Point, radius float64, fill, line color.Color)
	DrawRect(center gaze.Point, width, height float64, fill, line color.Color)
	DrawLine(from, to gaze.Point, c color.Color)
	DrawText(pos gaze.Point, text string, c color.Color)
	DrawImage(img *Image, center gaze.Point, scale float64)
}

// Named colors used by the calibration and position guide screens.
var (
	White    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Black    = color.RGBA{A: 255}
	Grey     = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	Green    = color.RGBA{G: 255, A: 255}
	Red      = color.RGBA{R: 255, A: 255}
	DeepBlue = color.RGBA{B: 128, A: 255}
	// None draws nothing; used for outline-free shapes.
	None = color.RGBA{}
)

// OpKind identifies a recorded draw call.
type OpKind string

const (
	OpCircle OpKind = "circle"
	OpRect   OpKind = "rect"
	OpLine   OpKind = "line"
	OpText   OpKind = "text"
	OpImage  OpKind = "image"
)

// DrawOp is one draw call as recorded by HeadlessWindow.
type DrawOp struct {
	Kind   OpKind
	Center gaze.Point
	To     gaze.Point // line end; Center is the start
	Radius float64
	Width  float64
	Height float64
	Text   string
	Image  string
	Fill   color.RGBA
	Line   color.RGBA
}

func rgba(c color.Color) color.RGBA {
	if c == nil {
		return None
	}
	return color.RGBAModel.Convert(c).(color.RGBA)
}
