package display

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const circleSegments = 48

// SaveFrame renders recorded draw ops to an image file (the format follows
// the extension, e.g. .png or .svg). The axes span the window in pixels so
// the picture matches what an operator would have seen.
func SaveFrame(ops []DrawOp, width, height int, title, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	p.X.Min, p.X.Max = -float64(width)/2, float64(width)/2
	p.Y.Min, p.Y.Max = -float64(height)/2, float64(height)/2
	p.BackgroundColor = color.RGBA{R: 32, G: 32, B: 32, A: 255}

	for _, op := range ops {
		var pts plotter.XYs
		stroke := op.Line
		switch op.Kind {
		case OpLine:
			pts = plotter.XYs{{X: op.Center.X, Y: op.Center.Y}, {X: op.To.X, Y: op.To.Y}}
		case OpCircle:
			pts = circlePoints(op.Center.X, op.Center.Y, op.Radius)
			if stroke.A == 0 {
				stroke = op.Fill
			}
		case OpRect, OpImage:
			pts = rectPoints(op.Center.X, op.Center.Y, op.Width, op.Height)
			if stroke.A == 0 {
				stroke = op.Fill
			}
			if op.Kind == OpImage {
				stroke = White
			}
		case OpText:
			labels, err := plotter.NewLabels(plotter.XYLabels{
				XYs:    plotter.XYs{{X: op.Center.X, Y: op.Center.Y}},
				Labels: []string{op.Text},
			})
			if err != nil {
				return fmt.Errorf("failed to build label: %w", err)
			}
			for i := range labels.TextStyle {
				labels.TextStyle[i].Color = op.Fill
			}
			p.Add(labels)
			continue
		}
		if stroke.A == 0 || len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build %s: %w", op.Kind, err)
		}
		line.Color = stroke
		line.Width = vg.Points(1)
		p.Add(line)
	}

	w := vg.Length(width) * vg.Inch / 96
	h := vg.Length(height) * vg.Inch / 96
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("failed to save frame to %s: %w", path, err)
	}
	return nil
}

func circlePoints(cx, cy, r float64) plotter.XYs {
	pts := make(plotter.XYs, circleSegments+1)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / circleSegments
		pts[i] = plotter.XY{X: cx + r*math.Cos(a), Y: cy + r*math.Sin(a)}
	}
	return pts
}

func rectPoints(cx, cy, w, h float64) plotter.XYs {
	return plotter.XYs{
		{X: cx - w/2, Y: cy - h/2},
		{X: cx + w/2, Y: cy - h/2},
		{X: cx + w/2, Y: cy + h/2},
		{X: cx - w/2, Y: cy + h/2},
		{X: cx - w/2, Y: cy - h/2},
	}
}
