package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/httputil"
)

// eyeSeries converts the valid gaze points of one eye to presentation
// units.
func (m *Monitor) eyeSeries(samples []gaze.Sample, left bool) []opts.ScatterData {
	data := make([]opts.ScatterData, 0, len(samples))
	for _, s := range samples {
		p, ok := s.RightGaze, s.RightGazeValid
		if left {
			p, ok = s.LeftGaze, s.LeftGazeValid
		}
		if !ok {
			continue
		}
		q, err := m.cfg.Transform.ToPresentation(p, m.cfg.Units)
		if err != nil {
			continue
		}
		data = append(data, opts.ScatterData{Value: []interface{}{q.X, q.Y}})
	}
	return data
}

func (m *Monitor) handleChart(w http.ResponseWriter, r *http.Request) {
	samples := m.src.Samples()
	if len(samples) == 0 {
		httputil.NotFound(w, "no gaze samples buffered")
		return
	}
	if len(samples) > m.cfg.MaxPoints {
		samples = samples[len(samples)-m.cfg.MaxPoints:]
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Gaze samples", Theme: "dark", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Gaze samples", Subtitle: fmt.Sprintf("units=%s samples=%d", m.cfg.Units, len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "y", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("left", m.eyeSeries(samples, true),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "green"}))
	scatter.AddSeries("right", m.eyeSeries(samples, false),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "red"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Errorf("failed to render chart: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
