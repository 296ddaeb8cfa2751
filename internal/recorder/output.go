package recorder

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
)

// Header is the column layout of the sample file.
var Header = []string{
	"TimeStamp",
	"GazePointXLeft",
	"GazePointYLeft",
	"ValidityLeft",
	"GazePointXRight",
	"GazePointYRight",
	"ValidityRight",
	"GazePointX",
	"GazePointY",
	"PupilSizeLeft",
	"PupilValidityLeft",
	"PupilSizeRight",
	"PupilValidityRight",
	"PupilSize",
}

// Record is one derived row of the sample file. Positions are in the
// recorder's presentation units.
type Record struct {
	Elapsed      float64
	Left         gaze.Point
	LeftValid    bool
	Right        gaze.Point
	RightValid   bool
	Average      gaze.Point
	LeftPupil    float64
	LeftPupilOK  bool
	RightPupil   float64
	RightPupilOK bool
	AveragePupil float64
}

// TimedEvent is an event whose timestamp has been corrected to seconds
// since t0.
type TimedEvent struct {
	Elapsed float64
	Label   string
}

// deriveRecord converts a raw sample. Fields of an invalid eye are NaN.
func (r *Recorder) deriveRecord(s gaze.Sample, t0 int64) (Record, error) {
	c := r.cfg
	rec := Record{
		Elapsed:      gaze.Round(float64(s.DeviceTimestamp-t0)/c.ClockRate, c.TimeDecimals),
		LeftValid:    s.LeftGazeValid,
		RightValid:   s.RightGazeValid,
		LeftPupilOK:  s.LeftPupilValid,
		RightPupilOK: s.RightPupilValid,
		Left:         gaze.NaNPoint,
		Right:        gaze.NaNPoint,
		LeftPupil:    math.NaN(),
		RightPupil:   math.NaN(),
	}

	var err error
	if s.LeftGazeValid {
		if rec.Left, err = r.present(s.LeftGaze); err != nil {
			return Record{}, err
		}
	}
	if s.RightGazeValid {
		if rec.Right, err = r.present(s.RightGaze); err != nil {
			return Record{}, err
		}
	}
	avg := gaze.AveragePoint(rec.Left, rec.LeftValid, rec.Right, rec.RightValid)
	rec.Average = gaze.Point{X: gaze.Round(avg.X, c.ValueDecimals), Y: gaze.Round(avg.Y, c.ValueDecimals)}

	if s.LeftPupilValid {
		rec.LeftPupil = gaze.Round(s.LeftPupil, c.ValueDecimals)
	}
	if s.RightPupilValid {
		rec.RightPupil = gaze.Round(s.RightPupil, c.ValueDecimals)
	}
	rec.AveragePupil = gaze.Round(gaze.AverageValue(s.LeftPupil, s.LeftPupilValid, s.RightPupil, s.RightPupilValid), c.ValueDecimals)
	return rec, nil
}

// present maps a display-area point into presentation units rounded to the
// configured decimals.
func (r *Recorder) present(p gaze.Point) (gaze.Point, error) {
	q, err := r.cfg.Transform.ToPresentation(p, r.cfg.Units)
	if err != nil {
		return gaze.Point{}, err
	}
	return gaze.Point{X: gaze.Round(q.X, r.cfg.ValueDecimals), Y: gaze.Round(q.Y, r.cfg.ValueDecimals)}, nil
}

// tsvWriter writes tab-separated sample files.
type tsvWriter struct {
	w        *csv.Writer
	nanToken string
}

func newTSVWriter(w io.Writer, nanToken string) *tsvWriter {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return &tsvWriter{w: cw, nanToken: nanToken}
}

func (t *tsvWriter) writeHeader() error {
	if err := t.w.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := t.flush(); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

func (t *tsvWriter) writeRecord(rec Record) error {
	row := []string{
		t.float(rec.Elapsed),
		t.float(rec.Left.X),
		t.float(rec.Left.Y),
		flag(rec.LeftValid),
		t.float(rec.Right.X),
		t.float(rec.Right.Y),
		flag(rec.RightValid),
		t.float(rec.Average.X),
		t.float(rec.Average.Y),
		t.float(rec.LeftPupil),
		flag(rec.LeftPupilOK),
		t.float(rec.RightPupil),
		flag(rec.RightPupilOK),
		t.float(rec.AveragePupil),
	}
	if err := t.w.Write(row); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (t *tsvWriter) writeEvent(ev TimedEvent) error {
	if err := t.w.Write([]string{t.float(ev.Elapsed), ev.Label}); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

func (t *tsvWriter) flush() error {
	t.w.Flush()
	return t.w.Error()
}

// float renders v the way the analysis scripts expect: shortest form, at
// least one fractional digit, NaN as the configured token.
func (t *tsvWriter) float(v float64) string {
	if math.IsNaN(v) {
		return t.nanToken
	}
	if v == 0 {
		v = 0 // drop the sign of -0
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") && !math.IsInf(v, 0) {
		s += ".0"
	}
	return s
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
