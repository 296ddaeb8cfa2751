package tracker

import "github.com/yeganesereshgi/Demo-Experiment/internal/gaze"

// Validity classifies one eye's contribution to a calibration sample.
type Validity int

const (
	InvalidAndNotUsed Validity = -1
	ValidButNotUsed   Validity = 0
	ValidAndUsed      Validity = 1
)

func (v Validity) String() string {
	switch v {
	case InvalidAndNotUsed:
		return "invalid_and_not_used"
	case ValidButNotUsed:
		return "valid_but_not_used"
	case ValidAndUsed:
		return "valid_and_used"
	default:
		return "unknown"
	}
}

// CalibrationStatus is the outcome of ComputeAndApply.
type CalibrationStatus string

const (
	StatusSuccess CalibrationStatus = "success"
	StatusFailure CalibrationStatus = "failure"
)

// EyeSample is one eye's mapped gaze position for a calibration sample.
type EyeSample struct {
	Position gaze.Point `json:"position"`
	Validity Validity   `json:"validity"`
}

// CalibrationSample pairs the two eyes' positions for one collected sample.
type CalibrationSample struct {
	Left  EyeSample `json:"left"`
	Right EyeSample `json:"right"`
}

// CalibrationPoint is a calibrated target and the samples collected there.
type CalibrationPoint struct {
	Position gaze.Point          `json:"position"`
	Samples  []CalibrationSample `json:"samples"`
}

// CalibrationResult is produced fresh by every ComputeAndApply.
type CalibrationResult struct {
	Status CalibrationStatus  `json:"status"`
	Points []CalibrationPoint `json:"points"`
}
