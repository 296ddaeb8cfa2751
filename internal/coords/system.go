// Package coords converts gaze positions between the tracker's native
// display-area space and the presentation coordinate systems used to place
// stimuli on screen.
package coords

import (
	"fmt"
	"strings"

	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
)

// System names a coordinate system. The presentation systems use the same
// tags as the window units of the stimulus toolkit.
type System string

const (
	// Norm is normalized presentation space, [-1,1] on both axes, +y up.
	Norm System = "norm"
	// Height is height-normalized space: y in [-0.5,0.5], x scaled by aspect.
	Height System = "height"
	// Pix is pixels from the screen centre, +y up.
	Pix System = "pix"
	// Cm is physical distance on the monitor surface.
	Cm System = "cm"
	// Deg is visual angle using the small-angle approximation per axis.
	Deg System = "deg"
	// DegFlat is visual angle corrected for a flat screen.
	DegFlat System = "degFlat"
	// DegFlatPos is accepted as an alias of DegFlat for positions.
	DegFlatPos System = "degFlatPos"

	// DisplayArea is the tracker's native gaze space: unit square, origin
	// top-left, +y down.
	DisplayArea System = "display_area"
	// TrackBox is the tracker's head-box space. It is only ever a source.
	TrackBox System = "track_box"
)

// PresentationSystems lists every system a position can be presented in.
var PresentationSystems = []System{Norm, Height, Pix, Cm, Deg, DegFlat, DegFlatPos}

// IsValid reports whether s is a supported presentation system.
func (s System) IsValid() bool {
	for _, v := range PresentationSystems {
		if s == v {
			return true
		}
	}
	return false
}

// needsGeometry reports whether conversions for s go through the monitor
// geometry collaborator.
func (s System) needsGeometry() bool {
	switch s {
	case Cm, Deg, DegFlat, DegFlatPos:
		return true
	}
	return false
}

// ParseSystem validates a window-units tag.
func ParseSystem(name string) (System, error) {
	s := System(strings.TrimSpace(name))
	if !s.IsValid() {
		return "", unsupported(s)
	}
	return s, nil
}

// ValidSystemsString returns the accepted tags for error messages.
func ValidSystemsString() string {
	names := make([]string, len(PresentationSystems))
	for i, s := range PresentationSystems {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func unsupported(s System) error {
	return fmt.Errorf("%w: coordinate system %q is not supported (want one of %s)",
		gaze.ErrConfiguration, string(s), ValidSystemsString())
}
