package display

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"

	"github.com/yeganesereshgi/Demo-Experiment/internal/fsutil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
)

// Image is a loaded stimulus picture. Only its name and native pixel size
// are kept; a headless window never rasterises it.
type Image struct {
	Name   string
	Width  float64
	Height float64
}

// LoadImage reads a PNG or JPEG stimulus from fsys. Failure to read or
// decode is reported as a missing resource.
func LoadImage(fsys fsutil.FileSystem, path string) (*Image, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to load stimulus image %q: %v", gaze.ErrResourceAbsent, path, err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unable to decode stimulus image %q: %v", gaze.ErrResourceAbsent, path, err)
	}
	return &Image{
		Name:   filepath.Base(path),
		Width:  float64(cfg.Width),
		Height: float64(cfg.Height),
	}, nil
}

// LoadImages loads every path, stopping at the first failure.
func LoadImages(fsys fsutil.FileSystem, paths []string) ([]*Image, error) {
	out := make([]*Image, 0, len(paths))
	for _, p := range paths {
		img, err := LoadImage(fsys, p)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}
