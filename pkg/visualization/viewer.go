// Package visualization renders 2D views of assembled volumes and masks.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/floats"

	"ctslicesto3d/internal/models"
)

// Viewer extracts windowed 2D slices from a volume.
//
// Axes follow the usual image convention: "x" is the column axis, "y" the
// row axis and "z" the depth (through-plane) axis.
type Viewer struct {
	vol *models.Volume

	// intensities in [low, high] map linearly onto the gray range
	low, high float64
}

// NewViewer creates a viewer whose window spans the full intensity range
// of vol.
func NewViewer(vol *models.Volume) *Viewer {
	v := &Viewer{vol: vol}
	if len(vol.Data) > 0 {
		v.low, v.high = floats.Min(vol.Data), floats.Max(vol.Data)
	}
	return v
}

// SetWindow restricts the displayed intensities to center +/- width/2,
// as used for CT display (e.g. center -600, width 1500 for lungs).
func (v *Viewer) SetWindow(center, width float64) {
	v.low = center - width/2
	v.high = center + width/2
}

// gray maps an intensity to a 16-bit gray level.
func (v *Viewer) gray(x float64) uint16 {
	if v.high <= v.low {
		return 0
	}
	t := (x - v.low) / (v.high - v.low)
	return uint16(math.Max(0, math.Min(65535, t*65535)))
}

// axisExtent returns the number of positions along axis.
func (v *Viewer) axisExtent(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return v.vol.Cols, nil
	case "y", "Y":
		return v.vol.Rows, nil
	case "z", "Z":
		return v.vol.Depth, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	extent, err := v.axisExtent(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= extent {
		return nil, fmt.Errorf("position %d outside [0,%d) along %s", position, extent, axis)
	}

	vol := v.vol
	var img *image.Gray16
	switch axis {
	case "x", "X":
		// depth runs left to right, rows top to bottom
		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Rows))
		for r := 0; r < vol.Rows; r++ {
			for d := 0; d < vol.Depth; d++ {
				img.SetGray16(d, r, color.Gray16{Y: v.gray(vol.At(d, r, position))})
			}
		}
	case "y", "Y":
		img = image.NewGray16(image.Rect(0, 0, vol.Cols, vol.Depth))
		for d := 0; d < vol.Depth; d++ {
			for c := 0; c < vol.Cols; c++ {
				img.SetGray16(c, d, color.Gray16{Y: v.gray(vol.At(d, position, c))})
			}
		}
	default:
		img = image.NewGray16(image.Rect(0, 0, vol.Cols, vol.Rows))
		for r := 0; r < vol.Rows; r++ {
			for c := 0; c < vol.Cols; c++ {
				img.SetGray16(c, r, color.Gray16{Y: v.gray(vol.At(position, r, c))})
			}
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice; the format follows the file extension.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	if err := imaging.Save(img, filename); err != nil {
		return fmt.Errorf("saving %s: %w", filename, err)
	}
	return nil
}

// SaveSliceSequence extracts and saves every slice along the specified axis
// as PNG files named slice_<axis>_<pos>.png.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	extent, err := v.axisExtent(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < extent; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}

// contourColor marks the mask outline in overlays.
var contourColor = color.NRGBA{R: 255, A: 255}

// Overlay draws depth plane d of the volume in gray with the outline of
// the mask in red. A mask voxel is on the outline when one of its four
// in-plane neighbours is background or outside the plane.
func (v *Viewer) Overlay(mask *models.Mask, d int) (*image.NRGBA, error) {
	vol := v.vol
	if mask.Shape() != vol.Shape() {
		return nil, fmt.Errorf("mask shape %v does not match volume shape %v", mask.Shape(), vol.Shape())
	}
	if d < 0 || d >= vol.Depth {
		return nil, fmt.Errorf("depth %d outside [0,%d)", d, vol.Depth)
	}

	fg := func(r, c int) bool {
		return r >= 0 && r < mask.Rows && c >= 0 && c < mask.Cols && mask.At(d, r, c)
	}

	img := image.NewNRGBA(image.Rect(0, 0, vol.Cols, vol.Rows))
	for r := 0; r < vol.Rows; r++ {
		for c := 0; c < vol.Cols; c++ {
			if fg(r, c) && (!fg(r-1, c) || !fg(r+1, c) || !fg(r, c-1) || !fg(r, c+1)) {
				img.SetNRGBA(c, r, contourColor)
				continue
			}
			g := uint8(v.gray(vol.At(d, r, c)) >> 8)
			img.SetNRGBA(c, r, color.NRGBA{R: g, G: g, B: g, A: 255})
		}
	}
	return img, nil
}

// SaveOverlay renders Overlay(mask, d) to path.
func (v *Viewer) SaveOverlay(path string, mask *models.Mask, d int) error {
	img, err := v.Overlay(mask, d)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return v.SaveSlice(img, path)
}
