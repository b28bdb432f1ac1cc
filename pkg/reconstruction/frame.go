package reconstruction

import (
	"gonum.org/v1/gonum/spatial/r3"

	"ctslicesto3d/internal/models"
)

// Frame maps a sub-grid cut out of a volume back to the physical frame of
// the full volume. Origin is the index, in the full volume, of the
// sub-grid's (0,0,0) voxel along (depth, row, col); Scale is the voxel size
// along the same axes.
//
// Trimming, cropping and padding only move Origin, so every vertex produced
// on the sub-grid is re-based by a single translation.
type Frame struct {
	Scale  [3]float64
	Origin [3]int
}

// NewFrame returns the identity frame of a volume with the given spacing.
func NewFrame(s models.Spacing) Frame {
	return Frame{Scale: s.Axes()}
}

// Crop returns the frame of the sub-grid starting at lo in f's grid.
func (f Frame) Crop(lo [3]int) Frame {
	for k := range lo {
		f.Origin[k] += lo[k]
	}
	return f
}

// Pad returns the frame of f's grid grown by n voxels on every side.
func (f Frame) Pad(n int) Frame {
	for k := range f.Origin {
		f.Origin[k] -= n
	}
	return f
}

// Offset is the physical position of the sub-grid origin in the full volume.
func (f Frame) Offset() r3.Vec {
	return r3.Vec{
		X: float64(f.Origin[0]) * f.Scale[0],
		Y: float64(f.Origin[1]) * f.Scale[1],
		Z: float64(f.Origin[2]) * f.Scale[2],
	}
}

// Rebase converts a physical position local to the sub-grid into the frame
// of the full volume.
func (f Frame) Rebase(local r3.Vec) r3.Vec {
	return r3.Add(local, f.Offset())
}

// VolumeIndex converts a sub-grid voxel index into a full volume index.
func (f Frame) VolumeIndex(local [3]int) [3]int {
	return [3]int{local[0] + f.Origin[0], local[1] + f.Origin[1], local[2] + f.Origin[2]}
}
