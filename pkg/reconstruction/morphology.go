package reconstruction

import (
	"ctslicesto3d/internal/models"
)

// Denoiser cleans a binary mask before iso-surfacing. ok is false when the
// operation is unavailable for this input; the caller then keeps the
// uncleaned mask.
type Denoiser interface {
	Denoise(m *models.Mask) (out *models.Mask, ok bool)
}

// Margined is implemented by denoisers that may grow the foreground. Margin
// is the number of voxels the mask can extend past its bounding box; the
// reconstructor pads the crop by that much so nothing is clipped.
type Margined interface {
	Margin() int
}

// Closing is a morphological closing (dilation followed by erosion) with a
// ball of the given radius. Voxels outside the mask count as background.
type Closing struct {
	Radius int

	// MaxVoxels makes the closing unavailable for masks larger than this.
	// Zero means no limit.
	MaxVoxels int
}

// Margin reports the dilation radius.
func (c Closing) Margin() int {
	return c.Radius
}

// Denoise applies the closing and returns a new mask.
func (c Closing) Denoise(m *models.Mask) (*models.Mask, bool) {
	if c.Radius < 1 {
		return nil, false
	}
	if c.MaxVoxels > 0 && len(m.Data) > c.MaxVoxels {
		return nil, false
	}
	ball := ballOffsets(c.Radius)
	return morph(morph(m, ball, true), ball, false), true
}

// ballOffsets lists the (depth, row, col) offsets within Euclidean distance r.
func ballOffsets(r int) [][3]int {
	var out [][3]int
	for d := -r; d <= r; d++ {
		for y := -r; y <= r; y++ {
			for x := -r; x <= r; x++ {
				if d*d+y*y+x*x <= r*r {
					out = append(out, [3]int{d, y, x})
				}
			}
		}
	}
	return out
}

// morph dilates (dilate=true) or erodes m with the structuring element.
func morph(m *models.Mask, element [][3]int, dilate bool) *models.Mask {
	out := models.NewMask(m.Depth, m.Rows, m.Cols)
	for d := 0; d < m.Depth; d++ {
		for r := 0; r < m.Rows; r++ {
			for c := 0; c < m.Cols; c++ {
				// dilation: any neighbour set; erosion: all neighbours set
				hit := !dilate
				for _, o := range element {
					nd, nr, nc := d+o[0], r+o[1], c+o[2]
					v := nd >= 0 && nd < m.Depth && nr >= 0 && nr < m.Rows && nc >= 0 && nc < m.Cols &&
						m.At(nd, nr, nc)
					if dilate && v {
						hit = true
						break
					}
					if !dilate && !v {
						hit = false
						break
					}
				}
				out.Set(d, r, c, hit)
			}
		}
	}
	return out
}
