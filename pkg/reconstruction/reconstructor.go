// Package reconstruction converts a binary region of interest into a closed
// triangle mesh positioned in the physical frame of the original volume.
package reconstruction

import (
	"go.uber.org/zap"

	apperr "ctslicesto3d/internal/errors"
	"ctslicesto3d/internal/logger"
	"ctslicesto3d/internal/models"
	"ctslicesto3d/pkg/stl"
)

const stageReconstruct = "reconstruct"

// isoLevel is the crossing level of a 0/1 mask.
const isoLevel = 0.5

// Params holds the reconstruction parameters.
type Params struct {
	// Level is the binarization threshold used by ReconstructVolume:
	// a voxel is foreground iff its value is strictly greater than Level.
	Level float64

	// Closing enables morphological closing of the cropped mask before
	// iso-surfacing, with a ball of ClosingRadius voxels (default 1).
	Closing       bool
	ClosingRadius int

	// Denoiser replaces the default closing when set. It is only used
	// when Closing is true. Denoisers that grow the mask implement Margined.
	Denoiser Denoiser
}

// DefaultParams returns the parameters used by the command line tool.
func DefaultParams() *Params {
	return &Params{
		Level:         0.5,
		Closing:       true,
		ClosingRadius: 1,
	}
}

// Reconstructor handles the mask to mesh conversion.
//
// The reconstruction process consists of several steps:
//  1. Trimming empty depth planes from both ends
//  2. Cropping rows and columns to the foreground bounding box
//  3. Optionally closing the cropped mask (best-effort)
//  4. Extracting the iso-surface with the voxel spacing as scale
//  5. Re-basing vertices into the frame of the untrimmed volume
type Reconstructor struct {
	// params stores the reconstruction configuration
	params *Params

	log *zap.Logger
}

// NewReconstructor creates a new reconstructor instance with the provided
// parameters. A nil params uses DefaultParams; a nil logger disables logging.
func NewReconstructor(params *Params, log *zap.Logger) *Reconstructor {
	if params == nil {
		params = DefaultParams()
	}
	return &Reconstructor{params: params, log: logger.OrNop(log)}
}

// Box is an inclusive voxel range along (depth, row, col).
type Box struct {
	Min [3]int
	Max [3]int
}

// Size returns the number of voxels along each axis.
func (b Box) Size() [3]int {
	return [3]int{b.Max[0] - b.Min[0] + 1, b.Max[1] - b.Min[1] + 1, b.Max[2] - b.Min[2] + 1}
}

// TrimDepth returns the first and last depth planes holding foreground.
// ok is false when the mask is empty.
func TrimDepth(m *models.Mask) (first, last int, ok bool) {
	first, last = -1, -1
	plane := m.Rows * m.Cols
	for d := 0; d < m.Depth; d++ {
		for _, v := range m.Data[d*plane : (d+1)*plane] {
			if v {
				if first < 0 {
					first = d
				}
				last = d
				break
			}
		}
	}
	return first, last, first >= 0
}

// ForegroundBox returns the tight bounding box of the foreground: the
// trimmed depth range combined with the row and column extent of the
// foreground inside it. ok is false when the mask is empty.
func ForegroundBox(m *models.Mask) (Box, bool) {
	first, last, ok := TrimDepth(m)
	if !ok {
		return Box{}, false
	}

	box := Box{
		Min: [3]int{first, m.Rows, m.Cols},
		Max: [3]int{last, -1, -1},
	}
	for d := first; d <= last; d++ {
		for r := 0; r < m.Rows; r++ {
			for c := 0; c < m.Cols; c++ {
				if !m.At(d, r, c) {
					continue
				}
				if r < box.Min[1] {
					box.Min[1] = r
				}
				if r > box.Max[1] {
					box.Max[1] = r
				}
				if c < box.Min[2] {
					box.Min[2] = c
				}
				if c > box.Max[2] {
					box.Max[2] = c
				}
			}
		}
	}
	return box, true
}

// CropPad copies box out of m into a new mask surrounded by pad empty
// voxels on every side.
func CropPad(m *models.Mask, box Box, pad int) *models.Mask {
	size := box.Size()
	out := models.NewMask(size[0]+2*pad, size[1]+2*pad, size[2]+2*pad)
	for d := 0; d < size[0]; d++ {
		for r := 0; r < size[1]; r++ {
			src := m.Data[m.Index(box.Min[0]+d, box.Min[1]+r, box.Min[2]):]
			dst := out.Data[out.Index(d+pad, r+pad, pad):]
			copy(dst[:size[2]], src[:size[2]])
		}
	}
	return out
}

// ReconstructVolume binarizes vol at the configured level and reconstructs
// the result using the volume's spacing.
func (r *Reconstructor) ReconstructVolume(vol *models.Volume) (*models.Mesh, error) {
	if vol == nil || len(vol.Data) != vol.Depth*vol.Rows*vol.Cols {
		return nil, apperr.New(apperr.CodeInvalidInput, stageReconstruct, "volume data does not match its shape")
	}
	return r.Reconstruct(models.Threshold(vol, r.params.Level), vol.Spacing)
}

// Reconstruct extracts the surface of the foreground of mask.
//
// Parameters:
//   - mask: binary volume addressed as (depth, row, col); it is not modified
//   - spacing: physical voxel size along (depth, row, col)
//
// Returns:
//   - a mesh whose vertices are in the physical frame of the full mask,
//     X along depth, Y along rows and Z along columns
//   - EmptyVolume when the mask has no foreground voxel, DegenerateSurface
//     when no face could be extracted
func (r *Reconstructor) Reconstruct(mask *models.Mask, spacing models.Spacing) (*models.Mesh, error) {
	if mask == nil || len(mask.Data) != mask.Depth*mask.Rows*mask.Cols {
		return nil, apperr.New(apperr.CodeInvalidInput, stageReconstruct, "mask data does not match its shape")
	}
	if spacing.Through <= 0 || spacing.Row <= 0 || spacing.Col <= 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, stageReconstruct,
			"spacing must be positive, got %+v", spacing)
	}

	box, ok := ForegroundBox(mask)
	if !ok {
		return nil, apperr.New(apperr.CodeEmptyVolume, stageReconstruct,
			"mask of shape %v has no foreground voxel", mask.Shape())
	}
	r.log.Debug("cropped foreground",
		zap.Ints("min", box.Min[:]),
		zap.Ints("max", box.Max[:]))

	// One empty layer closes the surface at the crop box; a denoiser that
	// grows the mask gets its margin on top.
	denoiser := r.denoiser()
	pad := 1
	if m, ok := denoiser.(Margined); ok && m.Margin() > 0 {
		pad += m.Margin()
	}

	frame := NewFrame(spacing).Crop(box.Min).Pad(pad)
	cropped := CropPad(mask, box, pad)

	if denoiser != nil {
		if cleaned, ok := denoiser.Denoise(cropped); ok {
			cropped = cleaned
		} else {
			r.log.Warn("denoising unavailable, using uncleaned mask")
		}
	}

	field := make([]float64, len(cropped.Data))
	for i, v := range cropped.Data {
		if v {
			field[i] = 1
		}
	}
	mc := stl.NewMarchingCubes(field, cropped.Depth, cropped.Rows, cropped.Cols, isoLevel)
	mc.SetScale(spacing.Through, spacing.Row, spacing.Col)
	mesh := mc.Extract()

	// Padding keeps any foreground off the border, so this only happens
	// when denoising removed every voxel.
	if len(mesh.Faces) == 0 {
		return nil, apperr.New(apperr.CodeDegenerateSurface, stageReconstruct,
			"iso-surface of %d foreground voxels has no faces", mask.Count())
	}

	for i, v := range mesh.Vertices {
		mesh.Vertices[i] = frame.Rebase(v)
	}

	r.log.Info("reconstructed surface",
		zap.Int("vertices", len(mesh.Vertices)),
		zap.Int("faces", len(mesh.Faces)))
	return mesh, nil
}

func (r *Reconstructor) denoiser() Denoiser {
	if !r.params.Closing {
		return nil
	}
	if r.params.Denoiser != nil {
		return r.params.Denoiser
	}
	radius := r.params.ClosingRadius
	if radius < 1 {
		radius = 1
	}
	return Closing{Radius: radius}
}
