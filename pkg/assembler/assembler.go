// Package assembler stacks decoded 2D slices into a single 3D intensity
// volume with one representative physical spacing.
//
// Assembly runs in four steps:
//  1. Order the slices along the through-plane axis (see Order)
//  2. Rescale stored samples into physical intensity
//  3. Embed every slice, centered and unresampled, into the common footprint
//  4. Derive the median voxel spacing of the slices that report geometry
package assembler

import (
	"context"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperr "ctslicesto3d/internal/errors"
	"ctslicesto3d/internal/logger"
	"ctslicesto3d/internal/models"
	"ctslicesto3d/pkg/slicereader"
)

const stageAssemble = "assemble"

// Assembler builds volumes from slice sources.
type Assembler struct {
	// Workers bounds the number of goroutines used for decoding and
	// for writing planes into the output volume.
	Workers int

	log *zap.Logger
}

// New creates an Assembler. A nil logger disables logging.
func New(workers int, log *zap.Logger) *Assembler {
	if workers < 1 {
		workers = 1
	}
	return &Assembler{Workers: workers, log: logger.OrNop(log)}
}

// AssembleFrom reads every item of src and assembles the readable ones.
// Items that fail to decode are skipped and listed in the returned
// diagnostics; the diagnostics are returned even when assembly fails.
func (a *Assembler) AssembleFrom(ctx context.Context, src slicereader.Source) (*models.Volume, *slicereader.Diagnostics, error) {
	slices, diag, err := slicereader.ReadAll(ctx, src, a.Workers, a.log)
	if err != nil {
		return nil, diag, err
	}
	vol, err := a.Assemble(ctx, slices)
	return vol, diag, err
}

// Assemble stacks already decoded slices into a volume.
func (a *Assembler) Assemble(ctx context.Context, slices []*models.Slice) (*models.Volume, error) {
	if len(slices) == 0 {
		return nil, apperr.New(apperr.CodeEmptyInput, stageAssemble, "no slices to assemble")
	}

	ordered := Order(slices)

	rows, cols := 0, 0
	for _, s := range ordered {
		if s.Rows > rows {
			rows = s.Rows
		}
		if s.Cols > cols {
			cols = s.Cols
		}
	}

	spacing := DeriveSpacing(ordered)
	vol := models.NewVolume(len(ordered), rows, cols, spacing)
	vol.Footprints = make([]models.SliceFootprint, len(ordered))
	vol.Names = make([]string, len(ordered))

	// Each plane is a disjoint region of vol.Data, so the writers need no
	// synchronization beyond the final Wait.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Workers)
	for d, s := range ordered {
		d, s := d, s
		vol.Names[d] = s.Name
		vol.Footprints[d] = models.SliceFootprint{
			Top:  (rows - s.Rows) / 2,
			Left: (cols - s.Cols) / 2,
			Rows: s.Rows,
			Cols: s.Cols,
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			embed(vol, d, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.log.Info("assembled volume",
		zap.Int("depth", vol.Depth),
		zap.Int("rows", vol.Rows),
		zap.Int("cols", vol.Cols),
		zap.Float64("spacingThrough", spacing.Through),
		zap.Float64("spacingRow", spacing.Row),
		zap.Float64("spacingCol", spacing.Col))
	return vol, nil
}

// embed writes the rescaled first channel of s into plane d at its footprint.
func embed(vol *models.Volume, d int, s *models.Slice) {
	fp := vol.Footprints[d]
	plane := vol.Plane(d)
	slope, intercept := rescaleOf(s)
	for r := 0; r < s.Rows; r++ {
		row := plane[(fp.Top+r)*vol.Cols+fp.Left:]
		for c := 0; c < s.Cols; c++ {
			row[c] = s.At(r, c)*slope + intercept
		}
	}
}

func rescaleOf(s *models.Slice) (slope, intercept float64) {
	if s.Rescale == nil {
		return 1, 0
	}
	return s.Rescale.Slope, s.Rescale.Intercept
}

// DeriveSpacing returns the element-wise median of the (thickness, row
// spacing, column spacing) triples of slices that report both in-plane
// spacing and thickness, or models.DefaultSpacing when none does.
// Triples holding a zero, negative or NaN component are ignored.
func DeriveSpacing(slices []*models.Slice) models.Spacing {
	var through, row, col stats.Float64Data
	for _, s := range slices {
		if s.PixelSpacing == nil || s.Thickness == nil {
			continue
		}
		if !positive(*s.Thickness) || !positive(s.PixelSpacing[0]) || !positive(s.PixelSpacing[1]) {
			continue
		}
		through = append(through, *s.Thickness)
		row = append(row, s.PixelSpacing[0])
		col = append(col, s.PixelSpacing[1])
	}
	if len(through) == 0 {
		return models.DefaultSpacing
	}

	median := func(data stats.Float64Data) float64 {
		m, err := stats.Median(data)
		if err != nil {
			// only returned for empty input
			return 1
		}
		return m
	}
	return models.Spacing{
		Through: median(through),
		Row:     median(row),
		Col:     median(col),
	}
}

// positive is false for NaN.
func positive(v float64) bool {
	return v > 0
}
