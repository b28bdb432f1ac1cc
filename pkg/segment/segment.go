// Package segment turns an intensity volume into a binary region of interest.
package segment

import (
	"go.uber.org/zap"

	"ctslicesto3d/internal/logger"
	"ctslicesto3d/internal/models"
)

// Extractor selects voxels brighter than Threshold and removes connected
// components smaller than MinObjectSize voxels.
type Extractor struct {
	Threshold     float64
	MinObjectSize int

	log *zap.Logger
}

// NewExtractor creates an extractor. A nil logger disables logging.
func NewExtractor(threshold float64, minObjectSize int, log *zap.Logger) *Extractor {
	return &Extractor{
		Threshold:     threshold,
		MinObjectSize: minObjectSize,
		log:           logger.OrNop(log),
	}
}

// Extract returns a mask with the same shape as vol.
func (e *Extractor) Extract(vol *models.Volume) *models.Mask {
	mask := models.Threshold(vol, e.Threshold)
	before := mask.Count()
	removed := RemoveSmallObjects(mask, e.MinObjectSize)

	logger.OrNop(e.log).Debug("extracted region",
		zap.Float64("threshold", e.Threshold),
		zap.Int("thresholded", before),
		zap.Int("removedComponents", removed),
		zap.Int("foreground", mask.Count()))
	return mask
}

// neighbours6 are the face-adjacent offsets in (depth, row, col).
var neighbours6 = [6][3]int{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// RemoveSmallObjects clears every 6-connected foreground component with
// fewer than minSize voxels and returns the number of components removed.
func RemoveSmallObjects(mask *models.Mask, minSize int) int {
	if minSize <= 1 {
		return 0
	}

	labels := Label(mask)
	sizes := make(map[int]int)
	for _, l := range labels {
		if l > 0 {
			sizes[l]++
		}
	}

	removed := 0
	for _, n := range sizes {
		if n < minSize {
			removed++
		}
	}
	if removed == 0 {
		return 0
	}

	for i, l := range labels {
		if l > 0 && sizes[l] < minSize {
			mask.Data[i] = false
		}
	}
	return removed
}

// Label assigns a positive component number to every foreground voxel of
// mask using 6-connectivity. Background voxels get 0. Components are
// numbered in scan order starting from 1.
func Label(mask *models.Mask) []int {
	labels := make([]int, len(mask.Data))
	next := 0
	var stack []int
	plane := mask.Rows * mask.Cols

	for start, fg := range mask.Data {
		if !fg || labels[start] != 0 {
			continue
		}
		next++
		labels[start] = next
		stack = append(stack[:0], start)

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			d, r, c := i/plane, (i%plane)/mask.Cols, i%mask.Cols

			for _, n := range neighbours6 {
				nd, nr, nc := d+n[0], r+n[1], c+n[2]
				if nd < 0 || nd >= mask.Depth || nr < 0 || nr >= mask.Rows || nc < 0 || nc >= mask.Cols {
					continue
				}
				j := mask.Index(nd, nr, nc)
				if mask.Data[j] && labels[j] == 0 {
					labels[j] = next
					stack = append(stack, j)
				}
			}
		}
	}
	return labels
}
