package models

// Rescale holds the linear transform that converts stored samples into a
// physical intensity unit: intensity = raw*Slope + Intercept.
type Rescale struct {
	Slope     float64
	Intercept float64
}

// Slice represents a single 2D scan frame with its optional metadata.
// Optional fields are nil when the source does not provide them.
type Slice struct {
	// Name identifies the item the slice was decoded from (usually a file path).
	// It is used for diagnostics and as the final ordering tie-break.
	Name string

	// Rows and Cols are the dimensions of the pixel grid.
	Rows int
	Cols int

	// Samples is the number of interleaved channels per pixel. Zero means 1.
	Samples int

	// Pixels holds the raw stored samples in row-major order,
	// Rows*Cols*Samples values long.
	Pixels []float64

	// Position is the physical location along the through-plane axis.
	Position *float64

	// Index is the sequence/instance number of the slice.
	Index *int

	// UID is the unique identifier of the slice, empty when unknown.
	UID string

	// Rescale converts stored samples to physical intensity.
	Rescale *Rescale

	// PixelSpacing is the in-plane physical distance between (rows, cols).
	PixelSpacing *[2]float64

	// Thickness is the physical through-plane extent of the slice.
	Thickness *float64
}

// Channels returns the number of samples per pixel, treating zero as one.
func (s *Slice) Channels() int {
	if s.Samples < 1 {
		return 1
	}
	return s.Samples
}

// At returns the raw first-channel sample at (row, col).
func (s *Slice) At(row, col int) float64 {
	return s.Pixels[(row*s.Cols+col)*s.Channels()]
}

// Spacing is the physical extent of one voxel along (through-plane, row, column).
type Spacing struct {
	Through float64
	Row     float64
	Col     float64
}

// DefaultSpacing is used when no slice supplies geometry.
var DefaultSpacing = Spacing{Through: 1, Row: 1, Col: 1}

// Axes returns the spacing as an array in volume axis order.
func (s Spacing) Axes() [3]float64 {
	return [3]float64{s.Through, s.Row, s.Col}
}

// SliceFootprint records where an input slice was embedded inside its depth plane.
type SliceFootprint struct {
	Top, Left  int
	Rows, Cols int
}

// Contains reports whether (row, col) lies inside the footprint.
func (f SliceFootprint) Contains(row, col int) bool {
	return row >= f.Top && row < f.Top+f.Rows && col >= f.Left && col < f.Left+f.Cols
}

// Volume represents a 3D intensity tensor addressed as (depth, row, col).
type Volume struct {
	// Data is the volume as a 1D array in row-major order:
	// index = depth*Rows*Cols + row*Cols + col.
	Data []float64

	Depth int
	Rows  int
	Cols  int

	// Spacing is the representative physical voxel size.
	Spacing Spacing

	// Footprints holds one entry per depth plane describing the region
	// occupied by the original slice; everything else is zero padding.
	Footprints []SliceFootprint

	// Names lists the source item of each depth plane in assembled order.
	Names []string
}

// NewVolume allocates a zero-filled volume.
func NewVolume(depth, rows, cols int, spacing Spacing) *Volume {
	return &Volume{
		Data:    make([]float64, depth*rows*cols),
		Depth:   depth,
		Rows:    rows,
		Cols:    cols,
		Spacing: spacing,
	}
}

// Index returns the linear index of voxel (d, r, c).
func (v *Volume) Index(d, r, c int) int {
	return d*v.Rows*v.Cols + r*v.Cols + c
}

// At returns the intensity of voxel (d, r, c).
func (v *Volume) At(d, r, c int) float64 {
	return v.Data[v.Index(d, r, c)]
}

// Plane returns the data of depth plane d without copying.
func (v *Volume) Plane(d int) []float64 {
	size := v.Rows * v.Cols
	return v.Data[d*size : (d+1)*size]
}

// IsPadding reports whether voxel (d, r, c) was zero-filled during footprint
// unification rather than copied from a slice.
func (v *Volume) IsPadding(d, r, c int) bool {
	if d >= len(v.Footprints) {
		return false
	}
	return !v.Footprints[d].Contains(r, c)
}

// Shape returns (depth, rows, cols).
func (v *Volume) Shape() [3]int {
	return [3]int{v.Depth, v.Rows, v.Cols}
}

// Mask is a binary volume with the same addressing as Volume.
type Mask struct {
	Data  []bool
	Depth int
	Rows  int
	Cols  int
}

// NewMask allocates an all-background mask.
func NewMask(depth, rows, cols int) *Mask {
	return &Mask{
		Data:  make([]bool, depth*rows*cols),
		Depth: depth,
		Rows:  rows,
		Cols:  cols,
	}
}

// Index returns the linear index of voxel (d, r, c).
func (m *Mask) Index(d, r, c int) int {
	return d*m.Rows*m.Cols + r*m.Cols + c
}

// At reports whether voxel (d, r, c) is foreground.
func (m *Mask) At(d, r, c int) bool {
	return m.Data[m.Index(d, r, c)]
}

// Set assigns voxel (d, r, c).
func (m *Mask) Set(d, r, c int, v bool) {
	m.Data[m.Index(d, r, c)] = v
}

// Count returns the number of foreground voxels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Shape returns (depth, rows, cols).
func (m *Mask) Shape() [3]int {
	return [3]int{m.Depth, m.Rows, m.Cols}
}

// Threshold converts a volume into a mask: a voxel is foreground iff its
// value is strictly greater than level.
func Threshold(v *Volume, level float64) *Mask {
	m := NewMask(v.Depth, v.Rows, v.Cols)
	for i, x := range v.Data {
		m.Data[i] = x > level
	}
	return m
}
