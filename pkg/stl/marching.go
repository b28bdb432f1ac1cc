package stl

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"ctslicesto3d/internal/models"
)

// MarchingCubes extracts the iso-surface of a scalar field sampled on a
// regular grid.
//
// Each grid cube is split into six tetrahedra that share the cube's main
// diagonal (a Kuhn triangulation). Neighbouring cubes split their common
// face along the same diagonal, so the extracted surface has no cracks and
// is closed wherever the field is below the iso level on the grid border.
//
// The field is addressed as (depth, row, col) with
// index = depth*rows*cols + row*cols + col, and a sample is inside the
// surface when it is strictly greater than the iso level.
type MarchingCubes struct {
	data              []float64
	depth, rows, cols int
	iso               float64

	// scale is the physical voxel size along (depth, row, col)
	scale [3]float64
}

// NewMarchingCubes creates an extractor over data with unit voxel size.
func NewMarchingCubes(data []float64, depth, rows, cols int, iso float64) *MarchingCubes {
	return &MarchingCubes{
		data:  data,
		depth: depth,
		rows:  rows,
		cols:  cols,
		iso:   iso,
		scale: [3]float64{1, 1, 1},
	}
}

// SetScale sets the physical voxel size along depth, rows and columns.
func (mc *MarchingCubes) SetScale(depth, row, col float64) {
	mc.scale = [3]float64{depth, row, col}
}

// tetrahedra lists the corner offsets of the six tetrahedra of a unit cube.
// Every tetrahedron walks from (0,0,0) to (1,1,1) along the axes in one of
// the six possible orders.
var tetrahedra = func() [6][4][3]int {
	perms := [6][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	var out [6][4][3]int
	for i, p := range perms {
		var corner [3]int
		out[i][0] = corner
		for step := 0; step < 3; step++ {
			corner[p[step]] = 1
			out[i][step+1] = corner
		}
	}
	return out
}()

// builder accumulates a welded triangle mesh.
type builder struct {
	mc       *MarchingCubes
	mesh     *models.Mesh
	vertexOf map[[2]int]int
}

// Extract runs the extraction and returns an indexed mesh whose vertices are
// in the grid's physical frame (grid coordinates multiplied by the scale).
// Faces are wound so that their normals point out of the inside region and
// vertex normals are the area weighted average of the adjacent faces.
// Iteration order is fixed, so equal input yields an identical mesh.
func (mc *MarchingCubes) Extract() *models.Mesh {
	b := &builder{
		mc:       mc,
		mesh:     &models.Mesh{},
		vertexOf: make(map[[2]int]int),
	}

	var gridIdx [4]int
	var values [4]float64
	var points [4]r3.Vec
	for d := 0; d+1 < mc.depth; d++ {
		for r := 0; r+1 < mc.rows; r++ {
			for c := 0; c+1 < mc.cols; c++ {
				for _, tet := range tetrahedra {
					inside := 0
					for k, off := range tet {
						gd, gr, gc := d+off[0], r+off[1], c+off[2]
						gridIdx[k] = mc.index(gd, gr, gc)
						values[k] = mc.data[gridIdx[k]]
						points[k] = mc.position(gd, gr, gc)
						if values[k] > mc.iso {
							inside++
						}
					}
					if inside == 0 || inside == 4 {
						continue
					}
					b.tetrahedron(&gridIdx, &values, &points)
				}
			}
		}
	}

	b.mesh.ComputeNormals()
	return b.mesh
}

func (mc *MarchingCubes) index(d, r, c int) int {
	return d*mc.rows*mc.cols + r*mc.cols + c
}

func (mc *MarchingCubes) position(d, r, c int) r3.Vec {
	return r3.Vec{
		X: float64(d) * mc.scale[0],
		Y: float64(r) * mc.scale[1],
		Z: float64(c) * mc.scale[2],
	}
}

// tetrahedron emits the surface patch of one straddling tetrahedron.
func (b *builder) tetrahedron(gridIdx *[4]int, values *[4]float64, points *[4]r3.Vec) {
	var in, out []int
	for k := 0; k < 4; k++ {
		if values[k] > b.mc.iso {
			in = append(in, k)
		} else {
			out = append(out, k)
		}
	}

	var inC, outC r3.Vec
	for _, k := range in {
		inC = r3.Add(inC, points[k])
	}
	for _, k := range out {
		outC = r3.Add(outC, points[k])
	}
	outward := r3.Sub(r3.Scale(1/float64(len(out)), outC), r3.Scale(1/float64(len(in)), inC))

	edge := func(i, j int) int {
		return b.vertex(gridIdx[i], gridIdx[j], values[i], values[j], points[i], points[j])
	}

	switch len(in) {
	case 1:
		a := in[0]
		b.triangle(edge(a, out[0]), edge(a, out[1]), edge(a, out[2]), outward)
	case 3:
		o := out[0]
		b.triangle(edge(in[0], o), edge(in[1], o), edge(in[2], o), outward)
	case 2:
		p, q := in[0], in[1]
		u, v := out[0], out[1]
		pu, pv, qv, qu := edge(p, u), edge(p, v), edge(q, v), edge(q, u)
		b.triangle(pu, pv, qv, outward)
		b.triangle(pu, qv, qu, outward)
	}
}

// vertex returns the welded vertex on the grid edge (i, j), creating it at
// the linearly interpolated iso crossing the first time it is seen.
func (b *builder) vertex(i, j int, vi, vj float64, pi, pj r3.Vec) int {
	key := [2]int{i, j}
	if j < i {
		key = [2]int{j, i}
	}
	if idx, ok := b.vertexOf[key]; ok {
		return idx
	}

	t := 0.5
	if diff := vj - vi; diff != 0 {
		t = (b.mc.iso - vi) / diff
	}
	pos := r3.Add(pi, r3.Scale(t, r3.Sub(pj, pi)))

	idx := len(b.mesh.Vertices)
	b.mesh.Vertices = append(b.mesh.Vertices, pos)
	b.vertexOf[key] = idx
	return idx
}

// triangle appends face (i, j, k), flipped if needed so that its normal
// agrees with outward. Zero-area faces are dropped.
func (b *builder) triangle(i, j, k int, outward r3.Vec) {
	v := b.mesh.Vertices
	n := r3.Cross(r3.Sub(v[j], v[i]), r3.Sub(v[k], v[i]))
	if r3.Norm(n) <= math.SmallestNonzeroFloat64 {
		return
	}
	if r3.Dot(n, outward) < 0 {
		j, k = k, j
	}
	b.mesh.Faces = append(b.mesh.Faces, [3]int{i, j, k})
}

// GenerateTriangles runs the extraction and returns an unindexed triangle
// list with unit face normals, ready for STL output.
func (mc *MarchingCubes) GenerateTriangles() []Triangle {
	return MeshTriangles(mc.Extract())
}
