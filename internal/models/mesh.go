package models

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is a triangulated surface in physical coordinates.
//
// Vertex components follow the volume axis order: X is the through-plane
// coordinate, Y the row coordinate and Z the column coordinate.
type Mesh struct {
	Vertices []r3.Vec
	Faces    [][3]int

	// Normals holds one unit normal per vertex, or nil.
	Normals []r3.Vec
}

// Bounds returns the axis-aligned bounding box of the vertices.
// It returns zero vectors for an empty mesh.
func (m *Mesh) Bounds() (min, max r3.Vec) {
	if len(m.Vertices) == 0 {
		return r3.Vec{}, r3.Vec{}
	}
	xs := make([]float64, len(m.Vertices))
	ys := make([]float64, len(m.Vertices))
	zs := make([]float64, len(m.Vertices))
	for i, v := range m.Vertices {
		xs[i], ys[i], zs[i] = v.X, v.Y, v.Z
	}
	min = r3.Vec{X: floats.Min(xs), Y: floats.Min(ys), Z: floats.Min(zs)}
	max = r3.Vec{X: floats.Max(xs), Y: floats.Max(ys), Z: floats.Max(zs)}
	return min, max
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Vertices: append([]r3.Vec(nil), m.Vertices...),
		Faces:    append([][3]int(nil), m.Faces...),
	}
	if m.Normals != nil {
		out.Normals = append([]r3.Vec(nil), m.Normals...)
	}
	return out
}

// FaceNormal returns the unnormalized normal of face i (twice its area).
func (m *Mesh) FaceNormal(i int) r3.Vec {
	f := m.Faces[i]
	a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// ComputeNormals recomputes per-vertex normals as the area weighted average
// of adjacent face normals.
func (m *Mesh) ComputeNormals() {
	normals := make([]r3.Vec, len(m.Vertices))
	for i, f := range m.Faces {
		n := m.FaceNormal(i)
		for _, idx := range f {
			normals[idx] = r3.Add(normals[idx], n)
		}
	}
	for i, n := range normals {
		if l := r3.Norm(n); l > 0 {
			normals[i] = r3.Scale(1/l, n)
		}
	}
	m.Normals = normals
}
