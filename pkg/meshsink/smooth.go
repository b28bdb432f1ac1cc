// Package meshsink post-processes and persists reconstructed meshes.
package meshsink

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"ctslicesto3d/internal/models"
)

// Smooth applies iterations of Laplacian smoothing: every vertex moves by
// factor towards the centroid of its neighbours over the face adjacency.
// The input mesh is not modified; the result has recomputed normals.
func Smooth(mesh *models.Mesh, iterations int, factor float64) *models.Mesh {
	out := mesh.Clone()
	if iterations > 0 && factor != 0 {
		neighbours := adjacency(out)
		next := make([]r3.Vec, len(out.Vertices))
		for it := 0; it < iterations; it++ {
			for i, v := range out.Vertices {
				nb := neighbours[i]
				if len(nb) == 0 {
					next[i] = v
					continue
				}
				var centroid r3.Vec
				for _, j := range nb {
					centroid = r3.Add(centroid, out.Vertices[j])
				}
				centroid = r3.Scale(1/float64(len(nb)), centroid)
				next[i] = r3.Add(v, r3.Scale(factor, r3.Sub(centroid, v)))
			}
			out.Vertices, next = next, out.Vertices
		}
	}
	out.ComputeNormals()
	return out
}

// adjacency returns the sorted, de-duplicated neighbours of every vertex.
func adjacency(mesh *models.Mesh) [][]int {
	sets := make([]map[int]struct{}, len(mesh.Vertices))
	link := func(a, b int) {
		if sets[a] == nil {
			sets[a] = make(map[int]struct{})
		}
		sets[a][b] = struct{}{}
	}
	for _, f := range mesh.Faces {
		for k := 0; k < 3; k++ {
			a, b := f[k], f[(k+1)%3]
			link(a, b)
			link(b, a)
		}
	}

	out := make([][]int, len(sets))
	for i, s := range sets {
		for j := range s {
			out[i] = append(out[i], j)
		}
		sort.Ints(out[i])
	}
	return out
}
