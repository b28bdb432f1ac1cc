package meshsink

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"ctslicesto3d/internal/models"
)

// Stats summarises a mesh in physical units.
type Stats struct {
	Vertices int
	Faces    int

	// Area is the total surface area.
	Area float64

	// Volume is the signed enclosed volume; positive for a closed surface
	// with outward facing normals.
	Volume float64

	Min, Max r3.Vec
}

// Measure computes the statistics of mesh.
func Measure(mesh *models.Mesh) Stats {
	areas := make([]float64, len(mesh.Faces))
	volumes := make([]float64, len(mesh.Faces))
	for i, f := range mesh.Faces {
		areas[i] = r3.Norm(mesh.FaceNormal(i)) / 2
		a, b, c := mesh.Vertices[f[0]], mesh.Vertices[f[1]], mesh.Vertices[f[2]]
		volumes[i] = r3.Dot(a, r3.Cross(b, c)) / 6
	}

	min, max := mesh.Bounds()
	return Stats{
		Vertices: len(mesh.Vertices),
		Faces:    len(mesh.Faces),
		Area:     floats.Sum(areas),
		Volume:   floats.Sum(volumes),
		Min:      min,
		Max:      max,
	}
}
