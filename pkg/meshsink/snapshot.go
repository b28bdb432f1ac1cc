package meshsink

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/spatial/r3"

	"ctslicesto3d/internal/models"
)

// View selects the axis the snapshot camera looks along.
type View int

const (
	// ViewCoronal looks along the row axis: columns run left to right and
	// the through-plane axis bottom to top.
	ViewCoronal View = iota
	// ViewAxial looks along the through-plane axis.
	ViewAxial
	// ViewSagittal looks along the column axis.
	ViewSagittal
)

// ParseView maps "coronal", "axial" and "sagittal" to a View.
func ParseView(s string) (View, error) {
	switch s {
	case "", "coronal":
		return ViewCoronal, nil
	case "axial":
		return ViewAxial, nil
	case "sagittal":
		return ViewSagittal, nil
	}
	return 0, fmt.Errorf("unknown view %q", s)
}

// project returns the screen (u, v) and depth of a point for the view.
// Larger depth is closer to the camera.
func (v View) project(p r3.Vec) (u, w, depth float64) {
	switch v {
	case ViewAxial:
		return p.Z, p.Y, -p.X
	case ViewSagittal:
		return p.Y, -p.X, p.Z
	}
	return p.Z, -p.X, -p.Y
}

// direction is the unit vector from the scene towards the camera.
func (v View) direction() r3.Vec {
	switch v {
	case ViewAxial:
		return r3.Vec{X: -1}
	case ViewSagittal:
		return r3.Vec{Z: 1}
	}
	return r3.Vec{Y: -1}
}

// Snapshot renders a flat shaded orthographic view of mesh into a PNG file.
// Faces are painted back to front and lit from the camera.
func Snapshot(path string, mesh *models.Mesh, width, height int, view View) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid snapshot size %dx%d", width, height)
	}
	if len(mesh.Faces) == 0 {
		return fmt.Errorf("mesh has no faces")
	}

	type projected struct {
		u, w  float64
		depth float64
	}
	pts := make([]projected, len(mesh.Vertices))
	minU, minW := math.Inf(1), math.Inf(1)
	maxU, maxW := math.Inf(-1), math.Inf(-1)
	for i, p := range mesh.Vertices {
		u, w, d := view.project(p)
		pts[i] = projected{u, w, d}
		minU, maxU = math.Min(minU, u), math.Max(maxU, u)
		minW, maxW = math.Min(minW, w), math.Max(maxW, w)
	}

	const margin = 0.05
	spanU, spanW := maxU-minU, maxW-minW
	if spanU <= 0 {
		spanU = 1
	}
	if spanW <= 0 {
		spanW = 1
	}
	scale := math.Min(float64(width)*(1-2*margin)/spanU, float64(height)*(1-2*margin)/spanW)
	offU := (float64(width) - spanU*scale) / 2
	offW := (float64(height) - spanW*scale) / 2
	screen := func(i int) (float64, float64) {
		return offU + (pts[i].u-minU)*scale, offW + (pts[i].w-minW)*scale
	}

	order := make([]int, len(mesh.Faces))
	faceDepth := make([]float64, len(mesh.Faces))
	for i, f := range mesh.Faces {
		order[i] = i
		faceDepth[i] = (pts[f[0]].depth + pts[f[1]].depth + pts[f[2]].depth) / 3
	}
	sort.SliceStable(order, func(a, b int) bool { return faceDepth[order[a]] < faceDepth[order[b]] })

	dc := gg.NewContext(width, height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	light := view.direction()
	for _, i := range order {
		n := mesh.FaceNormal(i)
		l := r3.Norm(n)
		if l == 0 {
			continue
		}
		shade := r3.Dot(r3.Scale(1/l, n), light)
		if shade <= 0 {
			// facing away from the camera
			continue
		}
		shade = 0.2 + 0.8*shade
		dc.SetRGB(0.9*shade, 0.55*shade, 0.5*shade)

		f := mesh.Faces[i]
		dc.NewSubPath()
		dc.MoveTo(screen(f[0]))
		dc.LineTo(screen(f[1]))
		dc.LineTo(screen(f[2]))
		dc.ClosePath()
		dc.Fill()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
