package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	apperr "ctslicesto3d/internal/errors"
	"ctslicesto3d/pkg/config"
	"ctslicesto3d/pkg/meshsink"
	"ctslicesto3d/pkg/reconstruction"
	"ctslicesto3d/pkg/slicereader"
)

// writeSlices writes depth PNG slices of size x size with a bright square
// of side 6 on the planes in [lo, hi].
func writeSlices(t *testing.T, dir string, depth, size, lo, hi int) {
	t.Helper()
	for d := 0; d < depth; d++ {
		img := image.NewGray16(image.Rect(0, 0, size, size))
		if d >= lo && d <= hi {
			for y := size/2 - 3; y < size/2+3; y++ {
				for x := size/2 - 3; x < size/2+3; x++ {
					img.SetGray16(x, y, color.Gray16{Y: 1000})
				}
			}
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("slice_%03d.png", d)))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
}

func testParams(input, output string) *Params {
	return &Params{
		Source:         &slicereader.Directory{Path: input},
		Workers:        2,
		Threshold:      500,
		MinObjectSize:  10,
		Reconstruction: reconstruction.DefaultParams(),
		Sink: meshsink.Options{
			SmoothingIterations: 5,
			SmoothingFactor:     0.5,
			Output:              filepath.Join(output, "mesh.stl"),
			Snapshot:            filepath.Join(output, "mesh.png"),
		},
		OverlayPath: filepath.Join(output, "overlay.png"),
		SlicesDir:   filepath.Join(output, "slices"),
	}
}

func TestRun(t *testing.T) {
	input, output := t.TempDir(), t.TempDir()
	writeSlices(t, input, 10, 20, 2, 7)
	if err := os.WriteFile(filepath.Join(input, "slice_999.png"), []byte("broken"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := New(testParams(input, output), zaptest.NewLogger(t)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := uuid.Parse(res.RunID); err != nil {
		t.Errorf("Run id is not a uuid: %q", res.RunID)
	}
	if res.Shape != [3]int{10, 20, 20} {
		t.Errorf("Unexpected volume shape %v", res.Shape)
	}
	if len(res.Skipped) != 1 {
		t.Errorf("Expected the broken file to be skipped, got %+v", res.Skipped)
	}
	if res.Foreground != 6*6*6 {
		t.Errorf("Expected 216 foreground voxels, got %d", res.Foreground)
	}
	if res.Mesh.Faces == 0 || res.Mesh.Volume <= 0 {
		t.Errorf("Unexpected mesh stats %+v", res.Mesh)
	}
	// smoothing only pulls the surface inwards
	if res.Mesh.Min.X < 1.5-1e-9 || res.Mesh.Max.X > 7.5+1e-9 {
		t.Errorf("Mesh depth extent [%f,%f] outside the block", res.Mesh.Min.X, res.Mesh.Max.X)
	}

	for _, name := range []string{"mesh.stl", "mesh.png", "overlay.png", filepath.Join("slices", "slice_z_009.png")} {
		if _, err := os.Stat(filepath.Join(output, name)); err != nil {
			t.Errorf("Expected output %s: %v", name, err)
		}
	}
}

func TestRunEmptyRegion(t *testing.T) {
	input, output := t.TempDir(), t.TempDir()
	writeSlices(t, input, 4, 8, 1, 0) // no bright planes

	res, err := New(testParams(input, output), nil).Run(context.Background())
	if !errors.Is(err, apperr.ErrEmptyVolume) {
		t.Fatalf("Expected EmptyVolume, got %v", err)
	}
	if res.Shape != [3]int{4, 8, 8} {
		t.Errorf("Expected the assembled shape in the partial result, got %v", res.Shape)
	}
	if _, err := os.Stat(filepath.Join(output, "mesh.stl")); !os.IsNotExist(err) {
		t.Error("No mesh should be written for an empty region")
	}
}

func TestRunMissingInput(t *testing.T) {
	params := testParams(filepath.Join(t.TempDir(), "absent"), t.TempDir())
	_, err := New(params, nil).Run(context.Background())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Expected NotFound, got %v", err)
	}
	if apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("Unexpected code %q", apperr.CodeOf(err))
	}
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Input.Dir = "/data/scan"
	cfg.Output.Dir = "/tmp/results"
	cfg.Reconstruction.Closing = false
	cfg.Output.Overlay = false
	cfg.Mesh.Snapshot = ""
	cfg.Mesh.View = "axial"

	p, err := ParamsFromConfig(cfg)
	if err != nil {
		t.Fatalf("ParamsFromConfig: %v", err)
	}
	dir, ok := p.Source.(*slicereader.Directory)
	if !ok || dir.Path != "/data/scan" {
		t.Errorf("Unexpected source %#v", p.Source)
	}
	if p.Sink.Output != filepath.Join("/tmp/results", "lung_mesh.stl") {
		t.Errorf("Unexpected output %q", p.Sink.Output)
	}
	if p.Sink.Snapshot != "" || p.OverlayPath != "" {
		t.Error("Disabled outputs should stay empty")
	}
	if p.Reconstruction.Closing {
		t.Error("Closing should follow the configuration")
	}
	if p.Sink.SnapshotView != meshsink.ViewAxial {
		t.Errorf("Unexpected view %v", p.Sink.SnapshotView)
	}
	if p.Threshold != -320 || p.MinObjectSize != 500 {
		t.Errorf("Unexpected segmentation parameters %f/%d", p.Threshold, p.MinObjectSize)
	}
}

func TestParamsFromConfigInvalidView(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mesh.View = "oblique"
	if _, err := ParamsFromConfig(cfg); err == nil {
		t.Error("Expected error for unknown view")
	}
}
