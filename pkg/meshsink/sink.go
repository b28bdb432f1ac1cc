package meshsink

import (
	"fmt"

	"go.uber.org/zap"

	"ctslicesto3d/internal/logger"
	"ctslicesto3d/internal/models"
	"ctslicesto3d/pkg/stl"
)

// WriteSTL saves mesh as a binary STL file.
func WriteSTL(path string, mesh *models.Mesh) error {
	if err := stl.SaveToSTL(path, stl.MeshTriangles(mesh)); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Options configures a Sink.
type Options struct {
	SmoothingIterations int
	SmoothingFactor     float64

	// Output is the STL path. Empty skips persistence.
	Output string

	// Snapshot is the PNG path of the rendered view. Empty skips it.
	Snapshot       string
	SnapshotWidth  int
	SnapshotHeight int
	SnapshotView   View
}

// Sink smooths, persists and renders reconstructed meshes.
type Sink struct {
	opts Options
	log  *zap.Logger
}

// New creates a Sink. A nil logger disables logging.
func New(opts Options, log *zap.Logger) *Sink {
	if opts.SnapshotWidth <= 0 {
		opts.SnapshotWidth = 800
	}
	if opts.SnapshotHeight <= 0 {
		opts.SnapshotHeight = 800
	}
	return &Sink{opts: opts, log: logger.OrNop(log)}
}

// Consume smooths mesh and writes it out. Writing the STL file is required;
// the snapshot is best-effort and its failure is only logged.
// It returns the smoothed mesh.
func (s *Sink) Consume(mesh *models.Mesh) (*models.Mesh, error) {
	smoothed := Smooth(mesh, s.opts.SmoothingIterations, s.opts.SmoothingFactor)
	st := Measure(smoothed)
	s.log.Info("mesh ready",
		zap.Int("vertices", st.Vertices),
		zap.Int("faces", st.Faces),
		zap.Float64("area", st.Area),
		zap.Float64("volume", st.Volume))

	if s.opts.Output != "" {
		if err := WriteSTL(s.opts.Output, smoothed); err != nil {
			return nil, err
		}
		s.log.Info("saved STL", zap.String("path", s.opts.Output))
	}

	if s.opts.Snapshot != "" {
		if err := Snapshot(s.opts.Snapshot, smoothed, s.opts.SnapshotWidth, s.opts.SnapshotHeight, s.opts.SnapshotView); err != nil {
			s.log.Warn("snapshot unavailable", zap.String("path", s.opts.Snapshot), zap.Error(err))
		} else {
			s.log.Info("saved snapshot", zap.String("path", s.opts.Snapshot))
		}
	}
	return smoothed, nil
}
