// Package pipeline runs the complete slices to mesh conversion:
// read and assemble, segment, overlay, reconstruct, smooth and persist.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ctslicesto3d/internal/logger"
	"ctslicesto3d/internal/models"
	"ctslicesto3d/pkg/assembler"
	"ctslicesto3d/pkg/config"
	"ctslicesto3d/pkg/meshsink"
	"ctslicesto3d/pkg/reconstruction"
	"ctslicesto3d/pkg/segment"
	"ctslicesto3d/pkg/slicereader"
	"ctslicesto3d/pkg/visualization"
)

// Params configures a run.
type Params struct {
	Source  slicereader.Source
	Workers int

	Threshold     float64
	MinObjectSize int

	Reconstruction *reconstruction.Params
	Sink           meshsink.Options

	// OverlayPath receives the segmentation overlay of the middle slice.
	// Empty disables it.
	OverlayPath string

	// SlicesDir receives every assembled depth plane as PNG. Empty disables it.
	SlicesDir string
}

// ParamsFromConfig builds run parameters from a loaded configuration.
func ParamsFromConfig(cfg *config.Config) (*Params, error) {
	view, err := meshsink.ParseView(cfg.Mesh.View)
	if err != nil {
		return nil, fmt.Errorf("mesh.view: %w", err)
	}

	rec := reconstruction.DefaultParams()
	rec.Level = cfg.Reconstruction.Level
	rec.Closing = cfg.Reconstruction.Closing

	p := &Params{
		Source:         &slicereader.Directory{Path: cfg.Input.Dir, Recursive: cfg.Input.Recursive},
		Workers:        cfg.Assembly.Workers,
		Threshold:      cfg.Segmentation.Threshold,
		MinObjectSize:  cfg.Segmentation.MinObjectSize,
		Reconstruction: rec,
		Sink: meshsink.Options{
			SmoothingIterations: cfg.Mesh.SmoothingIterations,
			SmoothingFactor:     cfg.Mesh.SmoothingFactor,
			Output:              filepath.Join(cfg.Output.Dir, cfg.Mesh.Output),
			SnapshotView:        view,
		},
	}
	if cfg.Mesh.Snapshot != "" {
		p.Sink.Snapshot = filepath.Join(cfg.Output.Dir, cfg.Mesh.Snapshot)
	}
	if cfg.Output.Overlay {
		p.OverlayPath = filepath.Join(cfg.Output.Dir, "segmentation_overlay.png")
	}
	return p, nil
}

// Result summarises a completed run.
type Result struct {
	RunID string

	// Shape is the assembled volume shape (depth, rows, cols).
	Shape   [3]int
	Spacing models.Spacing

	// Skipped lists the items that could not be decoded.
	Skipped []slicereader.Failure

	// Foreground is the number of voxels in the extracted region.
	Foreground int

	Mesh     meshsink.Stats
	Output   string
	Duration time.Duration
}

// Pipeline executes runs.
type Pipeline struct {
	params *Params
	log    *zap.Logger
}

// New creates a pipeline. A nil logger disables logging.
func New(params *Params, log *zap.Logger) *Pipeline {
	return &Pipeline{params: params, log: logger.OrNop(log)}
}

// Run executes the pipeline once. Overlay, slice export and snapshot
// failures are logged and do not stop the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	log := p.log.With(zap.String("run", res.RunID))

	// Step 1: Read and assemble slices
	log.Info("step 1: assembling volume")
	vol, diag, err := assembler.New(p.params.Workers, log).AssembleFrom(ctx, p.params.Source)
	if diag != nil {
		res.Skipped = diag.Failures
	}
	if err != nil {
		return res, err
	}
	res.Shape = vol.Shape()
	res.Spacing = vol.Spacing

	if p.params.SlicesDir != "" {
		if err := visualization.NewViewer(vol).SaveSliceSequence("z", p.params.SlicesDir); err != nil {
			log.Warn("slice export failed", zap.Error(err))
		}
	}

	// Step 2: Extract the region of interest
	log.Info("step 2: segmenting")
	mask := segment.NewExtractor(p.params.Threshold, p.params.MinObjectSize, log).Extract(vol)
	res.Foreground = mask.Count()
	log.Info("segmented region", zap.Int("voxels", res.Foreground))

	if p.params.OverlayPath != "" {
		if err := visualization.NewViewer(vol).SaveOverlay(p.params.OverlayPath, mask, vol.Depth/2); err != nil {
			log.Warn("overlay unavailable", zap.Error(err))
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	// Step 3: Reconstruct the surface
	log.Info("step 3: reconstructing surface")
	mesh, err := reconstruction.NewReconstructor(p.params.Reconstruction, log).Reconstruct(mask, vol.Spacing)
	if err != nil {
		return res, err
	}

	// Step 4: Smooth and persist
	log.Info("step 4: writing mesh")
	final, err := meshsink.New(p.params.Sink, log).Consume(mesh)
	if err != nil {
		return res, err
	}
	res.Mesh = meshsink.Measure(final)
	res.Output = p.params.Sink.Output
	res.Duration = time.Since(start)

	log.Info("run complete",
		zap.Duration("duration", res.Duration),
		zap.Int("skipped", len(res.Skipped)),
		zap.String("output", res.Output))
	return res, nil
}
