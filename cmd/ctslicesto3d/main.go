package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"ctslicesto3d/internal/logger"
	"ctslicesto3d/pkg/assembler"
	"ctslicesto3d/pkg/config"
	"ctslicesto3d/pkg/pipeline"
	"ctslicesto3d/pkg/slicereader"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ctslicesto3d",
		Usage: "reconstruct a 3D surface mesh from a stack of 2D CT slices",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "read CTSLICES_* overrides from `FILE` when it exists",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "also write logs to the rotating `FILE`",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "assemble the slices, segment them and write the mesh",
				ArgsUsage: "[input dir]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "directory containing the slices"},
					&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Usage: "directory receiving the results"},
					&cli.Float64Flag{Name: "threshold", Usage: "segmentation threshold in physical units"},
					&cli.IntFlag{Name: "min-size", Usage: "drop connected components smaller than this many voxels"},
					&cli.IntFlag{Name: "workers", Usage: "number of concurrent slice decoders"},
					&cli.BoolFlag{Name: "recursive", Usage: "descend into subdirectories of the input"},
					&cli.BoolFlag{Name: "no-closing", Usage: "skip morphological closing before surface extraction"},
					&cli.StringFlag{Name: "extract-slices", Usage: "save every assembled plane as PNG under `DIR`"},
					&cli.StringFlag{Name: "view", Usage: "snapshot camera: coronal, axial or sagittal"},
				},
				Action: runAction,
			},
			{
				Name:      "info",
				Usage:     "read and assemble the slices and print what was found",
				ArgsUsage: "[input dir]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "directory containing the slices"},
					&cli.BoolFlag{Name: "recursive", Usage: "descend into subdirectories of the input"},
				},
				Action: infoAction,
			},
			{
				Name:      "init-config",
				Usage:     "write a default configuration file",
				ArgsUsage: "[path]",
				Action: func(c *cli.Context) error {
					path := c.Args().First()
					if path == "" {
						path = c.String("config")
					}
					if err := config.CreateDefaultConfigFile(path); err != nil {
						return err
					}
					fmt.Printf("Default configuration written to %s\n", path)
					return nil
				},
			},
		},
	}
}

// loadConfig layers the configuration file, the environment and the
// command line, then starts logging.
func loadConfig(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyEnv(c.String("env-file")); err != nil {
		return nil, nil, err
	}

	if v := c.String("input"); v != "" {
		cfg.Input.Dir = v
	} else if c.Args().Present() {
		cfg.Input.Dir = c.Args().First()
	}
	if c.Bool("recursive") {
		cfg.Input.Recursive = true
	}
	if c.IsSet("output-dir") {
		cfg.Output.Dir = c.String("output-dir")
	}
	if c.IsSet("threshold") {
		cfg.Segmentation.Threshold = c.Float64("threshold")
	}
	if c.IsSet("min-size") {
		cfg.Segmentation.MinObjectSize = c.Int("min-size")
	}
	if c.IsSet("workers") {
		cfg.Assembly.Workers = c.Int("workers")
	}
	if c.Bool("no-closing") {
		cfg.Reconstruction.Closing = false
	}
	if c.IsSet("view") {
		cfg.Mesh.View = c.String("view")
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := c.String("log-file"); v != "" {
		cfg.Logging.File = v
	}

	if cfg.Input.Dir == "" {
		return nil, nil, fmt.Errorf("no input directory: pass --input or set input.dir")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.Init(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, log, nil
}

func runAction(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	params, err := pipeline.ParamsFromConfig(cfg)
	if err != nil {
		return err
	}
	if dir := c.String("extract-slices"); dir != "" {
		params.SlicesDir = dir
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("================================")
	fmt.Println("3D SURFACE RECONSTRUCTION FROM 2D CT SLICES")
	fmt.Println("================================")

	res, err := pipeline.New(params, log).Run(ctx)
	if res != nil && len(res.Skipped) > 0 {
		fmt.Printf("\nSkipped %d undecodable item(s):\n", len(res.Skipped))
		for _, f := range res.Skipped {
			fmt.Printf("- %s: %v\n", filepath.Base(f.Name), f.Err)
		}
	}
	if err != nil {
		return fmt.Errorf("reconstruction failed: %w", err)
	}

	fmt.Printf("\nReconstruction completed successfully in %.2f seconds!\n", res.Duration.Seconds())
	fmt.Printf("Output mesh saved to: %s\n\n", res.Output)

	fmt.Printf("Volume:\n")
	fmt.Printf("=======\n")
	fmt.Printf("Shape (depth x rows x cols): %d x %d x %d\n", res.Shape[0], res.Shape[1], res.Shape[2])
	fmt.Printf("Spacing (through, row, col): %.3f, %.3f, %.3f\n", res.Spacing.Through, res.Spacing.Row, res.Spacing.Col)
	fmt.Printf("Segmented voxels: %d\n", res.Foreground)

	fmt.Printf("\nMesh:\n")
	fmt.Printf("=====\n")
	fmt.Printf("Vertices: %d\n", res.Mesh.Vertices)
	fmt.Printf("Triangles: %d\n", res.Mesh.Faces)
	fmt.Printf("Surface area: %.2f\n", res.Mesh.Area)
	fmt.Printf("Enclosed volume: %.2f\n", res.Mesh.Volume)
	fmt.Printf("Bounds: (%.2f, %.2f, %.2f) - (%.2f, %.2f, %.2f)\n",
		res.Mesh.Min.X, res.Mesh.Min.Y, res.Mesh.Min.Z,
		res.Mesh.Max.X, res.Mesh.Max.Y, res.Mesh.Max.Z)

	if params.SlicesDir != "" {
		fmt.Printf("\nAssembled slices saved to: %s\n", params.SlicesDir)
	}
	return nil
}

func infoAction(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	src := &slicereader.Directory{Path: cfg.Input.Dir, Recursive: cfg.Input.Recursive}
	slices, diag, err := slicereader.ReadAll(c.Context, src, cfg.Assembly.Workers, log)
	if err != nil {
		return err
	}
	ordered := assembler.Order(slices)

	fmt.Printf("Slices in assembly order (%d):\n", len(ordered))
	for i, s := range ordered {
		key := assembler.KeyOf(s)
		switch key.Source {
		case assembler.KeyUID:
			fmt.Printf("%4d  %-40s %dx%d  %s=%s\n", i, filepath.Base(s.Name), s.Rows, s.Cols, key.Source, key.UID)
		default:
			fmt.Printf("%4d  %-40s %dx%d  %s=%g\n", i, filepath.Base(s.Name), s.Rows, s.Cols, key.Source, key.Numeric)
		}
	}

	vol, err := assembler.New(cfg.Assembly.Workers, log).Assemble(c.Context, ordered)
	if err != nil {
		return err
	}
	fmt.Printf("\nVolume shape (depth x rows x cols): %d x %d x %d\n", vol.Depth, vol.Rows, vol.Cols)
	fmt.Printf("Spacing (through, row, col): %.3f, %.3f, %.3f\n", vol.Spacing.Through, vol.Spacing.Row, vol.Spacing.Col)

	if len(diag.Failures) > 0 {
		fmt.Printf("\nSkipped %d undecodable item(s):\n", len(diag.Failures))
		for _, f := range diag.Failures {
			fmt.Printf("- %s: %v\n", filepath.Base(f.Name), f.Err)
		}
	}
	return nil
}
