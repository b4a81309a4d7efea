package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"spotdetect/pkg/axes"
	"spotdetect/pkg/config"
	"spotdetect/pkg/imageio"
	"spotdetect/pkg/logging"
	"spotdetect/pkg/model"
	"spotdetect/pkg/model/tflitemodel"
	"spotdetect/pkg/pipeline"
	"spotdetect/pkg/tiling"
)

// predictCommand runs the detection pipeline. Flags override the configuration file.
func predictCommand(configPath *string) *cobra.Command {
	var (
		input     string
		modelPath string
		output    string
		shape     string
		radius    int
		tileSize  int
		threshold float64
		workers   int
		overlay   bool
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Detect spots in an image or a directory of images",
		Long: `Detect spots in every plane of the input images and write one CSV per
image with the spot coordinates and, when a radius is given, their intensity.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("model") {
				cfg.Model.Path = modelPath
			}
			if flags.Changed("output") {
				cfg.Output.Dir = output
			}
			if flags.Changed("shape") {
				cfg.Prediction.Shape = shape
			}
			if flags.Changed("radius") {
				cfg.Prediction.Radius = &radius
			}
			if flags.Changed("tile-size") {
				cfg.Prediction.TileSize = tileSize
			}
			if flags.Changed("threshold") {
				cfg.Prediction.Threshold = threshold
			}
			if flags.Changed("workers") {
				cfg.Processing.Workers = workers
			}
			if flags.Changed("overlay") {
				cfg.Output.Overlay = overlay
			}
			if flags.Changed("verbose") {
				cfg.Output.Verbose = verbose
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return predict(cmd, input, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&input, "input", "i", "", "Image file or directory of images")
	flags.StringVarP(&modelPath, "model", "m", "", "TensorFlow Lite model file")
	flags.StringVarP(&output, "output", "o", "", "Output directory (default: next to the input)")
	flags.StringVarP(&shape, "shape", "s", "", `Axis order of the images, e.g. "(z,y,x)" (default: inferred)`)
	flags.IntVarP(&radius, "radius", "r", 0, "Add an intensity column summed over a square of side 2*radius+1")
	flags.IntVar(&tileSize, "tile-size", 0, "Tile edge in pixels (default: model input edge)")
	flags.Float64Var(&threshold, "threshold", 0.5, "Cell probability above which a spot is reported")
	flags.IntVar(&workers, "workers", 0, "Planes and tiles processed at once (default: all cores)")
	flags.BoolVar(&overlay, "overlay", false, "Save a PNG per plane with the spots marked")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func predict(cmd *cobra.Command, input string, cfg *config.Config) error {
	log := logging.New(cfg.Output.Verbose)

	m, err := tflitemodel.LoadPool(cfg.Model.Path, cfg.Model.Interpreters, cfg.Model.Threads, log)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	defer m.Close()

	params := &pipeline.Params{
		Input:     input,
		OutputDir: cfg.Output.Dir,
		Shape:     cfg.Prediction.Shape,
		Radius:    cfg.Prediction.Radius,
		TileSize:  cfg.Prediction.TileSize,
		Threshold: cfg.Prediction.Threshold,
		Workers:   cfg.Processing.Workers,
		Overlay:   cfg.Output.Overlay,
	}
	predictor, err := pipeline.NewPredictor(params, m, log)
	if err != nil {
		return err
	}

	summary, err := predictor.Process(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "================================")
	fmt.Fprintf(out, "Prediction completed in %.2f seconds\n", summary.Elapsed.Seconds())
	fmt.Fprintf(out, "- Images processed: %d of %d\n", summary.Files-summary.Failed, summary.Files)
	fmt.Fprintf(out, "- Planes: %d\n", summary.Planes)
	fmt.Fprintf(out, "- Spots detected: %d (%.1f per plane)\n", summary.Detections, summary.MeanPerPlane)
	for _, path := range summary.Outputs {
		fmt.Fprintf(out, "  %s\n", path)
	}
	if summary.Failed > 0 {
		fmt.Fprintln(out, "\nFailed images:")
		failed := make([]string, 0, len(summary.Failures))
		for file := range summary.Failures {
			failed = append(failed, file)
		}
		sort.Strings(failed)
		for _, file := range failed {
			fmt.Fprintf(out, "- %s: %v\n", file, summary.Failures[file])
		}
		return fmt.Errorf("%d of %d images failed", summary.Failed, summary.Files)
	}
	return nil
}

// checkCommand reports how an image would be split into planes and tiles
func checkCommand() *cobra.Command {
	var (
		shape    string
		tileSize int
	)

	cmd := &cobra.Command{
		Use:   "check [image]",
		Short: "Show the shape and axis descriptor of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !model.IsPowerOfTwo(tileSize) {
				return fmt.Errorf("tile size %d is not a power of two", tileSize)
			}
			var desc axes.Descriptor
			var err error
			if shape != "" {
				if desc, err = axes.Parse(shape); err != nil {
					return err
				}
			}

			raw, err := imageio.Load(args[0], desc.HasRGB())
			if err != nil {
				return err
			}
			source := "provided"
			if desc == nil {
				if desc, err = axes.Infer(raw.Shape); err != nil {
					return err
				}
				source = "inferred"
			}
			planes, err := axes.Normalize(raw, desc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Image: %s\n", args[0])
			fmt.Fprintf(out, "Shape: %v\n", raw.Shape)
			fmt.Fprintf(out, "Axes: %s (%s)\n", desc, source)
			fmt.Fprintf(out, "Planes: %d\n", len(planes))
			if len(planes) > 0 {
				h, w := planes[0].Plane.Dims()
				grid := tiling.NewTileGrid(h, w, tileSize)
				fmt.Fprintf(out, "Tiles per plane: %d (%dx%d of %d px, padded to %dx%d)\n",
					grid.Len(), grid.NumRows, grid.NumCols, tileSize, grid.PaddedHeight(), grid.PaddedWidth())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&shape, "shape", "s", "", "Axis order of the image (default: inferred)")
	cmd.Flags().IntVar(&tileSize, "tile-size", 512, "Tile edge in pixels")

	return cmd
}

// configCommand writes a configuration file with default values
func configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "spotdetect.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", path)
			return nil
		},
	}
}
