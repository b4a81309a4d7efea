// Package pipeline drives spot detection over image files: it loads every
// image, resolves its axes, assembles the detection table and writes it out.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"spotdetect/internal/models"
	"spotdetect/pkg/assembly"
	"spotdetect/pkg/axes"
	"spotdetect/pkg/imageio"
	"spotdetect/pkg/logging"
	"spotdetect/pkg/model"
	"spotdetect/pkg/tiling"
	"spotdetect/pkg/visualization"
)

// Params holds the prediction parameters for a run
type Params struct {
	// Input is an image file or a directory of images
	Input string

	// OutputDir receives one CSV per image. Empty means next to the input.
	OutputDir string

	// Shape is the axis descriptor, e.g. "(z,y,x)". Empty means it is
	// inferred from the first image and reused for the rest.
	Shape string

	// Radius enables the intensity column when non-nil
	Radius *int

	// TileSize is the tile edge, 0 for the model input edge
	TileSize int

	// Threshold is the cell probability above which a spot is reported
	Threshold float64

	// Workers bounds concurrent planes and tiles
	Workers int

	// Overlay writes a PNG per plane with the detections marked
	Overlay bool
}

// Summary describes a finished run
type Summary struct {
	Files      int
	Failed     int
	Planes     int
	Detections int

	// MeanPerPlane is the mean number of detections per processed plane
	MeanPerPlane float64

	Elapsed time.Duration

	// Outputs lists the CSV files written, in input order
	Outputs []string

	// Failures maps input files to the error that stopped them
	Failures map[string]error
}

// Predictor runs the detection pipeline for a set of files
type Predictor struct {
	params    *Params
	assembler *assembly.Assembler
	log       *slog.Logger
}

// NewPredictor validates the model against the parameters and returns a Predictor
func NewPredictor(params *Params, m model.Model, log *slog.Logger) (*Predictor, error) {
	log = logging.Module(log, "pipeline")

	tiler, err := tiling.New(m, tiling.Options{
		TileEdge:  params.TileSize,
		Threshold: params.Threshold,
		Workers:   params.Workers,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	assembler := assembly.New(tiler, assembly.Options{
		Radius:  params.Radius,
		Workers: params.Workers,
		Logger:  log,
	})

	log.Debug("tiler ready", "tile_edge", tiler.TileEdge(), "workers", params.Workers)

	return &Predictor{
		params:    params,
		assembler: assembler,
		log:       log,
	}, nil
}

// Process runs prediction on every input file. A failing file is logged and
// recorded in the summary; the remaining files are still processed. The
// returned error is only set when the run could not start at all.
func (p *Predictor) Process(ctx context.Context) (*Summary, error) {
	start := time.Now()

	files, err := imageio.Files(p.params.Input)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images with extensions %v found in %s", imageio.Extensions, p.params.Input)
	}
	outDir, err := p.outputDir()
	if err != nil {
		return nil, err
	}
	p.log.Info("files found", "count", len(files), "output", outDir)

	summary := &Summary{Files: len(files), Failures: make(map[string]error)}
	var desc axes.Descriptor
	if p.params.Shape != "" {
		if desc, err = axes.Parse(p.params.Shape); err != nil {
			return nil, err
		}
		p.log.Info("using provided axis descriptor", "shape", desc.String())
	}

	var firstShape []int
	var perPlane []float64
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		raw, err := imageio.Load(file, desc.HasRGB())
		if err != nil {
			p.fail(summary, file, err)
			continue
		}

		if firstShape == nil {
			firstShape = raw.Shape
			if desc == nil {
				if desc, err = axes.Infer(raw.Shape); err != nil {
					p.fail(summary, file, err)
					firstShape = nil
					continue
				}
				p.log.Info("using inferred axis descriptor", "shape", desc.String(), "image_shape", raw.Shape)
			}
		} else if !slices.Equal(firstShape, raw.Shape) {
			p.log.Warn("image shape differs from the first image",
				"file", file, "shape", raw.Shape, "first_shape", firstShape)
		}

		table, planes, err := p.PredictImage(ctx, raw, desc)
		if err != nil {
			p.fail(summary, file, err)
			continue
		}

		outPath := filepath.Join(outDir, imageio.Basename(file)+".csv")
		if err := writeTable(outPath, table); err != nil {
			p.fail(summary, file, err)
			continue
		}
		if p.params.Overlay {
			if _, err := visualization.SaveOverlays(outDir, imageio.Basename(file), planes, table.Rows); err != nil {
				p.log.Warn("failed to save overlays", "file", file, "error", err)
			}
		}

		summary.Outputs = append(summary.Outputs, outPath)
		summary.Planes += len(planes)
		summary.Detections += len(table.Rows)
		perPlane = append(perPlane, countPerPlane(planes, table.Rows)...)
		p.log.Info("prediction saved", "file", file, "output", outPath,
			"detections", len(table.Rows), "columns", table.Columns)
	}

	if len(perPlane) > 0 {
		summary.MeanPerPlane = stat.Mean(perPlane, nil)
	}
	summary.Elapsed = time.Since(start)
	p.log.Info("all predictions complete",
		"files", summary.Files,
		"failed", summary.Failed,
		"planes", summary.Planes,
		"detections", summary.Detections,
		"mean_per_plane", summary.MeanPerPlane,
		"elapsed", summary.Elapsed)
	return summary, nil
}

// PredictImage locates spots in every plane of raw and returns the pruned table
// together with the planes it was computed from.
func (p *Predictor) PredictImage(ctx context.Context, raw *models.Array, desc axes.Descriptor) (*assembly.Table, []models.TaggedPlane, error) {
	planes, err := axes.Normalize(raw, desc)
	if err != nil {
		return nil, nil, err
	}
	table, err := p.assembler.Assemble(ctx, planes)
	if err != nil {
		return nil, nil, err
	}
	return table, planes, nil
}

func (p *Predictor) fail(summary *Summary, file string, err error) {
	summary.Failed++
	summary.Failures[file] = err
	p.log.Error("prediction failed", "file", file, "error", err)
}

// outputDir resolves and creates the output directory
func (p *Predictor) outputDir() (string, error) {
	dir := p.params.OutputDir
	if dir == "" {
		info, err := os.Stat(p.params.Input)
		if err != nil {
			return "", err
		}
		dir = p.params.Input
		if !info.IsDir() {
			dir = filepath.Dir(p.params.Input)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

func writeTable(path string, table *assembly.Table) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := table.WriteCSV(file); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}

// countPerPlane returns the number of detections in each plane, in plane order
func countPerPlane(planes []models.TaggedPlane, rows []models.Detection) []float64 {
	counts := make(map[models.PlaneTag]float64, len(planes))
	for _, r := range rows {
		counts[r.PlaneTag]++
	}
	out := make([]float64, len(planes))
	for i, p := range planes {
		out[i] = counts[p.Tag]
	}
	return out
}
