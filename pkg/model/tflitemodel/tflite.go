// Package tflitemodel runs a spot detection network exported to TensorFlow Lite.
//
// The network takes a batch of one single-channel square tile, shape
// [1, E, E, 1], and returns the cell grid, shape [1, G, G, 3].
package tflitemodel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	tflite "github.com/tphakala/go-tflite"
	"gonum.org/v1/gonum/mat"

	"spotdetect/internal/models"
	"spotdetect/pkg/errdefs"
	"spotdetect/pkg/logging"
)

// Model is a loaded TensorFlow Lite interpreter. A single interpreter is not
// reentrant, so Infer holds a lock for the whole call.
type Model struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter

	edge int
	grid int

	mu  sync.Mutex
	log *slog.Logger
}

// Load reads the model file and prepares an interpreter. Threads of zero or
// less uses every CPU.
func Load(path string, threads int, log *slog.Logger) (*Model, error) {
	log = logging.Module(log, "tflite")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	model := tflite.NewModel(data)
	if model == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model %s", path)
	}

	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		log.Error("TFLite error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("cannot create interpreter for %s", path)
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("tensor allocation failed: %v", status)
	}

	m := &Model{
		model:       model,
		options:     options,
		interpreter: interpreter,
		log:         log,
	}
	if err := m.readShapes(); err != nil {
		m.Close()
		return nil, err
	}
	log.Info("model loaded", "path", path, "input_edge", m.edge, "grid_size", m.grid, "threads", threads)
	return m, nil
}

// readShapes takes the input edge and grid size from the tensor shapes
func (m *Model) readShapes() error {
	in := m.interpreter.GetInputTensor(0)
	if in == nil {
		return errdefs.ModelShapef("model has no input tensor")
	}
	if in.NumDims() != 4 || in.Dim(1) != in.Dim(2) || in.Dim(3) != 1 {
		return errdefs.ModelShapef("input tensor has shape %v, want [1 E E 1]", dims(in))
	}

	out := m.interpreter.GetOutputTensor(0)
	if out == nil {
		return errdefs.ModelShapef("model has no output tensor")
	}
	if out.NumDims() != 4 || out.Dim(1) != out.Dim(2) || out.Dim(3) != models.GridChannels {
		return errdefs.ModelShapef("output tensor has shape %v, want [1 G G %d]", dims(out), models.GridChannels)
	}

	m.edge = in.Dim(1)
	m.grid = out.Dim(1)
	return nil
}

func dims(t *tflite.Tensor) []int {
	d := make([]int, t.NumDims())
	for i := range d {
		d[i] = t.Dim(i)
	}
	return d
}

// InputEdge is the tile edge the network was built for
func (m *Model) InputEdge() int { return m.edge }

// GridSize is the cell count along each side of the output grid
func (m *Model) GridSize() int { return m.grid }

// Infer runs the network on one tile
func (m *Model) Infer(ctx context.Context, tile mat.Matrix) (*models.Grid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, cols := tile.Dims()
	if rows != m.edge || cols != m.edge {
		return nil, errdefs.Shapef("tile is %dx%d, model expects %d", rows, cols, m.edge)
	}

	input := m.interpreter.GetInputTensor(0).Float32s()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			input[y*cols+x] = float32(tile.At(y, x))
		}
	}

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	grid := models.NewGrid(m.grid)
	copy(grid.Data, m.interpreter.GetOutputTensor(0).Float32s())
	return grid, nil
}

// Close releases the interpreter and model
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.options != nil {
		m.options.Delete()
		m.options = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
}
