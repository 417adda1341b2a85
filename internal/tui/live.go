package tui

import (
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/condensim/internal/field"
	"github.com/san-kum/condensim/internal/mesh"
	"github.com/san-kum/condensim/internal/sim"
)

const (
	width  = 64
	height = 24
)

var ramp = []rune(" .:-=+*#%@")

// Heatmap renders one species on a character canvas. 2D meshes are drawn
// whole; 3D meshes are cut at the mid plane. Cells sharing a pixel are
// averaged.
type Heatmap struct {
	cols, rows int
	pixel      []int // per mesh cell, -1 when outside the drawn plane
	minX, minY float64
	dx         float64
	stride     int

	sum    []float64
	count  []int
	canvas [][]rune
}

func NewHeatmap(m *mesh.Mesh, maxCols, maxRows int) *Heatmap {
	if maxCols < 1 {
		maxCols = width
	}
	if maxRows < 1 {
		maxRows = height
	}
	dx := m.CellSize()
	xs, ys := m.Coordinates(0), m.Coordinates(1)
	minX, maxX := bounds(xs)
	minY, maxY := bounds(ys)
	nx := int(math.Round((maxX-minX)/dx)) + 1
	ny := int(math.Round((maxY-minY)/dx)) + 1

	stride := 1
	for (nx+stride-1)/stride > maxCols || (ny+stride-1)/stride > maxRows {
		stride++
	}
	h := &Heatmap{
		cols:   (nx + stride - 1) / stride,
		rows:   (ny + stride - 1) / stride,
		pixel:  make([]int, m.NumCells()),
		minX:   minX,
		minY:   minY,
		dx:     dx,
		stride: stride,
	}

	var zs []float64
	plane := 0.0
	if m.Dim() == 3 {
		zs = m.Coordinates(2)
		plane = math.Inf(1)
		for _, z := range zs {
			if math.Abs(z) < math.Abs(plane) {
				plane = z
			}
		}
	}
	for i := range h.pixel {
		if zs != nil && math.Abs(zs[i]-plane) > 1e-9*dx {
			h.pixel[i] = -1
			continue
		}
		col, row := h.index(xs[i], ys[i])
		h.pixel[i] = row*h.cols + col
	}

	h.sum = make([]float64, h.cols*h.rows)
	h.count = make([]int, h.cols*h.rows)
	h.canvas = make([][]rune, h.rows)
	for r := range h.canvas {
		h.canvas[r] = make([]rune, h.cols)
	}
	return h
}

func bounds(v []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

func (h *Heatmap) index(x, y float64) (col, row int) {
	col = int(math.Floor((x-h.minX)/h.dx+0.5)) / h.stride
	row = int(math.Floor((y-h.minY)/h.dx+0.5)) / h.stride
	return col, row
}

func (h *Heatmap) Size() (cols, rows int) { return h.cols, h.rows }

func (h *Heatmap) clear() {
	for i := range h.sum {
		h.sum[i] = 0
		h.count[i] = 0
	}
	for r := range h.canvas {
		for c := range h.canvas[r] {
			h.canvas[r][c] = ' '
		}
	}
}

func (h *Heatmap) set(col, row int, c rune) {
	if col >= 0 && col < h.cols && row >= 0 && row < h.rows {
		// row 0 is the top of the canvas, the largest y.
		h.canvas[h.rows-1-row][col] = c
	}
}

// Render returns the canvas rows for values, with the locus marked X when
// it lies in the drawn plane.
func (h *Heatmap) Render(values, locus []float64) []string {
	h.clear()
	for i, p := range h.pixel {
		if p < 0 {
			continue
		}
		h.sum[p] += values[i]
		h.count[p]++
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for p, n := range h.count {
		if n == 0 {
			continue
		}
		h.sum[p] /= float64(n)
		lo = math.Min(lo, h.sum[p])
		hi = math.Max(hi, h.sum[p])
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	for p, n := range h.count {
		if n == 0 {
			continue
		}
		k := int((h.sum[p] - lo) / span * float64(len(ramp)-1))
		k = max(0, min(k, len(ramp)-1))
		h.set(p%h.cols, p/h.cols, ramp[k])
	}
	if len(locus) >= 2 {
		col, row := h.index(locus[0], locus[1])
		h.set(col, row, 'X')
	}

	out := make([]string, h.rows)
	for r, row := range h.canvas {
		out[r] = string(row)
	}
	return out
}

type frameMsg struct {
	step      int
	t, dt     float64
	rows      []string
	mass      float64
	maxChange float64
	residual  float64
	converged bool
	locus     []float64
}

// Observer forwards frames to a running program, at most one per interval.
// The heatmap is rendered on the simulation goroutine so the program never
// touches live field data.
type Observer struct {
	program  *tea.Program
	heat     *Heatmap
	interval time.Duration
	last     time.Time
}

func NewObserver(p *tea.Program, m *mesh.Mesh, frameRate int) *Observer {
	if frameRate < 1 {
		frameRate = 20
	}
	return &Observer{
		program:  p,
		heat:     NewHeatmap(m, width, height),
		interval: time.Second / time.Duration(frameRate),
	}
}

func (o *Observer) OnStep(f sim.Frame) error {
	if time.Since(o.last) < o.interval && f.Step != 0 {
		return nil
	}
	o.last = time.Now()
	o.program.Send(newFrame(o.heat, f))
	return nil
}

func newFrame(h *Heatmap, f sim.Frame) frameMsg {
	c1 := f.State.Fields[field.Species1]
	return frameMsg{
		step:      f.Step,
		t:         f.Time,
		dt:        f.Dt,
		rows:      h.Render(c1.Values(), f.State.Locus),
		mass:      c1.Integral(),
		maxChange: f.Report.MaxChange,
		residual:  f.Report.MaxResidual(),
		converged: f.Report.Converged,
		locus:     f.State.Locus.Clone(),
	}
}

func sparkline(data []float64, w int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	start := 0
	if len(data) > w {
		start = len(data) - w
	}
	var sb strings.Builder
	for _, v := range data[start:] {
		idx := int((v - minVal) / rang * 7)
		sb.WriteRune(chars[max(0, min(idx, 7))])
	}
	return sb.String()
}
