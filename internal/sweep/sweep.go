// Package sweep expands a parameter grid over a base configuration and runs
// every point as an independent simulation on a bounded worker pool.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/condensim/internal/config"
	"github.com/san-kum/condensim/internal/experiment"
	"github.com/san-kum/condensim/internal/sim"
	"github.com/san-kum/condensim/internal/storage"
)

// Axis is one swept key and the values it takes, in file order.
type Axis struct {
	Key    string
	Values []any
}

// Plan is an ordered list of axes. Its points are the Cartesian product,
// with the last axis varying fastest.
type Plan struct {
	Axes []Axis
}

func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse reads a mapping of key to value list. A scalar counts as a single
// value.
func Parse(data []byte) (*Plan, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty sweep file")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("sweep file must be a mapping of parameter to values")
	}

	plan := &Plan{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, node := root.Content[i].Value, root.Content[i+1]
		var values []any
		switch node.Kind {
		case yaml.SequenceNode:
			if err := node.Decode(&values); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		default:
			var v any
			if err := node.Decode(&v); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			values = []any{v}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%s: no values", key)
		}
		plan.Axes = append(plan.Axes, Axis{Key: key, Values: values})
	}
	return plan, nil
}

// Size is the number of points.
func (p *Plan) Size() int {
	if len(p.Axes) == 0 {
		return 0
	}
	n := 1
	for _, a := range p.Axes {
		n *= len(a.Values)
	}
	return n
}

// Point is one combination applied to a copy of the base configuration.
type Point struct {
	Index  int
	Values map[string]any
	Config *config.Config
}

// Label joins the swept values as key=value pairs in axis order.
func (pt Point) Label(p *Plan) string {
	parts := make([]string, 0, len(p.Axes))
	for _, a := range p.Axes {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, pt.Values[a.Key]))
	}
	return strings.Join(parts, ",")
}

// Points expands the plan over base. Each point owns its configuration.
func (p *Plan) Points(base *config.Config) ([]Point, error) {
	n := p.Size()
	points := make([]Point, 0, n)
	idx := make([]int, len(p.Axes))
	for i := 0; i < n; i++ {
		cfg := base.Clone()
		values := make(map[string]any, len(p.Axes))
		for a, axis := range p.Axes {
			v := axis.Values[idx[a]]
			if err := cfg.Set(axis.Key, v); err != nil {
				return nil, fmt.Errorf("point %d: %w", i, err)
			}
			values[axis.Key] = v
		}
		points = append(points, Point{Index: i, Values: values, Config: cfg})

		for a := len(idx) - 1; a >= 0; a-- {
			idx[a]++
			if idx[a] < len(p.Axes[a].Values) {
				break
			}
			idx[a] = 0
		}
	}
	return points, nil
}

// Outcome is the result of one point.
type Outcome struct {
	Point  Point
	RunID  string
	Result *sim.Result
	Err    error
}

type Runner struct {
	Store   *storage.Store
	Workers int
	// LogDir, when set, receives params_<index>.yaml for every point.
	LogDir string
	Logger *slog.Logger
}

// Run executes every point of plan over base. Outcomes are indexed like
// the points; the error joins every failed point.
func (r *Runner) Run(ctx context.Context, base *config.Config, plan *Plan) ([]Outcome, error) {
	points, err := plan.Points(base)
	if err != nil {
		return nil, err
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "sweep"))

	if r.LogDir != "" {
		if err := os.MkdirAll(r.LogDir, 0755); err != nil {
			return nil, err
		}
		for _, pt := range points {
			path := filepath.Join(r.LogDir, "params_"+strconv.Itoa(pt.Index)+".yaml")
			if err := config.Save(path, pt.Config); err != nil {
				return nil, err
			}
		}
	}

	outcomes := make([]Outcome, len(points))
	jobs := make([]sim.Job, len(points))
	for i, pt := range points {
		outcomes[i].Point = pt
		jobs[i] = func(ctx context.Context) (*sim.Result, error) {
			logger.Info("point started", slog.Int("index", pt.Index), slog.String("params", pt.Label(plan)))
			id, result, err := experiment.Execute(ctx, r.Store, pt.Config.OutputName(), pt.Config, experiment.Options{Logger: logger})
			outcomes[i].RunID = id
			outcomes[i].Err = err
			return result, err
		}
	}

	results, err := sim.NewEnsemble(r.Workers).Run(ctx, jobs)
	for i, res := range results {
		outcomes[i].Result = res
		if res == nil && outcomes[i].Err == nil {
			outcomes[i].Err = ctx.Err()
		}
	}
	return outcomes, err
}
