package sweep

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/condensim/internal/config"
	"github.com/san-kum/condensim/internal/storage"
)

const grid = `
kappa: [0.01, 0.02]
M1: [1, 2, 4]
`

func TestParseKeepsFileOrder(t *testing.T) {
	plan, err := Parse([]byte(grid + "beta: -0.4\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(plan.Axes) != 3 {
		t.Fatalf("expected 3 axes, got %d", len(plan.Axes))
	}
	want := []string{"kappa", "M1", "beta"}
	for i, a := range plan.Axes {
		if a.Key != want[i] {
			t.Errorf("axis %d: expected %s, got %s", i, want[i], a.Key)
		}
	}
	if len(plan.Axes[2].Values) != 1 {
		t.Errorf("expected scalar to become one value, got %v", plan.Axes[2].Values)
	}
	if plan.Size() != 6 {
		t.Errorf("expected 6 points, got %d", plan.Size())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"sequence", "- 1\n- 2\n"},
		{"no values", "kappa: []\n"},
		{"malformed", "kappa: [1, 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPointsCartesianProduct(t *testing.T) {
	plan, err := Parse([]byte(grid))
	if err != nil {
		t.Fatal(err)
	}
	base := config.DefaultConfig()
	points, err := plan.Points(base)
	if err != nil {
		t.Fatalf("points failed: %v", err)
	}
	if len(points) != 6 {
		t.Fatalf("expected 6 points, got %d", len(points))
	}

	want := []struct{ kappa, m1 float64 }{
		{0.01, 1}, {0.01, 2}, {0.01, 4},
		{0.02, 1}, {0.02, 2}, {0.02, 4},
	}
	for i, pt := range points {
		if pt.Index != i {
			t.Errorf("point %d has index %d", i, pt.Index)
		}
		if pt.Config.Kappa != want[i].kappa || pt.Config.M1 != want[i].m1 {
			t.Errorf("point %d: expected kappa=%g M1=%g, got kappa=%g M1=%g",
				i, want[i].kappa, want[i].m1, pt.Config.Kappa, pt.Config.M1)
		}
	}
	if points[0].Config == points[1].Config {
		t.Error("points share a config")
	}
	if base.Kappa != config.DefaultConfig().Kappa {
		t.Error("base config was modified")
	}
	if got := points[4].Label(plan); got != "kappa=0.02,M1=2" {
		t.Errorf("unexpected label %q", got)
	}
}

func TestPointsUnknownKey(t *testing.T) {
	plan, err := Parse([]byte("not_a_key: [1, 2]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := plan.Points(config.DefaultConfig()); err == nil {
		t.Error("expected error for unknown parameter")
	}
}

func smallBase() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Length = 4
	cfg.TotalSteps = 3
	cfg.SaveEvery = 1
	return cfg
}

func TestRunnerRunsEveryPoint(t *testing.T) {
	root := t.TempDir()
	store := storage.New(filepath.Join(root, "runs"))
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	plan, err := Parse([]byte("kappa: [0.01, 0.02, 0.03]\n"))
	if err != nil {
		t.Fatal(err)
	}

	r := &Runner{Store: store, Workers: 2, LogDir: filepath.Join(root, "log")}
	outcomes, err := r.Run(context.Background(), smallBase(), plan)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Err != nil || o.Result == nil || o.Result.Steps != 3 {
			t.Errorf("point %d: unexpected outcome %+v", i, o)
		}
		if o.RunID == "" {
			t.Errorf("point %d has no run", i)
		}
		if _, err := os.Stat(filepath.Join(root, "log", "params_"+string(rune('0'+i))+".yaml")); err != nil {
			t.Errorf("point %d parameter file: %v", i, err)
		}
	}

	runs, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Errorf("expected 3 stored runs, got %d", len(runs))
	}
}

func TestRunnerCanceled(t *testing.T) {
	store := storage.New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	plan, err := Parse([]byte("kappa: [0.01, 0.02]\n"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := (&Runner{Store: store}).Run(ctx, smallBase(), plan)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	for i, o := range outcomes {
		if o.Err == nil {
			t.Errorf("point %d: expected an error", i)
		}
	}
}
