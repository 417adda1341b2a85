package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/condensim/internal/mesh"
)

func TestHeatmapRender(t *testing.T) {
	m, err := mesh.Square2D(4, 1)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHeatmap(m, 10, 10)
	if cols, rows := h.Size(); cols != 4 || rows != 4 {
		t.Fatalf("expected a 4x4 canvas, got %dx%d", cols, rows)
	}

	rows := h.Render(m.Coordinates(0), []float64{1.5, 1.5})
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	for r, row := range rows {
		line := []rune(row)
		if line[0] != ' ' {
			t.Errorf("row %d: expected the low end of the ramp on the left, got %q", r, line[0])
		}
		if r > 0 && line[3] != '@' {
			t.Errorf("row %d: expected the high end of the ramp on the right, got %q", r, line[3])
		}
	}
	if []rune(rows[0])[3] != 'X' {
		t.Errorf("expected locus at the top right, got %q", rows[0])
	}
}

func TestHeatmapDownsamples(t *testing.T) {
	m, err := mesh.Square2D(16, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHeatmap(m, 32, 32)
	if cols, rows := h.Size(); cols != 32 || rows != 32 {
		t.Errorf("expected 32x32 after downsampling, got %dx%d", cols, rows)
	}
	values := make([]float64, m.NumCells())
	for _, row := range h.Render(values, nil) {
		if strings.Trim(row, " ") != "" {
			t.Fatalf("expected a flat field to render blank, got %q", row)
		}
	}
}

func TestHeatmapCutsCubeAtMidPlane(t *testing.T) {
	m, err := mesh.Cube3D(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHeatmap(m, 10, 10)
	drawn := 0
	for _, p := range h.pixel {
		if p >= 0 {
			drawn++
		}
	}
	if drawn != 4 {
		t.Errorf("expected 4 cells in the plane, got %d", drawn)
	}
}

func TestSparkline(t *testing.T) {
	if got := sparkline([]float64{0, 1}, 10); got != "▁█" {
		t.Errorf("unexpected sparkline %q", got)
	}
	if got := []rune(sparkline(make([]float64, 100), 10)); len(got) != 10 {
		t.Errorf("expected 10 characters, got %d", len(got))
	}
	if sparkline(nil, 10) != "" {
		t.Error("expected empty sparkline")
	}
}

func TestModelUpdate(t *testing.T) {
	canceled := false
	var m tea.Model = newModel("spinodal", 10, func() { canceled = true })

	m, _ = m.Update(frameMsg{step: 0, mass: 16, converged: true, rows: []string{"@@"}})
	m, _ = m.Update(frameMsg{step: 5, mass: 16, maxChange: 1e-3, converged: true, locus: []float64{0.5, 0}})
	view := m.View()
	if !strings.Contains(view, "spinodal") || !strings.Contains(view, "5/10") {
		t.Errorf("unexpected view:\n%s", view)
	}
	if !strings.Contains(view, "locus") {
		t.Error("expected locus line")
	}

	m, cmd := m.Update(doneMsg{err: errors.New("boom")})
	if cmd == nil {
		t.Error("expected quit after done")
	}
	if !strings.Contains(m.View(), "failed") {
		t.Error("expected failed status")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || !canceled {
		t.Error("expected q to cancel and quit")
	}
}
