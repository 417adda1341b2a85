package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/condensim/internal/mesh"
	"github.com/san-kum/condensim/internal/sim"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const historyLen = 48

type doneMsg struct {
	result *sim.Result
	err    error
}

type model struct {
	title string
	steps int

	frame   frameMsg
	seen    bool
	mass0   float64
	drift   []float64
	changes []float64

	started time.Time
	done    bool
	err     error
	cancel  context.CancelFunc

	width  int
	height int
}

func newModel(title string, steps int, cancel context.CancelFunc) model {
	return model{
		title:   title,
		steps:   steps,
		started: time.Now(),
		cancel:  cancel,
		drift:   make([]float64, 0, historyLen),
		changes: make([]float64, 0, historyLen),
		width:   80,
		height:  24,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case frameMsg:
		if !m.seen {
			m.mass0 = msg.mass
			m.seen = true
		}
		m.frame = msg
		drift := 0.0
		if m.mass0 != 0 {
			drift = math.Abs(msg.mass-m.mass0) / math.Abs(m.mass0)
		}
		m.drift = push(m.drift, drift)
		if msg.step > 0 {
			m.changes = push(m.changes, msg.maxChange)
		}
		return m, nil
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func push(h []float64, v float64) []float64 {
	if len(h) == historyLen {
		copy(h, h[1:])
		h = h[:historyLen-1]
	}
	return append(h, v)
}

func (m model) View() string {
	var b strings.Builder

	statusIcon := green.Render("●")
	statusText := green.Render("running")
	switch {
	case m.done && m.err != nil:
		statusIcon, statusText = red.Render("●"), red.Render("failed")
	case m.done:
		statusIcon, statusText = cyan.Render("●"), cyan.Render("done")
	case m.seen && !m.frame.converged && m.frame.step > 0:
		statusIcon, statusText = yellow.Render("○"), yellow.Render("not converged")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s\n", statusIcon, cyan.Render(m.title), statusText))

	progress := 0.0
	if m.steps > 0 {
		progress = math.Min(float64(m.frame.step)/float64(m.steps), 1)
	}
	barWidth := 36
	filled := int(progress * float64(barWidth))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	elapsed := time.Since(m.started).Round(time.Second)
	b.WriteString(fmt.Sprintf("   %s %s  %s\n\n", bar,
		dim.Render(fmt.Sprintf("%d/%d", m.frame.step, m.steps)), dim.Render(elapsed.String())))

	for _, row := range m.frame.rows {
		b.WriteString("   " + row + "\n")
	}

	b.WriteString(fmt.Sprintf("\n   %s %s  %s %s  %s %s\n",
		dim.Render("t="), white.Render(fmt.Sprintf("%.4g", m.frame.t)),
		dim.Render("dt="), white.Render(fmt.Sprintf("%.3g", m.frame.dt)),
		dim.Render("residual="), white.Render(fmt.Sprintf("%.2e", m.frame.residual))))

	var locus strings.Builder
	for d, x := range m.frame.locus {
		locus.WriteString(dim.Render(fmt.Sprintf("x%d=", d)))
		locus.WriteString(white.Render(fmt.Sprintf("%.3f", x)))
		locus.WriteString("  ")
	}
	if locus.Len() > 0 {
		b.WriteString("   " + dim.Render("locus ") + locus.String() + "\n")
	}

	if len(m.drift) > 1 {
		b.WriteString(fmt.Sprintf("   %s %s %s\n", dim.Render("mass drift"),
			cyan.Render(sparkline(m.drift, historyLen)), dim.Render(fmt.Sprintf("%.1e", m.drift[len(m.drift)-1]))))
	}
	if len(m.changes) > 1 {
		b.WriteString(fmt.Sprintf("   %s %s %s\n", dim.Render("max change"),
			cyan.Render(sparkline(m.changes, historyLen)), dim.Render(fmt.Sprintf("%.1e", m.changes[len(m.changes)-1]))))
	}
	if m.err != nil {
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + dim.Render("   q quit") + "\n")
	return b.String()
}

// RunFunc runs a simulation that reports frames to obs.
type RunFunc func(ctx context.Context, obs sim.Observer) (*sim.Result, error)

// RunLive shows a progress view while run executes on its own goroutine.
// Quitting the view cancels the run; the run's result and error are
// returned once it has stopped.
func RunLive(ctx context.Context, title string, steps int, m *mesh.Mesh, run RunFunc) (*sim.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(title, steps, cancel), tea.WithAltScreen())
	obs := NewObserver(p, m, 20)

	done := make(chan doneMsg, 1)
	go func() {
		res, err := run(ctx, obs)
		msg := doneMsg{result: res, err: err}
		done <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return nil, err
	}
	cancel()
	msg := <-done
	return msg.result, msg.err
}
