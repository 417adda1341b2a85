package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/san-kum/condensim/internal/config"
	"github.com/san-kum/condensim/internal/dynamo"
	"github.com/san-kum/condensim/internal/sim"
	"github.com/san-kum/condensim/internal/storage"
)

// Run statuses written to metadata.json.
const (
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
	StatusFailed    = "failed"
)

// Recorder writes a stats row and one snapshot per species at every frame.
type Recorder struct {
	run *storage.Run
}

func NewRecorder(run *storage.Run) *Recorder { return &Recorder{run: run} }

func (r *Recorder) OnStep(f sim.Frame) error {
	mass := make([]float64, len(f.State.Fields))
	for k, c := range f.State.Fields {
		mass[k] = c.Integral()
	}
	row := storage.StatsRow{
		Step:      f.Step,
		Time:      f.Time,
		Dt:        f.Dt,
		Mass:      mass,
		MaxChange: f.Report.MaxChange,
		Residual:  f.Report.MaxResidual(),
		Converged: f.Report.Converged,
		Locus:     f.State.Locus.Clone(),
	}
	if err := r.run.WriteStats(row); err != nil {
		return err
	}
	return r.run.WriteSnapshot(f.Step, f.Time, f.State.Fields.Snapshot())
}

// Execute creates a run in store, builds the experiment inside its
// directory, runs it with a Recorder plus any extra observers and closes
// the run with its final status. The run ID is returned even on failure.
func Execute(ctx context.Context, store *storage.Store, name string, cfg *config.Config, opts Options, observers ...sim.Observer) (string, *sim.Result, error) {
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
		opts.Registry = reg
	}
	if err := cfg.Validate(); err != nil {
		return "", nil, fmt.Errorf("invalid config: %w: %w", dynamo.ErrInvalidParameter, err)
	}
	m, err := reg.GetMesh(cfg)
	if err != nil {
		return "", nil, err
	}

	run, err := store.Create(name, cfg, cfg.Species(), m.NumCells())
	if err != nil {
		return "", nil, err
	}
	opts.Dir = run.Dir()

	e, err := New(cfg, opts)
	if err != nil {
		run.Close(StatusFailed, nil)
		return run.ID, nil, err
	}
	defer e.Close()

	e.AddObserver(NewRecorder(run))
	for _, o := range observers {
		e.AddObserver(o)
	}

	result, runErr := e.Run(ctx)
	status := StatusCompleted
	switch {
	case errors.Is(runErr, dynamo.ErrContextCanceled):
		status = StatusCanceled
	case runErr != nil:
		status = StatusFailed
	}

	var metrics map[string]float64
	if result != nil {
		metrics = result.Metrics
	}
	if err := run.Close(status, metrics); err != nil && runErr == nil {
		runErr = err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("run closed", slog.String("run", run.ID), slog.String("status", status))
	return run.ID, result, runErr
}
