package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/condensim/internal/config"
	"github.com/san-kum/condensim/internal/experiment"
	"github.com/san-kum/condensim/internal/sim"
	"github.com/san-kum/condensim/internal/storage"
	"github.com/san-kum/condensim/internal/sweep"
	"github.com/san-kum/condensim/internal/tui"
)

var (
	dataDir    string
	logLevel   string
	configPath string
	presetName string
	runName    string
	overrides  []string

	dt        float64
	steps     int
	seed      int64
	saveEvery int
	solver    string
	locus     string
	workers   int
)

var logger = slog.Default()

var rootCmd = &cobra.Command{
	Use:   "condensim",
	Short: "phase-field simulator for condensates driven by a moving locus",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".condensim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	for _, cmd := range []*cobra.Command{runCmd, liveCmd, sweepCmd, benchCmd} {
		cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML parameter file")
		cmd.Flags().StringVarP(&presetName, "preset", "p", "", "preset as family/name")
		cmd.Flags().StringArrayVar(&overrides, "set", nil, "override a parameter, key=value")
		cmd.Flags().Float64Var(&dt, "dt", 0, "initial time step")
		cmd.Flags().IntVar(&steps, "steps", 0, "number of steps")
		cmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
		cmd.Flags().IntVar(&saveEvery, "save-every", 0, "snapshot interval in steps")
		cmd.Flags().StringVar(&solver, "solver", "", "linear solver")
		cmd.Flags().StringVar(&locus, "locus-integrator", "", "locus integrator")
	}
	for _, cmd := range []*cobra.Command{runCmd, liveCmd} {
		cmd.Flags().StringVar(&runName, "name", "", "run name (default built from parameters)")
	}
	sweepCmd.Flags().IntVarP(&workers, "workers", "w", sim.DefaultWorkers, "parallel runs")

	rootCmd.AddCommand(runCmd, liveCmd, sweepCmd, listCmd, plotCmd, exportJSONCmd, exportCSVCmd, presetsCmd, benchCmd)
}

// loadConfig layers defaults, preset, file and flags in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if presetName != "" {
		family, name, ok := strings.Cut(presetName, "/")
		if !ok {
			return nil, fmt.Errorf("preset %q: want family/name", presetName)
		}
		cfg = config.GetPreset(family, name)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q", presetName)
		}
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", configPath, err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("steps") {
		cfg.TotalSteps = steps
	}
	if flags.Changed("seed") {
		cfg.RandomSeed = seed
	}
	if flags.Changed("save-every") {
		cfg.SaveEvery = saveEvery
	}
	if flags.Changed("solver") {
		cfg.Solver = solver
	}
	if flags.Changed("locus-integrator") {
		cfg.LocusIntegrator = locus
	}
	for _, kv := range overrides {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: want key=value", kv)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("--set %s: %w", key, err)
		}
		if err := cfg.Set(key, value); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

func openStore() (*storage.Store, error) {
	st := storage.New(dataDir)
	return st, st.Init()
}

func nameFor(cfg *config.Config) string {
	if runName != "" {
		return runName
	}
	return cfg.OutputName()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a simulation and record it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		fmt.Printf("running %s (%d species, %d steps)\n", experiment.Geometry(cfg), cfg.Species(), cfg.Steps())
		start := time.Now()
		runID, result, err := experiment.Execute(ctx, st, nameFor(cfg), cfg, experiment.Options{Logger: logger})
		if runID != "" {
			fmt.Printf("run: %s\n", runID)
		}
		if result != nil {
			printResult(result, time.Since(start))
		}
		return err
	},
}

func printResult(r *sim.Result, elapsed time.Duration) {
	fmt.Printf("steps: %d  t: %.4f  dt: %.3g  retries: %d  non-converged: %d\n",
		r.Steps, r.Time, r.FinalDt, r.Retries, r.NonConverged)
	fmt.Printf("linear iterations: %d  max residual: %.3e  elapsed: %s\n",
		r.LinearIterations, r.MaxResidual, elapsed.Round(time.Millisecond))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range sortedKeys(r.Metrics) {
		fmt.Fprintf(w, "  %s\t%.6g\n", name, r.Metrics[name])
	}
	w.Flush()
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "run a simulation with a live terminal view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		m, err := experiment.NewRegistry().GetMesh(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		// the view owns the terminal, so logs below warn are dropped
		quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		name := nameFor(cfg)
		var runID string
		start := time.Now()
		result, err := tui.RunLive(ctx, name, cfg.Steps(), m, func(ctx context.Context, obs sim.Observer) (*sim.Result, error) {
			id, res, err := experiment.Execute(ctx, st, name, cfg, experiment.Options{Logger: quiet}, obs)
			runID = id
			return res, err
		})
		if runID != "" {
			fmt.Printf("run: %s\n", runID)
		}
		if result != nil {
			printResult(result, time.Since(start))
		}
		return err
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep [sweep.yaml]",
	Short: "run the Cartesian product of parameter lists in parallel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		plan, err := sweep.Load(args[0])
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		logDir := filepath.Join(dataDir, "sweeps", time.Now().Format("20060102_150405"))
		runner := &sweep.Runner{Store: st, Workers: workers, LogDir: logDir, Logger: logger}
		fmt.Printf("sweeping %d points on %d workers\n", plan.Size(), workers)

		outcomes, err := runner.Run(ctx, base, plan)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tPOINT\tRUN\tSTEPS\tT\tSTATUS")
		for _, o := range outcomes {
			status := experiment.StatusCompleted
			if o.Err != nil {
				status = o.Err.Error()
			}
			var n int
			var t float64
			if o.Result != nil {
				n, t = o.Result.Steps, o.Result.Time
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.4f\t%s\n", o.Point.Index, o.Point.Label(plan), o.RunID, n, t, status)
		}
		w.Flush()
		fmt.Printf("parameters: %s\n", logDir)
		return err
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets [family]",
	Short: "list parameter presets and registered components",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		families := config.Models()
		if len(args) == 1 {
			names := config.ListPresets(args[0])
			if names == nil {
				return fmt.Errorf("unknown preset family %q", args[0])
			}
			families = args[:1]
		}
		for _, family := range families {
			fmt.Printf("presets for %s:\n", family)
			for _, name := range config.ListPresets(family) {
				fmt.Printf("  %s/%s\n", family, name)
			}
		}
		if len(args) == 1 {
			return nil
		}

		reg := experiment.NewRegistry()
		fmt.Printf("geometries:  %s\n", strings.Join(reg.ListGeometries(), ", "))
		fmt.Printf("solvers:     %s\n", strings.Join(reg.ListSolvers(), ", "))
		fmt.Printf("integrators: %s\n", strings.Join(reg.ListIntegrators(), ", "))
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
