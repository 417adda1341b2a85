package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"

	"github.com/san-kum/condensim/internal/experiment"
	"github.com/san-kum/condensim/internal/export"
	"github.com/san-kum/condensim/internal/mesh"
	"github.com/san-kum/condensim/internal/sim"
	"github.com/san-kum/condensim/internal/storage"
)

var (
	species    int
	exportStep int
	svgOut     string
	svgScale   float64
)

func init() {
	for _, cmd := range []*cobra.Command{exportCSVCmd, exportSVGCmd} {
		cmd.Flags().IntVar(&species, "species", 1, "species to export, 1-based")
		cmd.Flags().IntVar(&exportStep, "step", -1, "step to export (default last snapshot)")
	}
	exportSVGCmd.Flags().StringVarP(&svgOut, "output", "o", "", "output file (default <run-id>.svg)")
	exportSVGCmd.Flags().Float64Var(&svgScale, "scale", 8, "pixels per cell")
	rootCmd.AddCommand(exportSVGCmd)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list recorded runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		runs, err := st.List()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs yet")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tSPECIES\tCELLS\tSTEPS\tT\tSTATUS")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.4f\t%s\n",
				r.ID, r.Timestamp.Format("2006-01-02 15:04"), r.Species, r.Cells, r.Steps, r.Time, r.Status)
		}
		return w.Flush()
	},
}

var plotCmd = &cobra.Command{
	Use:   "plot [run-id]",
	Short: "plot mass, change and locus of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		meta, err := st.Load(args[0])
		if err != nil {
			return err
		}
		rows, err := st.LoadStats(args[0])
		if err != nil {
			return err
		}
		if len(rows) < 2 {
			return fmt.Errorf("run %s has %d stats rows, nothing to plot", meta.ID, len(rows))
		}

		mass := make([][]float64, meta.Species)
		change := make([]float64, 0, len(rows))
		var locusX, locusY []float64
		for _, r := range rows {
			for k := range mass {
				if k < len(r.Mass) {
					mass[k] = append(mass[k], r.Mass[k])
				}
			}
			change = append(change, r.MaxChange)
			if len(r.Locus) > 0 {
				locusX = append(locusX, r.Locus[0])
			}
			if len(r.Locus) > 1 {
				locusY = append(locusY, r.Locus[1])
			}
		}

		fmt.Printf("%s  t=%.4f  %s\n\n", meta.ID, meta.Time, meta.Status)
		for k, series := range mass {
			fmt.Println(asciigraph.Plot(series,
				asciigraph.Height(8), asciigraph.Width(70),
				asciigraph.Caption("mass c"+strconv.Itoa(k+1))))
			fmt.Println()
		}
		fmt.Println(asciigraph.Plot(change,
			asciigraph.Height(8), asciigraph.Width(70),
			asciigraph.Caption("max change")))
		fmt.Println()
		if len(locusX) > 1 {
			data := [][]float64{locusX}
			if len(locusY) == len(locusX) {
				data = append(data, locusY)
			}
			fmt.Println(asciigraph.PlotMany(data,
				asciigraph.Height(8), asciigraph.Width(70),
				asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red),
				asciigraph.Caption("locus x (blue), y (red)")))
		}
		return nil
	},
}

var exportJSONCmd = &cobra.Command{
	Use:   "export-json [run-id]",
	Short: "write a run's metadata and stats as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		return st.ExportJSON(os.Stdout, args[0])
	},
}

var exportCSVCmd = &cobra.Command{
	Use:   "export-csv [run-id]",
	Short: "write one snapshot as cell-center, value rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(args[0])
		if err != nil {
			return err
		}
		m, t, values := snap.mesh, snap.t, snap.values

		w := csv.NewWriter(os.Stdout)
		header := []string{"x", "y"}
		if m.Dim() == 3 {
			header = append(header, "z")
		}
		header = append(header, "c"+strconv.Itoa(species))
		w.Write(header)
		for i, v := range values {
			row := make([]string, 0, len(header))
			for _, x := range m.Center(i) {
				row = append(row, strconv.FormatFloat(x, 'f', 6, 64))
			}
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			w.Write(row)
		}
		w.Flush()
		fmt.Fprintf(os.Stderr, "exported t=%.4f, %d cells\n", t, len(values))
		return w.Error()
	},
}

type snapshot struct {
	meta   *storage.RunMetadata
	mesh   *mesh.Mesh
	t      float64
	values []float64
}

// loadSnapshot reads the --species/--step record of a run and rebuilds its mesh.
func loadSnapshot(runID string) (*snapshot, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return nil, err
	}
	if meta.Config == nil {
		return nil, fmt.Errorf("run %s has no configuration", meta.ID)
	}
	if species < 1 || species > meta.Species {
		return nil, fmt.Errorf("species %d out of range 1..%d", species, meta.Species)
	}
	m, err := experiment.NewRegistry().GetMesh(meta.Config)
	if err != nil {
		return nil, err
	}

	s, err := st.OpenSeries(meta.ID, species-1)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if s.Len() == 0 {
		return nil, fmt.Errorf("run %s has no snapshots", meta.ID)
	}
	snap := &snapshot{meta: meta, mesh: m}
	if exportStep < 0 {
		_, snap.t, snap.values, err = s.Read(s.Len() - 1)
	} else {
		snap.t, snap.values, err = s.ReadStep(exportStep)
	}
	if err != nil {
		return nil, err
	}
	if len(snap.values) != m.NumCells() {
		return nil, fmt.Errorf("snapshot has %d cells, mesh has %d", len(snap.values), m.NumCells())
	}
	return snap, nil
}

var exportSVGCmd = &cobra.Command{
	Use:   "export-svg [run-id]",
	Short: "render one snapshot and the locus track as SVG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(args[0])
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		rows, err := st.LoadStats(snap.meta.ID)
		if err != nil {
			return err
		}
		var locus []float64
		track := make([][]float64, 0, len(rows))
		for _, r := range rows {
			if r.Time <= snap.t {
				locus = r.Locus
			}
			track = append(track, r.Locus)
		}

		out := svgOut
		if out == "" {
			out = snap.meta.ID + ".svg"
		}
		if err := os.WriteFile(out, []byte(export.SnapshotSVG(snap.mesh, snap.values, locus, svgScale)), 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (t=%.4f)\n", out, snap.t)

		if path := export.TrajectorySVG(track, 400, 400, "#ff3030"); path != "" {
			trackOut := strings.TrimSuffix(out, ".svg") + "_locus.svg"
			if err := os.WriteFile(trackOut, []byte(path), 0644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", trackOut)
		}
		return nil
	},
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "measure step throughput over a range of mesh sizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("steps") {
			base.TotalSteps = 20
		}

		printHost()
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DX\tCELLS\tSTEPS\tTIME\tSTEPS/SEC\tLINEAR ITERS")
		for _, scale := range []float64{2, 1, 0.5} {
			cfg := base.Clone()
			cfg.Dx = base.Dx * scale
			cfg.SaveEvery = cfg.TotalSteps

			e, err := experiment.New(cfg, experiment.Options{Logger: logger})
			if err != nil {
				return err
			}
			start := time.Now()
			result, err := e.Run(context.Background())
			elapsed := time.Since(start)
			e.Close()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%g\t%d\t%d\t%s\t%.1f\t%d\n",
				cfg.Dx, e.Mesh().NumCells(), result.Steps, elapsed.Round(time.Millisecond),
				float64(result.Steps)/elapsed.Seconds(), result.LinearIterations)
		}
		return w.Flush()
	},
}

func printHost() {
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		fmt.Printf("cpu:    %s\n", infos[0].ModelName)
	}
	if n, err := cpu.Counts(true); err == nil {
		fmt.Printf("cores:  %d logical, %d sweep workers by default\n", n, sim.DefaultWorkers)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Printf("memory: %.1f GiB total, %.1f GiB available\n",
			float64(vm.Total)/(1<<30), float64(vm.Available)/(1<<30))
	}
	if usage, err := disk.Usage(dataDir); err == nil {
		fmt.Printf("disk:   %.1f GiB free under %s\n", float64(usage.Free)/(1<<30), dataDir)
	}
}
