package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/condensim/internal/config"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Timestamp time.Time          `json:"timestamp"`
	Finished  time.Time          `json:"finished,omitempty"`
	Species   int                `json:"species"`
	Cells     int                `json:"cells"`
	Steps     int                `json:"steps"`
	Time      float64            `json:"time"`
	Status    string             `json:"status"`
	Config    *config.Config     `json:"config"`
	Metrics   map[string]float64 `json:"metrics"`
}

// StatsRow is one line of stats.csv.
type StatsRow struct {
	Step      int
	Time      float64
	Dt        float64
	Mass      []float64
	MaxChange float64
	Residual  float64
	Converged bool
	Locus     []float64
}

// Run is an open run directory receiving stats rows and snapshots.
type Run struct {
	ID   string
	dir  string
	meta RunMetadata

	statsFile *os.File
	stats     *csv.Writer
	series    []*Series
}

// NewRunID builds "<name>_<uuid prefix>".
func NewRunID(name string) string {
	return fmt.Sprintf("%s_%s", name, uuid.NewString()[:8])
}

// Create opens a new run directory for species fields of cells values.
func (s *Store) Create(name string, cfg *config.Config, species, cells int) (*Run, error) {
	runID := NewRunID(name)
	dir := s.Dir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	r := &Run{
		ID:  runID,
		dir: dir,
		meta: RunMetadata{
			ID:        runID,
			Name:      name,
			Timestamp: time.Now(),
			Species:   species,
			Cells:     cells,
			Status:    "running",
			Config:    cfg,
			Metrics:   map[string]float64{},
		},
	}
	if err := r.writeMetadata(); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(dir, "stats.csv"))
	if err != nil {
		return nil, err
	}
	r.statsFile = f
	r.stats = csv.NewWriter(f)
	header := []string{"step", "time", "dt"}
	for k := 1; k <= species; k++ {
		header = append(header, fmt.Sprintf("mass_c%d", k))
	}
	header = append(header, "max_change", "residual", "converged")
	dim := 2
	if cfg != nil {
		dim = cfg.Dimension
	}
	for d := 0; d < dim; d++ {
		header = append(header, fmt.Sprintf("locus_x%d", d))
	}
	if err := r.stats.Write(header); err != nil {
		r.Close("failed", nil)
		return nil, err
	}

	for k := 1; k <= species; k++ {
		ser, err := CreateSeries(r.SeriesPath(k), cells)
		if err != nil {
			r.Close("failed", nil)
			return nil, err
		}
		r.series = append(r.series, ser)
	}
	return r, nil
}

func (r *Run) Dir() string { return r.dir }

// SeriesPath is the snapshot file of species k (1-based).
func (r *Run) SeriesPath(k int) string {
	return seriesPath(r.dir, k)
}

func seriesPath(dir string, k int) string {
	return filepath.Join(dir, fmt.Sprintf("c%d.bin", k))
}

func (r *Run) WriteStats(row StatsRow) error {
	rec := []string{
		strconv.Itoa(row.Step),
		formatFloat(row.Time),
		formatFloat(row.Dt),
	}
	for _, m := range row.Mass {
		rec = append(rec, formatFloat(m))
	}
	rec = append(rec, formatFloat(row.MaxChange), formatFloat(row.Residual), strconv.FormatBool(row.Converged))
	for _, x := range row.Locus {
		rec = append(rec, formatFloat(x))
	}
	if err := r.stats.Write(rec); err != nil {
		return err
	}
	r.meta.Steps = row.Step
	r.meta.Time = row.Time
	return nil
}

// WriteSnapshot appends one record per species.
func (r *Run) WriteSnapshot(step int, t float64, fields [][]float64) error {
	if len(fields) != len(r.series) {
		return fmt.Errorf("snapshot has %d species, run has %d", len(fields), len(r.series))
	}
	for k, values := range fields {
		if err := r.series[k].Append(step, t, values); err != nil {
			return err
		}
	}
	r.stats.Flush()
	return r.stats.Error()
}

// Close flushes everything and finalizes metadata.json with status and metrics.
func (r *Run) Close(status string, metrics map[string]float64) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.stats != nil {
		r.stats.Flush()
		keep(r.stats.Error())
	}
	if r.statsFile != nil {
		keep(r.statsFile.Close())
	}
	for _, s := range r.series {
		keep(s.Close())
	}
	r.meta.Status = status
	r.meta.Finished = time.Now()
	for k, v := range metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		r.meta.Metrics[k] = v
	}
	keep(r.writeMetadata())
	return firstErr
}

func (r *Run) writeMetadata() error {
	f, err := os.Create(filepath.Join(r.dir, "metadata.json"))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(r.meta)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadStats(runID string) ([]StatsRow, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(s.Dir(runID), "stats.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []StatsRow{}, nil
	}

	species := meta.Species
	rows := make([]StatsRow, 0, len(records)-1)
	for n, rec := range records[1:] {
		row, err := parseStatsRow(rec, species)
		if err != nil {
			return nil, fmt.Errorf("%s stats.csv line %d: %w", runID, n+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseStatsRow(rec []string, species int) (StatsRow, error) {
	var row StatsRow
	if len(rec) < 6+species {
		return row, fmt.Errorf("%d fields, want at least %d", len(rec), 6+species)
	}
	p := fieldParser{rec: rec}
	row.Step = p.intAt(0)
	row.Time = p.floatAt(1)
	row.Dt = p.floatAt(2)
	for k := 0; k < species; k++ {
		row.Mass = append(row.Mass, p.floatAt(3+k))
	}
	row.MaxChange = p.floatAt(3 + species)
	row.Residual = p.floatAt(4 + species)
	row.Converged = p.boolAt(5 + species)
	for col := 6 + species; col < len(rec); col++ {
		row.Locus = append(row.Locus, p.floatAt(col))
	}
	return row, p.err
}

// fieldParser keeps the first conversion error of a record.
type fieldParser struct {
	rec []string
	err error
}

func (p *fieldParser) fail(col int, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("column %d: %w", col+1, err)
	}
}

func (p *fieldParser) intAt(col int) int {
	v, err := strconv.Atoi(p.rec[col])
	if err != nil {
		p.fail(col, err)
	}
	return v
}

func (p *fieldParser) floatAt(col int) float64 {
	v, err := strconv.ParseFloat(p.rec[col], 64)
	if err != nil {
		p.fail(col, err)
	}
	return v
}

func (p *fieldParser) boolAt(col int) bool {
	v, err := strconv.ParseBool(p.rec[col])
	if err != nil {
		p.fail(col, err)
	}
	return v
}

// OpenSeries opens the stored snapshots of species k (1-based).
func (s *Store) OpenSeries(runID string, k int) (*Series, error) {
	return OpenSeries(seriesPath(s.Dir(runID), k))
}
