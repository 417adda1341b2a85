package storage

import (
	"encoding/json"
	"io"
)

type ExportData struct {
	Run       RunMetadata `json:"run"`
	Steps     []int       `json:"steps"`
	Times     []float64   `json:"times"`
	Dt        []float64   `json:"dt"`
	Mass      [][]float64 `json:"mass"`
	MaxChange []float64   `json:"max_change"`
	Residual  []float64   `json:"residual"`
	Locus     [][]float64 `json:"locus"`
}

// ExportJSON writes a run's metadata and stats time series to w.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	rows, err := s.LoadStats(runID)
	if err != nil {
		return err
	}

	data := ExportData{
		Run:       *meta,
		Steps:     make([]int, len(rows)),
		Times:     make([]float64, len(rows)),
		Dt:        make([]float64, len(rows)),
		Mass:      make([][]float64, len(rows)),
		MaxChange: make([]float64, len(rows)),
		Residual:  make([]float64, len(rows)),
		Locus:     make([][]float64, len(rows)),
	}
	for i, r := range rows {
		data.Steps[i] = r.Step
		data.Times[i] = r.Time
		data.Dt[i] = r.Dt
		data.Mass[i] = r.Mass
		data.MaxChange[i] = r.MaxChange
		data.Residual[i] = r.Residual
		data.Locus[i] = r.Locus
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
