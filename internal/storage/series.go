package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
)

const (
	seriesMagic   = "CSER"
	seriesVersion = 1
	headerSize    = 12
)

var ErrRecordNotFound = errors.New("storage: record not found")

// Series is an append-only file of fixed-size per-step snapshots. Each
// record is the step index, the time and one float64 per cell, little
// endian. Step and time columns are mirrored in memory.
type Series struct {
	mu    sync.Mutex
	f     *os.File
	cells int
	steps []int
	times []float64
	buf   []byte
}

// CreateSeries truncates path and writes a header for cells values per record.
func CreateSeries(path string, cells int) (*Series, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	header := make([]byte, headerSize)
	copy(header, seriesMagic)
	binary.LittleEndian.PutUint32(header[4:], seriesVersion)
	binary.LittleEndian.PutUint32(header[8:], uint32(cells))
	if _, err := f.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &Series{f: f, cells: cells, buf: make([]byte, recordSize(cells))}, nil
}

// OpenSeries opens an existing series for reading and further appends.
func OpenSeries(path string) (*Series, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("read series header: %w", err)
	}
	if string(header[:4]) != seriesMagic {
		f.Close()
		return nil, fmt.Errorf("%s is not a snapshot series", path)
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != seriesVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported series version %d", v)
	}
	s := &Series{f: f, cells: int(binary.LittleEndian.Uint32(header[8:]))}
	s.buf = make([]byte, recordSize(s.cells))

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	n := int((info.Size() - headerSize) / int64(len(s.buf)))
	for i := 0; i < n; i++ {
		if _, err := f.ReadAt(s.buf[:16], offset(i, s.cells)); err != nil {
			f.Close()
			return nil, err
		}
		s.steps = append(s.steps, int(int64(binary.LittleEndian.Uint64(s.buf[0:]))))
		s.times = append(s.times, math.Float64frombits(binary.LittleEndian.Uint64(s.buf[8:])))
	}
	return s, nil
}

func recordSize(cells int) int { return 16 + 8*cells }

func offset(i, cells int) int64 {
	return headerSize + int64(i)*int64(recordSize(cells))
}

func (s *Series) Cells() int { return s.cells }

func (s *Series) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.times)
}

// Times returns a copy of the recorded times.
func (s *Series) Times() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.times...)
}

// Steps returns a copy of the recorded step indices.
func (s *Series) Steps() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.steps...)
}

func (s *Series) Append(step int, t float64, values []float64) error {
	if len(values) != s.cells {
		return fmt.Errorf("series record has %d values, want %d", len(values), s.cells)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	binary.LittleEndian.PutUint64(s.buf[0:], uint64(int64(step)))
	binary.LittleEndian.PutUint64(s.buf[8:], math.Float64bits(t))
	for i, v := range values {
		binary.LittleEndian.PutUint64(s.buf[16+8*i:], math.Float64bits(v))
	}
	if _, err := s.f.WriteAt(s.buf, offset(len(s.times), s.cells)); err != nil {
		return err
	}
	s.steps = append(s.steps, step)
	s.times = append(s.times, t)
	return nil
}

// Truncate drops every record from index n on.
func (s *Series) Truncate(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 0 || n > len(s.times) {
		return fmt.Errorf("truncate to %d of %d: %w", n, len(s.times), ErrRecordNotFound)
	}
	if err := s.f.Truncate(offset(n, s.cells)); err != nil {
		return err
	}
	s.steps = s.steps[:n]
	s.times = s.times[:n]
	return nil
}

// Read returns the i-th record. It blocks on the file read.
func (s *Series) Read(i int) (step int, t float64, values []float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.times) {
		return 0, 0, nil, fmt.Errorf("record %d of %d: %w", i, len(s.times), ErrRecordNotFound)
	}
	if _, err := s.f.ReadAt(s.buf, offset(i, s.cells)); err != nil {
		return 0, 0, nil, err
	}
	values = make([]float64, s.cells)
	for k := range values {
		values[k] = math.Float64frombits(binary.LittleEndian.Uint64(s.buf[16+8*k:]))
	}
	return s.steps[i], s.times[i], values, nil
}

// ReadStep returns the last record written for step.
func (s *Series) ReadStep(step int) (float64, []float64, error) {
	s.mu.Lock()
	idx := -1
	for i := len(s.steps) - 1; i >= 0; i-- {
		if s.steps[i] == step {
			idx = i
			break
		}
	}
	s.mu.Unlock()
	if idx < 0 {
		return 0, nil, fmt.Errorf("step %d: %w", step, ErrRecordNotFound)
	}
	_, t, values, err := s.Read(idx)
	return t, values, err
}

func (s *Series) Sync() error  { return s.f.Sync() }
func (s *Series) Close() error { return s.f.Close() }
