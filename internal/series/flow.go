package series

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/silolab/avalanche/internal/avalanche"
)

// Normalized names of the flow columns
const (
	ColumnTime          = "time"
	ColumnCount         = "noptotal"
	ColumnOriginalCount = "noporiginaltotal"
)

// Delimiters are tried in order; the first whose header carries every
// required column wins.
var splitters = []func(data []byte) ([][]string, error){
	csvSplitter(','),
	csvSplitter(';'),
	csvSplitter('\t'),
	splitWhitespace,
}

// csvSplitter parses each line as one record. Lines that do not parse are
// dropped like any other bad row.
func csvSplitter(comma rune) func([]byte) ([][]string, error) {
	return func(data []byte) ([][]string, error) {
		var rows [][]string
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSuffix(scanner.Text(), "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			r := csv.NewReader(strings.NewReader(line))
			r.Comma = comma
			r.FieldsPerRecord = -1
			r.TrimLeadingSpace = true
			record, err := r.Read()
			if err != nil {
				var perr *csv.ParseError
				if errors.As(err, &perr) {
					continue
				}
				return nil, err
			}
			rows = append(rows, record)
		}
		return rows, scanner.Err()
	}
}

func splitWhitespace(data []byte) ([][]string, error) {
	var rows [][]string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		rows = append(rows, fields)
	}
	return rows, scanner.Err()
}

// NormalizeHeader lowercases a column name and strips all whitespace
func NormalizeHeader(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '\ufeff':
			return -1
		}
		return r
	}, strings.ToLower(name))
}

type columns struct {
	time, count, original int
}

func findColumns(header []string) (columns, bool) {
	c := columns{-1, -1, -1}
	for i, h := range header {
		switch NormalizeHeader(h) {
		case ColumnTime:
			if c.time < 0 {
				c.time = i
			}
		case ColumnCount:
			if c.count < 0 {
				c.count = i
			}
		case ColumnOriginalCount:
			if c.original < 0 {
				c.original = i
			}
		}
	}
	return c, c.time >= 0 && c.count >= 0 && c.original >= 0
}

// LoadFlow reads a flow table with Time, NoPTotal and NoPOriginalTotal
// columns. Rows with missing, non-numeric or non-finite values are dropped
// and the samples are stably sorted by time.
func LoadFlow(r io.Reader) ([]avalanche.Sample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &FormatError{Err: fmt.Errorf("%w: %v", ErrUnreadable, err)}
	}

	var header []string
	for _, split := range splitters {
		rows, err := split(data)
		if err != nil || len(rows) == 0 {
			continue
		}
		if header == nil {
			header = rows[0]
		}
		cols, ok := findColumns(rows[0])
		if !ok {
			continue
		}
		return samplesFrom(rows[1:], cols)
	}

	return nil, &FormatError{Err: fmt.Errorf("%w: need Time, NoPTotal, NoPOriginalTotal, found %q",
		ErrMissingColumns, header)}
}

func samplesFrom(rows [][]string, cols columns) ([]avalanche.Sample, error) {
	samples := make([]avalanche.Sample, 0, len(rows))
	for _, row := range rows {
		t, ok1 := field(row, cols.time)
		c, ok2 := field(row, cols.count)
		o, ok3 := field(row, cols.original)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		samples = append(samples, avalanche.Sample{Time: t, Count: c, OriginalCount: o})
	}
	if len(samples) == 0 {
		return nil, &FormatError{Err: ErrNoRows}
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Time < samples[j].Time
	})
	return samples, nil
}

func field(row []string, i int) (float64, bool) {
	if i >= len(row) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// LoadFlowFile opens path (optionally compressed) and loads it with LoadFlow
func LoadFlowFile(path string) ([]avalanche.Sample, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	samples, err := LoadFlow(rc)
	return samples, withPath(err, path)
}

func withPath(err error, path string) error {
	if err == nil {
		return nil
	}
	var fe *FormatError
	if errors.As(err, &fe) {
		if fe.Path == "" {
			fe.Path = path
		}
		return err
	}
	return &FormatError{Path: path, Err: err}
}
