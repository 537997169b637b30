package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// reference maps bar open time (ms) to column values. Empty cells are
// absent from the inner map.
type reference map[int64]map[string]float64

type diffRow struct {
	Time   int64
	Column string
	Value  float64
	Ref    float64
	Diff   float64
	Match  bool
}

type columnSummary struct {
	Column     string
	Compared   int
	Mismatches int
	MaxDiff    float64
}

var timeColumns = map[string]bool{"open_time_ms": true, "time": true, "timestamp": true}

func readReference(r io.Reader) (reference, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read reference header: %w", err)
	}
	idxTime := -1
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if timeColumns[names[i]] && idxTime < 0 {
			idxTime = i
		}
	}
	if idxTime < 0 {
		return nil, fmt.Errorf("reference has no time column (one of open_time_ms, time, timestamp)")
	}

	ref := make(reference)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reference line %d: %w", line, err)
		}
		if idxTime >= len(rec) {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(rec[idxTime]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("reference line %d: bad time %q", line, rec[idxTime])
		}
		if ts < 100_000_000_000 {
			ts *= 1000
		}
		vals := make(map[string]float64)
		for i, cell := range rec {
			cell = strings.TrimSpace(cell)
			if i == idxTime || cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("reference line %d column %s: %w", line, names[i], err)
			}
			vals[names[i]] = v
		}
		ref[ts] = vals
	}
	return ref, nil
}

// compare checks every computed column the reference also carries. Two NaN
// values match; a NaN against a number does not.
func compare(times []int64, cols map[string][]float64, ref reference, tol float64) ([]diffRow, []columnSummary) {
	byCol := make(map[string]*columnSummary)
	var rows []diffRow
	for i, ts := range times {
		vals, ok := ref[ts]
		if !ok {
			continue
		}
		for _, name := range columnNames(cols) {
			want, ok := vals[name]
			if !ok {
				continue
			}
			got := cols[name][i]
			d := math.Abs(got - want)
			match := d <= tol
			if math.IsNaN(got) || math.IsNaN(want) {
				match = math.IsNaN(got) && math.IsNaN(want)
				d = math.NaN()
			}
			rows = append(rows, diffRow{Time: ts, Column: name, Value: got, Ref: want, Diff: d, Match: match})

			s := byCol[name]
			if s == nil {
				s = &columnSummary{Column: name}
				byCol[name] = s
			}
			s.Compared++
			if !match {
				s.Mismatches++
			}
			if !math.IsNaN(d) && d > s.MaxDiff {
				s.MaxDiff = d
			}
		}
	}

	summary := make([]columnSummary, 0, len(byCol))
	for _, s := range byCol {
		summary = append(summary, *s)
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].Column < summary[j].Column })
	return rows, summary
}

func columnNames(cols map[string][]float64) []string {
	names := make([]string, 0, len(cols))
	for k := range cols {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func writeDiffs(w io.Writer, rows []diffRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"open_time_ms", "column", "value", "reference", "diff", "match"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatInt(r.Time, 10),
			r.Column,
			strconv.FormatFloat(r.Value, 'f', 10, 64),
			strconv.FormatFloat(r.Ref, 'f', 10, 64),
			strconv.FormatFloat(r.Diff, 'f', 10, 64),
			strconv.FormatBool(r.Match),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
