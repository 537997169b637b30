package market

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// secondsCutoff separates second from millisecond timestamps: anything
// below it is taken as seconds.
const secondsCutoff = 100_000_000_000

type csvBar struct {
	ts                             int64
	open, high, low, close, volume float64
}

// LoadCSV reads a timestamp,open,high,low,close[,volume] file.
func LoadCSV(path string, tf Timeframe) (*BarSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	s, err := ReadCSV(f, tf)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s, nil
}

// ReadCSV accepts UTF-8 or BOM-prefixed UTF-16 input, an optional header
// row and second or millisecond timestamps. Rows are sorted by time and
// duplicate timestamps keep the last row.
func ReadCSV(r io.Reader, tf Timeframe) (*BarSeries, error) {
	br := bufio.NewReader(r)
	if b, _ := br.Peek(2); len(b) == 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		tr := transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
		br = bufio.NewReader(tr)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var bars []csvBar
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < 5 {
			continue
		}
		first := strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff"))
		ts, err := strconv.ParseInt(first, 10, 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: bad timestamp %q", line, rec[0])
		}
		if ts < secondsCutoff {
			ts *= 1000
		}

		b := csvBar{ts: ts}
		fields := []*float64{&b.open, &b.high, &b.low, &b.close, &b.volume}
		for j, dst := range fields {
			if j+1 >= len(rec) {
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(rec[j+1], `"`)), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, j+2, err)
			}
			*dst = v
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, ErrEmptySeries
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].ts < bars[j].ts })

	n := 0
	for i := range bars {
		if n > 0 && bars[n-1].ts == bars[i].ts {
			bars[n-1] = bars[i]
			continue
		}
		bars[n] = bars[i]
		n++
	}
	bars = bars[:n]

	times := make([]int64, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	close := make([]float64, n)
	volume := make([]float64, n)
	for i, b := range bars {
		times[i], open[i], high[i], low[i], close[i], volume[i] = b.ts, b.open, b.high, b.low, b.close, b.volume
	}
	return NewBarSeries(tf, times, open, high, low, close, volume)
}

// WriteCSV writes s with a header row, prices as exact decimal strings.
func WriteCSV(w io.Writer, s *BarSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp_ms", "open", "high", "low", "close", "volume"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := 0; i < s.Len(); i++ {
		rec := []string{
			strconv.FormatInt(s.Time[i], 10),
			decimal.NewFromFloat(s.Open[i]).String(),
			decimal.NewFromFloat(s.High[i]).String(),
			decimal.NewFromFloat(s.Low[i]).String(),
			decimal.NewFromFloat(s.Close[i]).String(),
			decimal.NewFromFloat(s.Volume[i]).String(),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write bar %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
