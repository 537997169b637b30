package main

import (
	"fmt"
	"io"
	"math"
	"time"

	"backtest-sweep/services/market"
)

const (
	statusPass = "PASS"
	statusWarn = "WARN"
	statusFail = "FAIL"
)

// AuditResult represents the result of an audit check
type AuditResult struct {
	CheckName string
	Status    string
	Message   string
	Details   map[string]any
	CheckedAt time.Time
}

func result(name, status, message string, details map[string]any) *AuditResult {
	if details == nil {
		details = map[string]any{}
	}
	return &AuditResult{CheckName: name, Status: status, Message: message, Details: details, CheckedAt: time.Now()}
}

// checkMissingBars counts bars missing between consecutive open times.
func checkMissingBars(s *market.BarSeries) (*AuditResult, error) {
	step, err := s.Timeframe.Duration()
	if err != nil {
		return nil, err
	}
	stepMs := step.Milliseconds()
	gaps := market.DetectGaps(s.Time, stepMs)

	missing := int64(0)
	for i := 1; i < s.Len(); i++ {
		if d := s.Time[i] - s.Time[i-1]; d > stepMs {
			missing += d/stepMs - 1
		}
	}
	name := "missing_bars_" + string(s.Timeframe)
	if missing == 0 {
		return result(name, statusPass, "No missing bars found", nil), nil
	}
	details := map[string]any{"missing_count": missing, "gap_count": len(gaps)}
	if len(gaps) > 0 {
		details["first_gap_ms"] = gaps[0]
	}
	return result(name, statusFail, fmt.Sprintf("Found %d missing bars in %d gaps", missing, len(gaps)), details), nil
}

// checkAnomalies flags bars whose prices are not finite and positive or
// whose high/low do not bound open and close. Zero volume only warns.
func checkAnomalies(s *market.BarSeries) *AuditResult {
	var invalidPrice, badRange, zeroVolume int
	for i := 0; i < s.Len(); i++ {
		o, h, l, c := s.Open[i], s.High[i], s.Low[i], s.Close[i]
		if !positive(o) || !positive(h) || !positive(l) || !positive(c) {
			invalidPrice++
			continue
		}
		if h < math.Max(o, c) || l > math.Min(o, c) {
			badRange++
		}
		if s.Volume[i] <= 0 {
			zeroVolume++
		}
	}

	name := "anomalies_" + string(s.Timeframe)
	details := map[string]any{
		"invalid_price": invalidPrice,
		"bad_range":     badRange,
		"zero_volume":   zeroVolume,
	}
	switch {
	case invalidPrice+badRange > 0:
		return result(name, statusFail, fmt.Sprintf("Found %d critical anomalies", invalidPrice+badRange), details)
	case zeroVolume > 0:
		return result(name, statusWarn, fmt.Sprintf("Found %d bars without volume", zeroVolume), details)
	}
	return result(name, statusPass, "No anomalies found", details)
}

func positive(v float64) bool { return v > 0 && !math.IsInf(v, 0) }

// checkFreshness warns when the last bar closed more than maxAge before now.
func checkFreshness(s *market.BarSeries, now time.Time, maxAge time.Duration) (*AuditResult, error) {
	step, err := s.Timeframe.Duration()
	if err != nil {
		return nil, err
	}
	lastClose := time.UnixMilli(s.Time[s.Len()-1]).Add(step)
	age := now.Sub(lastClose)
	details := map[string]any{"last_close": lastClose.UTC().Format(time.RFC3339), "age": age.Round(time.Second).String()}

	name := "freshness_" + string(s.Timeframe)
	if age > maxAge {
		return result(name, statusWarn, fmt.Sprintf("Data is %s old", age.Round(time.Minute)), details), nil
	}
	return result(name, statusPass, "Data is fresh", details), nil
}

// checkResampleParity rebuilds every higher frame from the base frame and
// compares OHLCV at shared open times.
func checkResampleParity(frames market.Frames, tol float64) []*AuditResult {
	var out []*AuditResult
	for k := 1; k < len(frames); k++ {
		stored := frames[k]
		name := "parity_" + string(stored.Timeframe)
		derived, err := market.Resample(frames.Base(), stored.Timeframe)
		if err != nil {
			out = append(out, result(name, statusFail, fmt.Sprintf("Resample failed: %v", err), nil))
			continue
		}

		byTime := make(map[int64]int, derived.Len())
		for i, ts := range derived.Time {
			byTime[ts] = i
		}
		var checked, mismatched int
		maxDiff := 0.0
		for i, ts := range stored.Time {
			j, ok := byTime[ts]
			if !ok {
				continue
			}
			checked++
			diff := 0.0
			for _, pair := range [][2]float64{
				{stored.Open[i], derived.Open[j]},
				{stored.High[i], derived.High[j]},
				{stored.Low[i], derived.Low[j]},
				{stored.Close[i], derived.Close[j]},
				{stored.Volume[i], derived.Volume[j]},
			} {
				diff = math.Max(diff, math.Abs(pair[0]-pair[1]))
			}
			maxDiff = math.Max(maxDiff, diff)
			if diff > tol {
				mismatched++
			}
		}

		details := map[string]any{"checked": checked, "mismatched": mismatched, "max_diff": maxDiff}
		switch {
		case checked == 0:
			out = append(out, result(name, statusWarn, "No overlapping bars to compare", details))
		case mismatched > 0:
			out = append(out, result(name, statusFail, fmt.Sprintf("%d of %d bars differ from the resampled base", mismatched, checked), details))
		default:
			out = append(out, result(name, statusPass, fmt.Sprintf("All %d bars match the resampled base", checked), details))
		}
	}
	return out
}

// checkAlignment reports how many leading base bars are unusable because a
// higher timeframe has not closed a bar yet.
func checkAlignment(frames market.Frames, maxUnusable float64) *AuditResult {
	const name = "alignment"
	if len(frames) < 2 {
		return result(name, statusPass, "Single timeframe", nil)
	}
	m, err := market.BuildMapping(frames)
	if err != nil {
		return result(name, statusFail, fmt.Sprintf("Mapping failed: %v", err), nil)
	}
	unusable := 0
	for i := range m.Skip {
		if !m.Usable(i) {
			unusable++
		}
	}
	frac := float64(unusable) / float64(len(m.Skip))
	details := map[string]any{"unusable_bars": unusable, "unusable_fraction": frac}
	if frac > maxUnusable {
		return result(name, statusWarn, fmt.Sprintf("%d base bars precede the first closed higher-timeframe bar", unusable), details)
	}
	return result(name, statusPass, "Higher timeframes cover the base series", details)
}

func countStatus(results []*AuditResult) (pass, warn, fail int) {
	for _, r := range results {
		switch r.Status {
		case statusPass:
			pass++
		case statusWarn:
			warn++
		case statusFail:
			fail++
		}
	}
	return pass, warn, fail
}

// writeReport renders a plain-text audit report.
func writeReport(w io.Writer, symbol string, results []*AuditResult) error {
	pass, warn, fail := countStatus(results)
	fmt.Fprintf(w, "Data Quality Audit Report\n")
	fmt.Fprintf(w, "Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Symbol: %s\n\n", symbol)
	fmt.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  Total checks: %d\n", len(results))
	fmt.Fprintf(w, "  Passed: %d\n", pass)
	fmt.Fprintf(w, "  Warnings: %d\n", warn)
	fmt.Fprintf(w, "  Failed: %d\n\n", fail)

	for _, r := range results {
		fmt.Fprintf(w, "Check: %s\n", r.CheckName)
		fmt.Fprintf(w, "Status: %s\n", r.Status)
		fmt.Fprintf(w, "Message: %s\n", r.Message)
		for _, k := range sortedKeys(r.Details) {
			fmt.Fprintf(w, "  %s: %v\n", k, r.Details[k])
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
