package market

import (
	"fmt"
	"sort"
)

// DataMapping maps every base-timeframe bar to the last bar of each higher
// timeframe that has closed by the time the base bar closes. Bar times are
// open times; a bar closes one timeframe duration later. Skip is 0 on base
// bars for which some higher timeframe has no closed bar yet.
type DataMapping struct {
	Index map[string][]int
	Skip  []int8
}

// MappingKey is the Index key of frame k (k >= 1).
func MappingKey(k int) string { return fmt.Sprintf("mtf_%d", k) }

// BuildMapping aligns frames[1:] to frames[0]. Every frame needs a known
// timeframe since close times are derived from it.
func BuildMapping(frames Frames) (*DataMapping, error) {
	if err := frames.Validate(); err != nil {
		return nil, err
	}
	baseDur, err := frames.Base().Timeframe.Duration()
	if err != nil {
		return nil, fmt.Errorf("base timeframe: %w", err)
	}

	base := frames.Base().Time
	m := &DataMapping{
		Index: make(map[string][]int, len(frames)-1),
		Skip:  make([]int8, len(base)),
	}
	for i := range m.Skip {
		m.Skip[i] = 1
	}

	for k := 1; k < len(frames); k++ {
		dur, err := frames[k].Timeframe.Duration()
		if err != nil {
			return nil, fmt.Errorf("timeframe %d: %w", k, err)
		}
		// htf bar j is closed at base bar i when htf[j]+dur <= base[i]+baseDur
		shift := dur.Milliseconds() - baseDur.Milliseconds()
		htf := frames[k].Time
		idx := make([]int, len(base))
		for i, ts := range base {
			j := sort.Search(len(htf), func(j int) bool { return htf[j]+shift > ts }) - 1
			idx[i] = j
			if j < 0 {
				m.Skip[i] = 0
			}
		}
		m.Index[MappingKey(k)] = idx
	}
	return m, nil
}

// Lookup returns the mapped index of bar i in frame k and whether it is usable.
func (m *DataMapping) Lookup(k, i int) (int, bool) {
	idx, ok := m.Index[MappingKey(k)]
	if !ok || i >= len(idx) || idx[i] < 0 {
		return -1, false
	}
	return idx[i], true
}

// Usable reports whether every higher timeframe has produced a bar by base bar i.
func (m *DataMapping) Usable(i int) bool {
	return m == nil || i >= len(m.Skip) || m.Skip[i] != 0
}
