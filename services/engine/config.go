package engine

// Run manifest with full reproducibility

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"backtest-sweep/services/market"
)

// EngineVersion is stamped into every manifest.
const EngineVersion = "sweep-1.0.0"

// Manifest identifies a sweep well enough to reproduce it: the same data
// checksum and config hash give bit-identical results.
type Manifest struct {
	JobID         string `json:"job_id"`
	EngineVersion string `json:"engine_version"`
	ConfigHash    string `json:"config_hash"`
	DataChecksum  string `json:"data_checksum"`
	Workers       int    `json:"workers"`
	Mode          Mode   `json:"mode"`
	Combinations  int    `json:"combinations"`
	Bars          int    `json:"bars"`
	CreatedAt     int64  `json:"created_at"`
}

// NewManifest hashes the combinations and the bar data of a run.
func NewManifest(jobID string, cfg Config, frames market.Frames, combos []Combination) (*Manifest, error) {
	configBytes, err := json.Marshal(combos)
	if err != nil {
		return nil, fmt.Errorf("failed to encode combinations: %w", err)
	}

	m := &Manifest{
		JobID:         jobID,
		EngineVersion: EngineVersion,
		ConfigHash:    fmt.Sprintf("%x", sha256.Sum256(configBytes)),
		DataChecksum:  DataChecksum(frames),
		Workers:       cfg.Workers,
		Mode:          cfg.Mode,
		Combinations:  len(combos),
		CreatedAt:     time.Now().UnixMilli(),
	}
	if len(frames) > 0 && frames.Base() != nil {
		m.Bars = frames.Base().Len()
	}
	return m, nil
}

// DataChecksum is a sha256 over every timeframe's timestamps and OHLCV
// values in order.
func DataChecksum(frames market.Frames) string {
	h := sha256.New()
	var buf [8]byte
	put := func(u uint64) {
		binary.LittleEndian.PutUint64(buf[:], u)
		h.Write(buf[:])
	}
	for _, f := range frames {
		if f == nil {
			continue
		}
		h.Write([]byte(f.Timeframe))
		for i := 0; i < f.Len(); i++ {
			put(uint64(f.Time[i]))
			for _, col := range [][]float64{f.Open, f.High, f.Low, f.Close, f.Volume} {
				put(math.Float64bits(col[i]))
			}
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
