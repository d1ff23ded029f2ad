// Package benchreport renders a backup benchmark results document as a markdown report.
package benchreport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

type Results struct {
	Profile    string      `json:"profile"`
	DataSizeMB json.Number `json:"data_size_mb"`
	Iterations json.Number `json:"iterations"`
	Scenarios  Scenarios   `json:"scenarios"`
}

type Scenarios struct {
	Throughput           Throughput               `json:"throughput"`
	Compression          map[string]Codec         `json:"compression"`
	Latency              map[string]float64       `json:"latency"`
	LargeMessages        map[string]LargeMessage  `json:"large-messages"`
	ConcurrentPartitions map[string]PartitionRate `json:"concurrent-partitions"`
}

type Rates struct {
	BackupMBps  float64 `json:"backup_mbps"`
	RestoreMBps float64 `json:"restore_mbps"`
	DurationS   float64 `json:"duration_s"`
}

// Throughput holds the overall rates plus optional partitions_N breakdowns.
type Throughput struct {
	Rates
	ByPartitions map[int]Rates
	keys         int
}

func (t Throughput) Empty() bool { return t.keys == 0 }

func (t *Throughput) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(b, &t.Rates); err != nil {
		return err
	}
	t.keys = len(raw)
	t.ByPartitions = map[int]Rates{}
	for k, v := range raw {
		n, ok := strings.CutPrefix(k, "partitions_")
		if !ok {
			continue
		}
		p, err := strconv.Atoi(n)
		if err != nil {
			continue
		}
		var r Rates
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("throughput.%s: %w", k, err)
		}
		t.ByPartitions[p] = r
	}
	return nil
}

type Codec struct {
	Ratio        *float64 `json:"ratio"`
	DurationS    float64  `json:"duration_s"`
	CompressedMB float64  `json:"compressed_mb"`
}

type LargeMessage struct {
	Count       int     `json:"count"`
	BackupMBps  float64 `json:"backup_mbps"`
	RestoreMBps float64 `json:"restore_mbps"`
}

type PartitionRate struct {
	BackupMBps *float64 `json:"backup_mbps"`
}

// Placeholder is rendered when no results file exists yet.
func Placeholder() Results {
	return Results{
		Profile:    "quick",
		DataSizeMB: "100",
		Iterations: "1",
		Scenarios: Scenarios{
			Throughput:  Throughput{keys: 3, ByPartitions: map[int]Rates{}},
			Compression: map[string]Codec{},
			Latency:     map[string]float64{},
		},
	}
}

// Load reads a results document, falling back to Placeholder when path does not exist.
func Load(path string) (Results, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Placeholder(), nil
	}
	if err != nil {
		return Results{}, err
	}
	var res Results
	if err := json.Unmarshal(raw, &res); err != nil {
		return Results{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return res, nil
}
