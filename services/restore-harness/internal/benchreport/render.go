package benchreport

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	targetBackupMBps    = 100
	targetZstdRatio     = 3
	targetCheckpointP99 = 100
)

// Render builds the markdown report. now stamps the header.
func Render(res Results, now time.Time) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	profile := res.Profile
	if profile == "" {
		profile = "unknown"
	}
	size, iterations := string(res.DataSizeMB), string(res.Iterations)
	if size == "" {
		size = "0"
	}
	if iterations == "" {
		iterations = "1"
	}

	line("# kafka-backup Benchmark Results")
	line("")
	line("**Date:** %s", now.Format("2006-01-02 15:04:05"))
	line("**Profile:** %s (%sMB, %s iterations)", profile, size, iterations)
	line("")

	sc := res.Scenarios
	line("## Summary")
	line("")
	line("| Metric | Result | Target | Status |")
	line("|--------|--------|--------|--------|")
	if !sc.Throughput.Empty() {
		v := sc.Throughput.BackupMBps
		line("| Throughput (Backup) | %.1f MB/s | 100 MB/s | %s |", v, status(v >= targetBackupMBps))
	}
	if len(sc.Compression) > 0 {
		ratio := 0.0
		if z, ok := sc.Compression["zstd"]; ok && z.Ratio != nil {
			ratio = *z.Ratio
		}
		line("| Compression Ratio | %.1fx | 3-5x | %s |", ratio, status(ratio >= targetZstdRatio))
	}
	if len(sc.Latency) > 0 {
		p99 := sc.Latency["checkpoint_p99_ms"]
		line("| Checkpoint p99 | %.0fms | <100ms | %s |", p99, status(p99 <= targetCheckpointP99))
	}
	line("")

	if t := sc.Throughput; !t.Empty() {
		line("## Throughput Results")
		line("")
		line("| Partitions | Backup MB/s | Restore MB/s | Duration |")
		line("|------------|-------------|--------------|----------|")
		for _, p := range []int{1, 3, 8} {
			if r, ok := t.ByPartitions[p]; ok {
				line("| %d | %.1f | %.1f | %s |", p, r.BackupMBps, r.RestoreMBps, FormatDuration(r.DurationS))
			}
		}
		if _, ok := t.ByPartitions[1]; !ok {
			line("| 3 | %.1f | %.1f | %s |", t.BackupMBps, t.RestoreMBps, FormatDuration(t.DurationS))
		}
		line("")
	}

	if len(sc.Compression) > 0 {
		line("## Compression Comparison")
		line("")
		line("| Algorithm | Ratio | Backup Time | Compressed Size |")
		line("|-----------|-------|-------------|-----------------|")
		for _, algo := range []string{"zstd", "lz4", "none"} {
			c, ok := sc.Compression[algo]
			if !ok {
				continue
			}
			ratio := 1.0
			if c.Ratio != nil {
				ratio = *c.Ratio
			}
			line("| %s | %.1fx | %s | %s |", algo, ratio, FormatDuration(c.DurationS), FormatSize(c.CompressedMB))
		}
		line("")
	}

	if len(sc.Latency) > 0 {
		line("## Latency Percentiles")
		line("")
		line("| Operation | p50 | p95 | p99 | max |")
		line("|-----------|-----|-----|-----|-----|")
		for _, op := range []string{"checkpoint", "segment_write", "fetch"} {
			if _, ok := sc.Latency[op+"_p50_ms"]; !ok {
				continue
			}
			l := sc.Latency
			line("| %s | %.0fms | %.0fms | %.0fms | %.0fms |", titleCase(op),
				l[op+"_p50_ms"], l[op+"_p95_ms"], l[op+"_p99_ms"], l[op+"_max_ms"])
		}
		line("")
	}

	if len(sc.LargeMessages) > 0 {
		line("## Large Message Performance")
		line("")
		line("| Message Size | Count | Backup MB/s | Restore MB/s |")
		line("|--------------|-------|-------------|--------------|")
		for _, size := range []string{"100kb", "1mb", "5mb"} {
			if m, ok := sc.LargeMessages[size]; ok {
				line("| %s | %d | %.1f | %.1f |", strings.ToUpper(size), m.Count, m.BackupMBps, m.RestoreMBps)
			}
		}
		line("")
	}

	if len(sc.ConcurrentPartitions) > 0 {
		line("## Partition Scaling")
		line("")
		line("| Partitions | Throughput | Scaling Factor |")
		line("|------------|------------|----------------|")
		baseline := 1.0
		if one, ok := sc.ConcurrentPartitions["1"]; ok && one.BackupMBps != nil {
			baseline = *one.BackupMBps
		}
		for _, p := range []string{"1", "4", "8"} {
			s, ok := sc.ConcurrentPartitions[p]
			if !ok {
				continue
			}
			mbps := 0.0
			if s.BackupMBps != nil {
				mbps = *s.BackupMBps
			}
			factor := 0.0
			if baseline > 0 {
				factor = mbps / baseline
			}
			line("| %s | %.1f MB/s | %.1fx |", p, mbps, factor)
		}
		line("")
	}

	line("---")
	line("")
	b.WriteString("*Generated by kafka-backup-demos benchmark suite*")
	return b.String()
}

func status(pass bool) string {
	if pass {
		return "✓ PASS"
	}
	return "✗ FAIL"
}

// FormatDuration renders seconds as "12.3s" under a minute and "2m 5.0s" above.
func FormatDuration(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	minutes := int(seconds / 60)
	return fmt.Sprintf("%dm %.1fs", minutes, math.Mod(seconds, 60))
}

func FormatSize(mb float64) string {
	if mb >= 1024 {
		return fmt.Sprintf("%.2f GB", mb/1024)
	}
	return fmt.Sprintf("%.1f MB", mb)
}

func titleCase(op string) string {
	words := strings.Split(op, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
