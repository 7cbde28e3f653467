package infrastructure

import (
	"runtime"

	"github.com/prometheus/procfs"
)

// MemoryStats is a point-in-time view of process memory in bytes
type MemoryStats struct {
	RSS       uint64
	HeapUsed  uint64
	HeapTotal uint64
}

// ReadMemoryStats samples resident set size from /proc and heap figures from
// the Go runtime. Where procfs is unavailable RSS falls back to the memory
// obtained from the OS by the runtime.
func ReadMemoryStats() (MemoryStats, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := MemoryStats{
		RSS:       ms.Sys,
		HeapUsed:  ms.HeapAlloc,
		HeapTotal: ms.HeapSys,
	}

	proc, err := procfs.Self()
	if err != nil {
		return stats, nil
	}
	stat, err := proc.Stat()
	if err != nil {
		return stats, nil
	}
	if rss := stat.ResidentMemory(); rss > 0 {
		stats.RSS = uint64(rss)
	}
	return stats, nil
}
