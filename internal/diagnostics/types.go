// Package diagnostics assembles support bundles for bug reports: the
// redacted configuration, the scheduler's job state, recent logs, and a
// system snapshot, zipped into a single archive.
package diagnostics

import (
	"time"
)

// Bundle is the manifest of one support collection run. The archive
// carries it as metadata.json alongside the per-section files.
type Bundle struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	SystemID  string         `json:"system_id"`
	Version   string         `json:"version"`
	Config    map[string]any `json:"config,omitempty"`
	JobState  map[string]any `json:"job_state,omitempty"`
	Logs      []LogEntry     `json:"logs,omitempty"`
	System    *SystemInfo    `json:"system,omitempty"`
}

// LogEntry is one parsed line from the JSON log files.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Service   string    `json:"service,omitempty"`
}

// SystemInfo is the host snapshot included in a bundle. All fields
// describe hardware class and resource pressure, none identify the
// operator.
type SystemInfo struct {
	OS             string     `json:"os"`
	Architecture   string     `json:"architecture"`
	GoVersion      string     `json:"go_version"`
	NumCPU         int        `json:"num_cpu"`
	CPUModel       string     `json:"cpu_model,omitempty"`
	CPUPercent     float64    `json:"cpu_percent"`
	MemoryTotalMB  uint64     `json:"memory_total_mb"`
	MemoryUsedPerc float64    `json:"memory_used_percent"`
	Disks          []DiskInfo `json:"disks,omitempty"`
	Container      bool       `json:"container"`
	BoardModel     string     `json:"board_model,omitempty"`
}

// DiskInfo is usage for one real filesystem mount.
type DiskInfo struct {
	Mountpoint string  `json:"mountpoint"`
	TotalMB    uint64  `json:"total_mb"`
	UsedMB     uint64  `json:"used_mb"`
	UsedPerc   float64 `json:"used_percent"`
}

// Options selects which sections a bundle includes.
type Options struct {
	IncludeConfig   bool
	IncludeJobState bool
	IncludeLogs     bool
	IncludeSystem   bool
	LogWindow       time.Duration
	MaxLogBytes     int64
}

// DefaultOptions collects everything with a one-week log window capped
// at 10 MB of parsed lines.
func DefaultOptions() Options {
	return Options{
		IncludeConfig:   true,
		IncludeJobState: true,
		IncludeLogs:     true,
		IncludeSystem:   true,
		LogWindow:       7 * 24 * time.Hour,
		MaxLogBytes:     10 * 1024 * 1024,
	}
}
