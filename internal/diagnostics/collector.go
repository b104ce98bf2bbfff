package diagnostics

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/birdnet-notifier/internal/errors"
)

// sensitiveKeys marks configuration keys whose values never leave the
// machine. Matching is by substring on the lowercased key, so "urls"
// catches webhook and shoutrrr destinations and "broker" the MQTT
// address.
var sensitiveKeys = []string{
	"password", "token", "secret", "key", "apikey", "api_key",
	"dsn", "url", "urls", "broker", "topic", "username",
}

// Collector gathers the bundle sections. Paths are resolved by the
// caller so tests can point everything at temp directories.
type Collector struct {
	configDir string
	statePath string
	logPaths  []string
	systemID  string
	version   string
}

// NewCollector builds a collector. configDir holds config.yaml,
// statePath is the scheduler state file, and logPaths lists files or
// directories to scan for JSON logs.
func NewCollector(configDir, statePath string, logPaths []string, systemID, version string) *Collector {
	if configDir == "" {
		configDir = "."
	}
	return &Collector{
		configDir: configDir,
		statePath: statePath,
		logPaths:  logPaths,
		systemID:  systemID,
		version:   version,
	}
}

// Collect gathers the selected sections into a bundle. Missing optional
// inputs (no state file yet, no logs) are skipped, not errors; only an
// unreadable or unparseable config fails the run.
func (c *Collector) Collect(ctx context.Context, opts Options) (*Bundle, error) {
	if !opts.IncludeConfig && !opts.IncludeJobState && !opts.IncludeLogs && !opts.IncludeSystem {
		return nil, errors.Newf("support bundle must include at least one section").
			Component("diagnostics").
			Category(errors.CategoryValidation).
			Build()
	}

	bundle := &Bundle{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		SystemID:  c.systemID,
		Version:   c.version,
	}

	if opts.IncludeConfig {
		config, err := c.collectConfig()
		if err != nil {
			return nil, err
		}
		bundle.Config = config
	}

	if opts.IncludeJobState {
		state, err := c.collectJobState()
		if err != nil {
			return nil, err
		}
		bundle.JobState = state
	}

	if opts.IncludeLogs {
		bundle.Logs = c.collectLogs(opts.LogWindow, opts.MaxLogBytes)
	}

	if opts.IncludeSystem {
		bundle.System = collectSystemInfo(ctx)
	}

	return bundle, nil
}

// CreateArchive zips the bundle: metadata.json plus one file per
// collected section.
func (c *Collector) CreateArchive(bundle *Bundle) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	metadata := struct {
		ID        string    `json:"id"`
		Timestamp time.Time `json:"timestamp"`
		SystemID  string    `json:"system_id"`
		Version   string    `json:"version"`
	}{bundle.ID, bundle.Timestamp, bundle.SystemID, bundle.Version}

	if err := writeArchiveJSON(w, "metadata.json", metadata); err != nil {
		return nil, err
	}
	if bundle.Config != nil {
		if err := writeArchiveJSON(w, "config.json", bundle.Config); err != nil {
			return nil, err
		}
	}
	if bundle.JobState != nil {
		if err := writeArchiveJSON(w, "job_state.json", bundle.JobState); err != nil {
			return nil, err
		}
	}
	if len(bundle.Logs) > 0 {
		if err := writeArchiveJSON(w, "logs.json", bundle.Logs); err != nil {
			return nil, err
		}
	}
	if bundle.System != nil {
		if err := writeArchiveJSON(w, "system.json", bundle.System); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, errors.New(err).
			Component("diagnostics").
			Category(errors.CategoryFileIO).
			Context("operation", "close-archive").
			Build()
	}

	return buf.Bytes(), nil
}

func writeArchiveJSON(w *zip.Writer, name string, v any) error {
	f, err := w.Create(name)
	if err != nil {
		return errors.New(err).
			Component("diagnostics").
			Category(errors.CategoryFileIO).
			Context("operation", "create-archive-entry").
			Context("entry", name).
			Build()
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.New(err).
			Component("diagnostics").
			Category(errors.CategoryFileIO).
			Context("operation", "encode-archive-entry").
			Context("entry", name).
			Build()
	}
	return nil
}

// collectConfig loads config.yaml and redacts every sensitive value.
func (c *Collector) collectConfig() (map[string]any, error) {
	configPath := filepath.Join(c.configDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.New(err).
			Component("diagnostics").
			Category(errors.CategoryFileIO).
			Context("operation", "read-config").
			Context("path", configPath).
			Build()
	}

	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.New(err).
			Component("diagnostics").
			Category(errors.CategoryConfiguration).
			Context("operation", "parse-config").
			Build()
	}

	return redactMap(config), nil
}

// collectJobState reads the scheduler state file. An absent file means
// no job has ever fired, which is itself useful in a report.
func (c *Collector) collectJobState() (map[string]any, error) {
	if c.statePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(c.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, errors.New(err).
			Component("diagnostics").
			Category(errors.CategoryFileIO).
			Context("operation", "read-job-state").
			Context("path", c.statePath).
			Build()
	}

	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		// A corrupt state file is a finding, not a collection failure.
		return map[string]any{"unparseable": true, "size_bytes": len(data)}, nil
	}
	return state, nil
}

// redactMap replaces sensitive values recursively, keeping the
// structure so a reviewer can still see what is configured.
func redactMap(m map[string]any) map[string]any {
	redacted := make(map[string]any, len(m))
	for k, v := range m {
		redacted[k] = redactValue(k, v)
	}
	return redacted
}

func redactValue(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}

	switch v := value.(type) {
	case map[string]any:
		return redactMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(key, item)
		}
		return out
	default:
		return value
	}
}

// collectLogs scans the configured log locations for JSON log lines
// inside the time window, newest-first budgeted by maxBytes of line
// text. Unreadable paths and non-JSON lines are skipped silently, the
// bundle should come out even on a half-broken installation.
func (c *Collector) collectLogs(window time.Duration, maxBytes int64) []LogEntry {
	cutoff := time.Now().Add(-window)
	var logs []LogEntry
	var total int64

	for _, path := range c.logPaths {
		if total >= maxBytes {
			break
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if info.IsDir() {
			files, err := os.ReadDir(path)
			if err != nil {
				continue
			}
			for _, file := range files {
				if !strings.HasSuffix(strings.ToLower(file.Name()), ".log") {
					continue
				}
				entries, size := parseLogFile(filepath.Join(path, file.Name()), cutoff, maxBytes-total)
				logs = append(logs, entries...)
				total += size
				if total >= maxBytes {
					break
				}
			}
		} else {
			entries, size := parseLogFile(path, cutoff, maxBytes-total)
			logs = append(logs, entries...)
			total += size
		}
	}

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].Timestamp.Before(logs[j].Timestamp)
	})
	return logs
}

func parseLogFile(path string, cutoff time.Time, budget int64) ([]LogEntry, int64) {
	var logs []LogEntry
	var size int64

	f, err := os.Open(path)
	if err != nil {
		return nil, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		size += int64(len(line))
		if size > budget {
			break
		}
		if entry := parseLogLine(line); entry != nil && entry.Timestamp.After(cutoff) {
			logs = append(logs, *entry)
		}
	}
	return logs, size
}

// parseLogLine decodes one slog JSON line. Anything else returns nil.
func parseLogLine(line string) *LogEntry {
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return nil
	}

	entry := &LogEntry{}
	if timeStr, ok := record["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339, timeStr); err == nil {
			entry.Timestamp = t
		}
	}
	if level, ok := record["level"].(string); ok {
		entry.Level = strings.ToUpper(level)
	}
	if msg, ok := record["msg"].(string); ok {
		entry.Message = msg
	}
	if service, ok := record["service"].(string); ok {
		entry.Service = service
	}

	if entry.Message == "" {
		return nil
	}
	return entry
}
