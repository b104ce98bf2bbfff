// Package monitor watches host CPU, memory and disk usage and raises
// alerts through the notification dispatcher when configured thresholds
// are crossed. Alerts clear with hysteresis so a reading hovering at a
// threshold does not flap between alert and recovery.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/logging"
	"github.com/tphakala/birdnet-notifier/internal/notification"
)

// ResourceType identifies a monitored host resource.
type ResourceType string

const (
	ResourceCPU    ResourceType = "cpu"
	ResourceMemory ResourceType = "memory"
	ResourceDisk   ResourceType = "disk"
)

const (
	defaultCheckInterval  = 30 * time.Second
	defaultCriticalResend = 30 * time.Minute
	defaultHysteresis     = 5.0
	stateKeySeparator     = "|"
)

// Publisher delivers monitor alerts. *notification.Notifier satisfies it.
type Publisher interface {
	PublishSystem(ctx context.Context, priority notification.Priority, title, message string) error
}

// ResourceStatus is one resource's most recent reading.
type ResourceStatus struct {
	Value      float64   `json:"value_percent"`
	InWarning  bool      `json:"in_warning"`
	InCritical bool      `json:"in_critical"`
	LastCheck  time.Time `json:"last_check"`
}

// alertState tracks where one resource sits relative to its thresholds.
type alertState struct {
	inWarning     bool
	inCritical    bool
	lastValue     float64
	lastCheck     time.Time
	lastSent      time.Time // when the most recent alert was delivered
	criticalSince time.Time // when the resource entered critical
}

// pendingAlert is a decided notification waiting to be published.
type pendingAlert struct {
	priority notification.Priority
	title    string
	message  string
}

// Monitor polls host resources on an interval and publishes threshold
// alerts. State is kept per resource, and per path for disks, so each
// alert fires once on entry and once on recovery.
type Monitor struct {
	settings  *conf.Settings
	publisher Publisher
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	states  map[string]*alertState
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Probe and clock functions, replaced in tests.
	cpuUsage  func() (float64, error)
	memUsage  func() (float64, error)
	diskUsage func(path string) (float64, error)
	now       func() time.Time
}

// New builds a monitor reading thresholds from settings. Alerts are
// delivered through publisher.
func New(settings *conf.Settings, publisher Publisher) *Monitor {
	logger := logging.ForService("monitor")
	if logger == nil {
		logger = slog.Default().With("service", "monitor")
	}

	interval := defaultCheckInterval
	if settings.Monitoring.CheckSeconds > 0 {
		interval = time.Duration(settings.Monitoring.CheckSeconds) * time.Second
	}

	return &Monitor{
		settings:  settings,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
		states:    make(map[string]*alertState),
		cpuUsage:  readCPUUsage,
		memUsage:  readMemoryUsage,
		diskUsage: readDiskUsage,
		now:       time.Now,
	}
}

// Start begins the polling loop. It does nothing when monitoring is
// disabled in settings.
func (m *Monitor) Start() {
	if !m.settings.Monitoring.Enabled {
		m.logger.Info("host monitoring disabled")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.run(ctx)
	m.logger.Info("host monitoring started",
		"interval", m.interval,
		"cpu", m.settings.Monitoring.CPU.Enabled,
		"memory", m.settings.Monitoring.Memory.Enabled,
		"disk", m.settings.Monitoring.Disk.Enabled,
		"disk_paths", m.diskPaths())
}

// Stop halts the polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("host monitoring stopped")
}

// Status reports the most recent reading for every tracked resource,
// keyed by resource name, with "disk|<path>" for disk entries.
func (m *Monitor) Status() map[string]ResourceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := make(map[string]ResourceStatus, len(m.states))
	for key, state := range m.states {
		status[key] = ResourceStatus{
			Value:      state.lastValue,
			InWarning:  state.inWarning,
			InCritical: state.inCritical,
			LastCheck:  state.lastCheck,
		}
	}
	return status
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one sweep over every enabled resource. A failing probe is
// logged and skipped; the remaining resources are still checked.
func (m *Monitor) Check(ctx context.Context) {
	mon := &m.settings.Monitoring

	if mon.CPU.Enabled {
		if usage, err := m.cpuUsage(); err != nil {
			m.logger.Warn("CPU usage read failed", "error", err)
		} else {
			m.evaluate(ctx, ResourceCPU, "", usage, mon.CPU.Warning, mon.CPU.Critical)
		}
	}

	if mon.Memory.Enabled {
		if usage, err := m.memUsage(); err != nil {
			m.logger.Warn("memory usage read failed", "error", err)
		} else {
			m.evaluate(ctx, ResourceMemory, "", usage, mon.Memory.Warning, mon.Memory.Critical)
		}
	}

	if mon.Disk.Enabled {
		for _, path := range m.diskPaths() {
			if ctx.Err() != nil {
				return
			}
			usage, err := m.diskUsage(path)
			if err != nil {
				m.logger.Warn("disk usage read failed", "path", path, "error", err)
				continue
			}
			m.evaluate(ctx, ResourceDisk, path, usage, mon.Disk.Warning, mon.Disk.Critical)
		}
	}
}

// evaluate runs one reading through the threshold state machine. An
// alert fires on entering warning or critical; a recovery fires once
// the value drops below the threshold minus the hysteresis margin.
func (m *Monitor) evaluate(ctx context.Context, resource ResourceType, path string, value, warning, critical float64) {
	key := stateKey(resource, path)

	m.mu.Lock()
	state := m.states[key]
	if state == nil {
		state = &alertState{}
		m.states[key] = state
	}
	now := m.now()
	state.lastValue = value
	state.lastCheck = now

	var send *pendingAlert
	switch {
	case value >= critical:
		if !state.inCritical {
			// Critical implies warning so dropping back into the
			// warning band does not fire a second alert.
			state.inCritical = true
			state.inWarning = true
			state.criticalSince = now
			send = thresholdAlert(resource, path, value, critical, notification.PriorityCritical)
		} else if resource == ResourceDisk && now.Sub(state.lastSent) > m.resendInterval() {
			// Only disk alerts repeat while the state stays critical.
			send = thresholdAlert(resource, path, value, critical, notification.PriorityCritical)
		}
	case value >= warning:
		if !state.inWarning {
			state.inWarning = true
			send = thresholdAlert(resource, path, value, warning, notification.PriorityHigh)
		} else if state.inCritical && value < critical-m.hysteresis() {
			send = recoveryAlert(resource, path, value, true, now.Sub(state.criticalSince))
			state.inCritical = false
			state.criticalSince = time.Time{}
		}
	default:
		if state.inWarning && value < warning-m.hysteresis() {
			var criticalFor time.Duration
			if state.inCritical {
				criticalFor = now.Sub(state.criticalSince)
			}
			send = recoveryAlert(resource, path, value, state.inCritical, criticalFor)
			state.inWarning = false
			state.inCritical = false
			state.criticalSince = time.Time{}
		}
	}
	m.mu.Unlock()

	if send == nil {
		return
	}

	if err := m.publisher.PublishSystem(ctx, send.priority, send.title, send.message); err != nil {
		// lastSent stays put so the next sweep tries again.
		m.logger.Warn("resource alert delivery failed",
			"resource", string(resource), "path", path, "error", err)
		return
	}
	m.logger.Info("resource alert sent",
		"resource", string(resource),
		"path", path,
		"value", fmt.Sprintf("%.1f%%", value),
		"priority", string(send.priority))

	m.mu.Lock()
	state.lastSent = m.now()
	m.mu.Unlock()
}

// diskPaths returns the configured disk paths with blanks and
// duplicates removed, defaulting to the root filesystem.
func (m *Monitor) diskPaths() []string {
	configured := m.settings.Monitoring.Disk.Paths
	if len(configured) == 0 {
		return []string{"/"}
	}

	seen := make(map[string]bool, len(configured))
	paths := make([]string, 0, len(configured))
	for _, p := range configured {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		return []string{"/"}
	}
	return paths
}

func (m *Monitor) hysteresis() float64 {
	if h := m.settings.Monitoring.HysteresisPercent; h > 0 {
		return h
	}
	return defaultHysteresis
}

func (m *Monitor) resendInterval() time.Duration {
	if mins := m.settings.Monitoring.CriticalResendMinutes; mins > 0 {
		return time.Duration(mins) * time.Minute
	}
	return defaultCriticalResend
}

func stateKey(resource ResourceType, path string) string {
	if path == "" {
		return string(resource)
	}
	return string(resource) + stateKeySeparator + path
}

func displayName(resource ResourceType) string {
	switch resource {
	case ResourceCPU:
		return "CPU"
	case ResourceMemory:
		return "Memory"
	case ResourceDisk:
		return "Disk"
	default:
		return string(resource)
	}
}

// subject names the alerted resource in titles and messages, with the
// path attached for disk alerts.
func subject(resource ResourceType, path string) string {
	if resource == ResourceDisk && path != "" {
		return fmt.Sprintf("%s (%s)", displayName(resource), path)
	}
	return displayName(resource)
}

func thresholdAlert(resource ResourceType, path string, value, threshold float64, priority notification.Priority) *pendingAlert {
	level := "warning"
	if priority == notification.PriorityCritical {
		level = "critical"
	}
	return &pendingAlert{
		priority: priority,
		title:    fmt.Sprintf("%s usage %s", subject(resource, path), level),
		message: fmt.Sprintf("%s usage is at %.1f%%, the %s threshold is %.1f%%",
			subject(resource, path), value, level, threshold),
	}
}

func recoveryAlert(resource ResourceType, path string, value float64, fromCritical bool, criticalFor time.Duration) *pendingAlert {
	message := fmt.Sprintf("%s usage has returned to normal (%.1f%%)", subject(resource, path), value)
	if fromCritical && criticalFor > 0 {
		message += fmt.Sprintf(" after %s in critical state", criticalFor.Round(time.Minute))
	}

	priority := notification.PriorityLow
	if fromCritical {
		priority = notification.PriorityMedium
	}
	return &pendingAlert{
		priority: priority,
		title:    fmt.Sprintf("%s usage recovered", subject(resource, path)),
		message:  message,
	}
}

// readCPUUsage samples instantaneous CPU usage. The zero interval
// avoids blocking the poll loop for a measurement window.
func readCPUUsage() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no cpu usage sample")
	}
	return percents[0], nil
}

func readMemoryUsage() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func readDiskUsage(path string) (float64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}
