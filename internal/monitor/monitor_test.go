package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/notification"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
	)
}

type recordedAlert struct {
	priority notification.Priority
	title    string
	message  string
}

// recordingPublisher captures alerts instead of delivering them.
type recordingPublisher struct {
	mu     sync.Mutex
	fail   bool
	alerts []recordedAlert
}

func (p *recordingPublisher) PublishSystem(_ context.Context, priority notification.Priority, title, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return fmt.Errorf("delivery down")
	}
	p.alerts = append(p.alerts, recordedAlert{priority: priority, title: title, message: message})
	return nil
}

func (p *recordingPublisher) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

func (p *recordingPublisher) recorded() []recordedAlert {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]recordedAlert, len(p.alerts))
	copy(out, p.alerts)
	return out
}

func monitorSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Monitoring = conf.MonitoringSettings{
		Enabled:               true,
		CheckSeconds:          30,
		CriticalResendMinutes: 30,
		HysteresisPercent:     5,
		CPU:                   conf.ResourceThresholds{Enabled: true, Warning: 85, Critical: 95},
	}
	return s
}

// testMonitor builds a monitor with scripted probes and a fixed clock.
// Tests drive sweeps through Check directly, no polling goroutine.
func testMonitor(settings *conf.Settings, pub Publisher) (*Monitor, *float64, *time.Time) {
	m := New(settings, pub)
	m.logger = slog.Default()

	value := 0.0
	m.cpuUsage = func() (float64, error) { return value, nil }
	m.memUsage = func() (float64, error) { return value, nil }
	m.diskUsage = func(string) (float64, error) { return value, nil }

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	return m, &value, &clock
}

func TestThresholdTransitions(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	m, value, _ := testMonitor(monitorSettings(), pub)
	ctx := context.Background()

	steps := []struct {
		name       string
		value      float64
		wantAlerts int
		wantLast   notification.Priority
	}{
		{name: "calm", value: 50, wantAlerts: 0},
		{name: "crosses warning", value: 88, wantAlerts: 1, wantLast: notification.PriorityHigh},
		{name: "stays in warning", value: 90, wantAlerts: 1},
		{name: "crosses critical", value: 97, wantAlerts: 2, wantLast: notification.PriorityCritical},
		{name: "stays critical", value: 96, wantAlerts: 2},
		{name: "inside critical hysteresis band", value: 91, wantAlerts: 2},
		{name: "clears critical", value: 89, wantAlerts: 3, wantLast: notification.PriorityMedium},
		{name: "inside warning hysteresis band", value: 82, wantAlerts: 3},
		{name: "clears warning", value: 78, wantAlerts: 4, wantLast: notification.PriorityLow},
		{name: "calm again", value: 40, wantAlerts: 4},
	}

	for _, step := range steps {
		*value = step.value
		m.Check(ctx)

		alerts := pub.recorded()
		require.Len(t, alerts, step.wantAlerts, "step %q at %.0f%%", step.name, step.value)
		if step.wantLast != "" {
			assert.Equal(t, step.wantLast, alerts[len(alerts)-1].priority, "step %q", step.name)
		}
	}

	alerts := pub.recorded()
	assert.Contains(t, alerts[0].title, "CPU usage warning")
	assert.Contains(t, alerts[1].title, "CPU usage critical")
	assert.Contains(t, alerts[2].title, "CPU usage recovered")
	assert.Contains(t, alerts[3].title, "CPU usage recovered")
	assert.Contains(t, alerts[1].message, "95.0%")
}

func TestHysteresisPreventsFlapping(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	m, value, _ := testMonitor(monitorSettings(), pub)
	ctx := context.Background()

	// Oscillating right at the warning threshold must produce exactly
	// one alert. Recovery needs a drop below 80 with hysteresis 5.
	for _, v := range []float64{85.0, 84.5, 85.2, 84.0, 85.1, 83.9} {
		*value = v
		m.Check(ctx)
	}
	assert.Len(t, pub.recorded(), 1)

	*value = 79.9
	m.Check(ctx)
	require.Len(t, pub.recorded(), 2)
	assert.Equal(t, notification.PriorityLow, pub.recorded()[1].priority)
}

func TestCriticalDiskAlertRepeats(t *testing.T) {
	t.Parallel()

	settings := monitorSettings()
	settings.Monitoring.CPU = conf.ResourceThresholds{}
	settings.Monitoring.Disk = conf.DiskThresholds{
		Enabled:  true,
		Warning:  85,
		Critical: 95,
		Paths:    []string{"/data"},
	}

	pub := &recordingPublisher{}
	m, value, clock := testMonitor(settings, pub)
	ctx := context.Background()

	*value = 97
	m.Check(ctx)
	require.Len(t, pub.recorded(), 1)

	// Still critical before the resend interval passes.
	*clock = clock.Add(10 * time.Minute)
	m.Check(ctx)
	assert.Len(t, pub.recorded(), 1)

	*clock = clock.Add(25 * time.Minute)
	m.Check(ctx)
	alerts := pub.recorded()
	require.Len(t, alerts, 2)
	assert.Equal(t, notification.PriorityCritical, alerts[1].priority)
	assert.Contains(t, alerts[1].title, "Disk (/data)")
}

func TestCriticalCPUAlertDoesNotRepeat(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	m, value, clock := testMonitor(monitorSettings(), pub)
	ctx := context.Background()

	*value = 97
	m.Check(ctx)
	require.Len(t, pub.recorded(), 1)

	*clock = clock.Add(2 * time.Hour)
	m.Check(ctx)
	assert.Len(t, pub.recorded(), 1, "CPU alerts fire once per critical episode")
}

func TestRecoveryFromCriticalReportsDuration(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	m, value, clock := testMonitor(monitorSettings(), pub)
	ctx := context.Background()

	*value = 97
	m.Check(ctx)

	*clock = clock.Add(45 * time.Minute)
	*value = 70
	m.Check(ctx)

	alerts := pub.recorded()
	require.Len(t, alerts, 2)
	assert.Equal(t, notification.PriorityMedium, alerts[1].priority,
		"a jump from critical straight to calm recovers as critical")
	assert.Contains(t, alerts[1].message, "after 45m0s in critical state")
}

func TestFailedDeliveryRetriesOnNextSweep(t *testing.T) {
	t.Parallel()

	settings := monitorSettings()
	settings.Monitoring.CPU = conf.ResourceThresholds{}
	settings.Monitoring.Disk = conf.DiskThresholds{Enabled: true, Warning: 85, Critical: 95}

	pub := &recordingPublisher{fail: true}
	m, value, _ := testMonitor(settings, pub)
	ctx := context.Background()

	*value = 97
	m.Check(ctx)
	require.Empty(t, pub.recorded())

	// lastSent never advanced, so the disk resend path fires as soon as
	// delivery works again.
	pub.setFail(false)
	m.Check(ctx)
	require.Len(t, pub.recorded(), 1)
	assert.Equal(t, notification.PriorityCritical, pub.recorded()[0].priority)
}

func TestDiskProbeErrorSkipsPath(t *testing.T) {
	t.Parallel()

	settings := monitorSettings()
	settings.Monitoring.CPU = conf.ResourceThresholds{}
	settings.Monitoring.Disk = conf.DiskThresholds{
		Enabled:  true,
		Warning:  85,
		Critical: 95,
		Paths:    []string{"/gone", "/data"},
	}

	pub := &recordingPublisher{}
	m, _, _ := testMonitor(settings, pub)
	m.diskUsage = func(path string) (float64, error) {
		if path == "/gone" {
			return 0, fmt.Errorf("no such file or directory")
		}
		return 97, nil
	}

	m.Check(context.Background())

	alerts := pub.recorded()
	require.Len(t, alerts, 1, "the broken path must not block the healthy one")
	assert.Contains(t, alerts[0].title, "/data")

	_, tracked := m.Status()["disk|/gone"]
	assert.False(t, tracked, "unreadable paths carry no state")
}

func TestDiskPaths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		configured []string
		want       []string
	}{
		{name: "empty defaults to root", configured: nil, want: []string{"/"}},
		{name: "duplicates removed", configured: []string{"/data", "/data", "/var"}, want: []string{"/data", "/var"}},
		{name: "blanks skipped", configured: []string{"", "/data"}, want: []string{"/data"}},
		{name: "only blanks defaults to root", configured: []string{""}, want: []string{"/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			settings := monitorSettings()
			settings.Monitoring.Disk.Paths = tt.configured
			m, _, _ := testMonitor(settings, &recordingPublisher{})
			assert.Equal(t, tt.want, m.diskPaths())
		})
	}
}

func TestStatusReportsTrackedResources(t *testing.T) {
	t.Parallel()

	settings := monitorSettings()
	settings.Monitoring.Memory = conf.ResourceThresholds{Enabled: true, Warning: 85, Critical: 95}
	settings.Monitoring.Disk = conf.DiskThresholds{Enabled: true, Warning: 85, Critical: 95, Paths: []string{"/data"}}

	pub := &recordingPublisher{}
	m, value, clock := testMonitor(settings, pub)

	*value = 90
	m.Check(context.Background())

	status := m.Status()
	require.Len(t, status, 3)

	cpu, ok := status["cpu"]
	require.True(t, ok)
	assert.InDelta(t, 90.0, cpu.Value, 0.01)
	assert.True(t, cpu.InWarning)
	assert.False(t, cpu.InCritical)
	assert.Equal(t, *clock, cpu.LastCheck)

	_, ok = status["memory"]
	assert.True(t, ok)
	_, ok = status["disk|/data"]
	assert.True(t, ok)
}

func TestStartHonorsEnabledFlag(t *testing.T) {
	t.Parallel()

	settings := monitorSettings()
	settings.Monitoring.Enabled = false

	m, _, _ := testMonitor(settings, &recordingPublisher{})
	m.Start()

	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	assert.False(t, running)

	// Stop on a never-started monitor is a no-op.
	m.Stop()
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	m, value, _ := testMonitor(monitorSettings(), pub)
	*value = 97

	m.Start()
	m.Stop()

	// The initial sweep runs before the first tick, so the critical
	// alert is already recorded by the time Stop returns.
	alerts := pub.recorded()
	require.Len(t, alerts, 1)
	assert.Equal(t, notification.PriorityCritical, alerts[0].priority)
}
