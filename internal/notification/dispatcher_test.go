package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/testutil"
)

// fakeProvider scripts Send outcomes per call number.
type fakeProvider struct {
	name     string
	enabled  bool
	key      string
	sendFunc func(call int, n *Notification) error

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) GetName() string        { return f.name }
func (f *fakeProvider) IsEnabled() bool        { return f.enabled }
func (f *fakeProvider) SupportsType(Type) bool { return true }
func (f *fakeProvider) ValidateConfig() error  { return nil }

func (f *fakeProvider) DestinationKey(n *Notification) string {
	if f.key == "custom" {
		return n.Destination
	}
	return f.key
}

func (f *fakeProvider) Send(_ context.Context, n *Notification) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	fn := f.sendFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(call, n)
	}
	return nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func transientErr() error {
	return errors.Newf("upstream returned 500").
		Component("notification").
		Category(errors.CategoryDeliveryTransient).
		Build()
}

func permanentErr() error {
	return errors.Newf("upstream returned 400").
		Component("notification").
		Category(errors.CategoryDeliveryPermanent).
		Build()
}

func rateLimitedErr(wait time.Duration) error {
	return errors.Newf("upstream returned 429").
		Component("notification").
		Category(errors.CategoryDeliveryTransient).
		Context("retry_after_ms", wait.Milliseconds()).
		Build()
}

// fastBackoff shrinks the retry schedule so tests finish quickly.
func fastBackoff(t *testing.T) {
	t.Helper()
	saved := backoffSchedule
	backoffSchedule = []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}
	t.Cleanup(func() { backoffSchedule = saved })
}

func testNotification() *Notification {
	return NewNotification(TypeDetection, PriorityHigh, "NEW SPECIES: Eurasian Nuthatch", "Sitta europaea")
}

func TestDispatchRetriesTransientThenSucceeds(t *testing.T) {
	fastBackoff(t)
	provider := &fakeProvider{
		name:    "flaky",
		enabled: true,
		sendFunc: func(call int, _ *Notification) error {
			if call < 3 {
				return transientErr()
			}
			return nil
		},
	}
	d := NewDispatcher([]Provider{provider}, nil)

	if err := d.Dispatch(context.Background(), testNotification()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := provider.callCount(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestDispatchPermanentFailureNotRetried(t *testing.T) {
	fastBackoff(t)
	provider := &fakeProvider{
		name:    "strict",
		enabled: true,
		sendFunc: func(int, *Notification) error {
			return permanentErr()
		},
	}
	d := NewDispatcher([]Provider{provider}, nil)

	err := d.Dispatch(context.Background(), testNotification())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.IsDeliveryPermanent(err) {
		t.Errorf("expected permanent delivery error, got %v", err)
	}
	if got := provider.callCount(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestDispatchExhaustsRetries(t *testing.T) {
	fastBackoff(t)
	provider := &fakeProvider{
		name:    "dead",
		enabled: true,
		sendFunc: func(int, *Notification) error {
			return transientErr()
		},
	}
	d := NewDispatcher([]Provider{provider}, nil)

	if err := d.Dispatch(context.Background(), testNotification()); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if got := provider.callCount(); got != maxDeliveryAttempts {
		t.Errorf("attempts = %d, want %d", got, maxDeliveryAttempts)
	}
}

func TestDispatchHonorsRetryAfterHint(t *testing.T) {
	fastBackoff(t)
	const hint = 60 * time.Millisecond

	var firstAttempt, secondAttempt time.Time
	provider := &fakeProvider{
		name:    "limited",
		enabled: true,
		sendFunc: func(call int, _ *Notification) error {
			switch call {
			case 1:
				firstAttempt = time.Now()
				return rateLimitedErr(hint)
			default:
				secondAttempt = time.Now()
				return nil
			}
		},
	}
	d := NewDispatcher([]Provider{provider}, nil)

	if err := d.Dispatch(context.Background(), testNotification()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	// The 1ms test backoff must have been replaced by the hint.
	if gap := secondAttempt.Sub(firstAttempt); gap < hint {
		t.Errorf("retry came after %v, want at least %v", gap, hint)
	}
}

func TestDispatchPartialSuccess(t *testing.T) {
	fastBackoff(t)
	working := &fakeProvider{name: "working", enabled: true}
	broken := &fakeProvider{
		name:    "broken",
		enabled: true,
		sendFunc: func(int, *Notification) error {
			return permanentErr()
		},
	}
	d := NewDispatcher([]Provider{working, broken}, nil)

	// One delivered message is a success even when another provider
	// failed for good.
	if err := d.Dispatch(context.Background(), testNotification()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if working.callCount() != 1 {
		t.Errorf("working provider calls = %d, want 1", working.callCount())
	}
}

func TestDispatchAllProvidersFail(t *testing.T) {
	fastBackoff(t)
	a := &fakeProvider{name: "a", enabled: true, sendFunc: func(int, *Notification) error { return permanentErr() }}
	b := &fakeProvider{name: "b", enabled: true, sendFunc: func(int, *Notification) error { return permanentErr() }}
	d := NewDispatcher([]Provider{a, b}, nil)

	if err := d.Dispatch(context.Background(), testNotification()); err == nil {
		t.Fatal("expected error when every provider fails")
	}
}

func TestDispatchNoEligibleProvider(t *testing.T) {
	disabled := &fakeProvider{name: "off", enabled: false}
	d := NewDispatcher([]Provider{disabled}, nil)

	err := d.Dispatch(context.Background(), testNotification())
	if err == nil {
		t.Fatal("expected error with no enabled provider")
	}
	if disabled.callCount() != 0 {
		t.Errorf("disabled provider was called %d times", disabled.callCount())
	}
}

func TestDispatchCancellationStopsRetries(t *testing.T) {
	saved := backoffSchedule
	backoffSchedule = []time.Duration{time.Hour, time.Hour, time.Hour}
	t.Cleanup(func() { backoffSchedule = saved })

	provider := &fakeProvider{
		name:    "slow",
		enabled: true,
		sendFunc: func(int, *Notification) error {
			return transientErr()
		},
	}
	d := NewDispatcher([]Provider{provider}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Dispatch(ctx, testNotification())
	}()

	// Give the first attempt time to fail, then cancel during the
	// backoff wait. The attempt already made stands, no further ones.
	time.Sleep(50 * time.Millisecond)
	cancel()

	err := testutil.WaitForError(t, done, testutil.DefaultTestTimeout, "dispatch did not return after cancellation")
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if got := provider.callCount(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestDispatchSerializesPerDestination(t *testing.T) {
	var inflight, maxInflight atomic.Int32
	provider := &fakeProvider{
		name:    "serialized",
		enabled: true,
		key:     "shared-destination",
		sendFunc: func(int, *Notification) error {
			current := inflight.Add(1)
			if current > maxInflight.Load() {
				maxInflight.Store(current)
			}
			time.Sleep(20 * time.Millisecond)
			inflight.Add(-1)
			return nil
		},
	}
	d := NewDispatcher([]Provider{provider}, nil)

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Dispatch(context.Background(), testNotification()); err != nil {
				t.Errorf("Dispatch: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInflight.Load() != 1 {
		t.Errorf("max in-flight deliveries = %d, want 1", maxInflight.Load())
	}
}

func TestDispatchDistinctDestinationsProceedIndependently(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	provider := &fakeProvider{
		name:    "independent",
		enabled: true,
		key:     "custom",
		sendFunc: func(int, *Notification) error {
			entered <- struct{}{}
			<-release
			return nil
		},
	}
	d := NewDispatcher([]Provider{provider}, nil)

	for _, dest := range []string{"https://example.org/hook/a", "https://example.org/hook/b"} {
		go func(dest string) {
			n := testNotification().WithDestination(dest)
			_ = d.Dispatch(context.Background(), n)
		}(dest)
	}

	// Both deliveries must be in flight at once; serialization across
	// distinct destinations would leave the second one blocked.
	for range 2 {
		testutil.WaitForChannel(t, entered, testutil.ShortTestTimeout,
			"deliveries to distinct destinations did not proceed independently")
	}
	close(release)
}

func TestDispatcherSkipsInvalidProviderConfig(t *testing.T) {
	valid := &fakeProvider{name: "good", enabled: true}
	d := NewDispatcher([]Provider{valid, &invalidProvider{}}, nil)

	names := d.Providers()
	if len(names) != 1 || names[0] != "good" {
		t.Errorf("providers = %v, want only the valid one", names)
	}
}

// invalidProvider always fails validation.
type invalidProvider struct{}

func (p *invalidProvider) GetName() string        { return "invalid" }
func (p *invalidProvider) IsEnabled() bool        { return true }
func (p *invalidProvider) SupportsType(Type) bool { return true }
func (p *invalidProvider) ValidateConfig() error {
	return errors.Newf("missing required URL").
		Component("notification").
		Category(errors.CategoryConfiguration).
		Build()
}
func (p *invalidProvider) Send(context.Context, *Notification) error { return nil }
