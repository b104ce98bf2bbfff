package processor

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/novelty"
)

type fakeStore struct {
	datastore.Interface

	mu          sync.Mutex
	notes       []datastore.Note
	notesErr    error
	saved       []datastore.NotificationHistory
	saveErr     error
	restoreRows []datastore.NotificationHistory
	restoreErr  error
}

func (f *fakeStore) GetLastDetections(_ context.Context, n int) ([]datastore.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notesErr != nil {
		return nil, f.notesErr
	}
	if len(f.notes) == 0 {
		return nil, nil
	}
	start := len(f.notes) - n
	if start < 0 {
		start = 0
	}
	out := make([]datastore.Note, 0, n)
	for i := len(f.notes) - 1; i >= start; i-- {
		out = append(out, f.notes[i])
	}
	return out, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (datastore.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notes {
		if strconv.FormatUint(uint64(f.notes[i].ID), 10) == id {
			return f.notes[i], nil
		}
	}
	return datastore.Note{}, errors.Newf("note not found").
		Component("datastore").
		Category(errors.CategoryNotFound).
		Build()
}

func (f *fakeStore) LatestNoteID(context.Context) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notesErr != nil {
		return 0, f.notesErr
	}
	var max uint
	for i := range f.notes {
		if f.notes[i].ID > max {
			max = f.notes[i].ID
		}
	}
	return max, nil
}

func (f *fakeStore) GetNotesAfter(_ context.Context, afterID uint, limit int) ([]datastore.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notesErr != nil {
		return nil, f.notesErr
	}
	var out []datastore.Note
	for i := range f.notes {
		if f.notes[i].ID > afterID {
			out = append(out, f.notes[i])
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) SaveNotificationHistory(_ context.Context, h *datastore.NotificationHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, *h)
	return nil
}

func (f *fakeStore) GetActiveNotificationHistory(context.Context, time.Time) ([]datastore.NotificationHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restoreErr != nil {
		return nil, f.restoreErr
	}
	return f.restoreRows, nil
}

func (f *fakeStore) addNote(n datastore.Note) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
}

func (f *fakeStore) savedHistories() []datastore.NotificationHistory {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]datastore.NotificationHistory(nil), f.saved...)
}

type fakeClassifier struct {
	mu    sync.Mutex
	calls int
	flags []novelty.Granularity
	err   error
}

func (c *fakeClassifier) Classify(_ context.Context, note *datastore.Note) (*novelty.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	ts, err := note.DateTime()
	if err != nil {
		return nil, err
	}
	return &novelty.Result{Note: *note, Time: ts, Season: "spring", Flags: c.flags}, nil
}

func (c *fakeClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeAlertSink struct {
	mu        sync.Mutex
	published []*novelty.Result
	err       error
}

func (s *fakeAlertSink) PublishDetection(_ context.Context, result *novelty.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, result)
	return nil
}

func (s *fakeAlertSink) publishCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func policySettings() *conf.Settings {
	s := &conf.Settings{}
	s.Notify.Enabled = true
	s.Notify.MinConfidence = 0.7
	s.Notify.FirstEver = true
	s.Notify.FirstOfYear = true
	s.Notify.CooldownMinutes = 60
	return s
}

func testNote(id uint, common, scientific string) datastore.Note {
	return datastore.Note{
		ID:             id,
		Date:           "2024-05-12",
		Time:           "06:30:00",
		CommonName:     common,
		ScientificName: scientific,
		Confidence:     0.91,
	}
}

func TestProcessSendsNovelDetection(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	classifier := &fakeClassifier{flags: []novelty.Granularity{novelty.FirstEver, novelty.FirstOfYear}}
	sink := &fakeAlertSink{}
	p := New(policySettings(), store, classifier, sink, nil)

	note := testNote(1, "Eurasian Nuthatch", "Sitta europaea")
	outcome, err := p.Process(context.Background(), &note)
	require.NoError(t, err)

	assert.True(t, outcome.Sent)
	assert.Empty(t, outcome.Reason)
	assert.Equal(t, 1, sink.publishCount())

	saved := store.savedHistories()
	require.Len(t, saved, 2, "one history row per raised flag")
	types := []string{saved[0].NotificationType, saved[1].NotificationType}
	assert.Contains(t, types, "new_species")
	assert.Contains(t, types, "new_this_year")
	for i := range saved {
		assert.Equal(t, "Sitta europaea", saved[i].ScientificName)
		assert.False(t, saved[i].ExpiresAt.Before(saved[i].LastSent))
	}
}

func TestProcessNotNovel(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{}
	sink := &fakeAlertSink{}
	p := New(policySettings(), &fakeStore{}, classifier, sink, nil)

	note := testNote(1, "House Sparrow", "Passer domesticus")
	outcome, err := p.Process(context.Background(), &note)
	require.NoError(t, err)

	assert.False(t, outcome.Sent)
	assert.Equal(t, ReasonNotNovel, outcome.Reason)
	assert.Zero(t, sink.publishCount())
	require.NotNil(t, outcome.Result)
	assert.False(t, outcome.Result.IsNovel())
}

func TestProcessBlacklistSkipsClassification(t *testing.T) {
	t.Parallel()

	settings := policySettings()
	settings.Notify.Blacklist = []string{"House Sparrow"}
	classifier := &fakeClassifier{flags: []novelty.Granularity{novelty.FirstEver}}
	sink := &fakeAlertSink{}
	p := New(settings, &fakeStore{}, classifier, sink, nil)

	note := testNote(1, "House Sparrow", "Passer domesticus")
	outcome, err := p.Process(context.Background(), &note)
	require.NoError(t, err)

	assert.Equal(t, ReasonExcluded, outcome.Reason)
	assert.Zero(t, classifier.callCount(), "excluded species should not be classified")
	assert.Zero(t, sink.publishCount())
}

func TestProcessWhitelist(t *testing.T) {
	t.Parallel()

	settings := policySettings()
	settings.Notify.Whitelist = []string{"sitta europaea"}
	classifier := &fakeClassifier{flags: []novelty.Granularity{novelty.FirstEver}}
	sink := &fakeAlertSink{}
	p := New(settings, &fakeStore{}, classifier, sink, nil)

	// Scientific name on the whitelist passes.
	listed := testNote(1, "Eurasian Nuthatch", "Sitta europaea")
	outcome, err := p.Process(context.Background(), &listed)
	require.NoError(t, err)
	assert.True(t, outcome.Sent)

	// Anything else is excluded.
	other := testNote(2, "Common Redstart", "Phoenicurus phoenicurus")
	outcome, err = p.Process(context.Background(), &other)
	require.NoError(t, err)
	assert.Equal(t, ReasonExcluded, outcome.Reason)
	assert.Equal(t, 1, sink.publishCount())
}

func TestProcessCooldownSuppressesRepeat(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{flags: []novelty.Granularity{novelty.FirstOfYear}}
	sink := &fakeAlertSink{}
	p := New(policySettings(), &fakeStore{}, classifier, sink, nil)

	first := testNote(1, "Eurasian Nuthatch", "Sitta europaea")
	outcome, err := p.Process(context.Background(), &first)
	require.NoError(t, err)
	require.True(t, outcome.Sent)

	second := testNote(2, "Eurasian Nuthatch", "Sitta europaea")
	outcome, err = p.Process(context.Background(), &second)
	require.NoError(t, err)
	assert.False(t, outcome.Sent)
	assert.Equal(t, ReasonCooldown, outcome.Reason)

	// A different species is unaffected.
	other := testNote(3, "Common Redstart", "Phoenicurus phoenicurus")
	outcome, err = p.Process(context.Background(), &other)
	require.NoError(t, err)
	assert.True(t, outcome.Sent)
	assert.Equal(t, 2, sink.publishCount())
}

func TestProcessFailedDeliveryDoesNotBurnCooldown(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{flags: []novelty.Granularity{novelty.FirstEver}}
	sink := &fakeAlertSink{err: errors.Newf("all providers failed").Build()}
	p := New(policySettings(), &fakeStore{}, classifier, sink, nil)

	note := testNote(1, "Eurasian Nuthatch", "Sitta europaea")
	_, err := p.Process(context.Background(), &note)
	require.Error(t, err)

	// After the sink recovers the same species may alert immediately.
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	retry := testNote(2, "Eurasian Nuthatch", "Sitta europaea")
	outcome, err := p.Process(context.Background(), &retry)
	require.NoError(t, err)
	assert.True(t, outcome.Sent)
}

func TestProcessRateLimit(t *testing.T) {
	t.Parallel()

	settings := policySettings()
	settings.Notify.CooldownMinutes = 0
	settings.Notify.RateLimit.MaxPerHour = 1
	settings.Notify.RateLimit.Burst = 1
	classifier := &fakeClassifier{flags: []novelty.Granularity{novelty.FirstEver}}
	sink := &fakeAlertSink{}
	p := New(settings, &fakeStore{}, classifier, sink, nil)

	first := testNote(1, "Eurasian Nuthatch", "Sitta europaea")
	outcome, err := p.Process(context.Background(), &first)
	require.NoError(t, err)
	require.True(t, outcome.Sent)

	second := testNote(2, "Common Redstart", "Phoenicurus phoenicurus")
	outcome, err = p.Process(context.Background(), &second)
	require.NoError(t, err)
	assert.False(t, outcome.Sent)
	assert.Equal(t, ReasonRateLimit, outcome.Reason)
	assert.Equal(t, 1, sink.publishCount())
}

func TestProcessClassifierError(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{err: errors.Newf("store unavailable").
		Category(errors.CategoryDatabase).Build()}
	sink := &fakeAlertSink{}
	p := New(policySettings(), &fakeStore{}, classifier, sink, nil)

	note := testNote(1, "Eurasian Nuthatch", "Sitta europaea")
	_, err := p.Process(context.Background(), &note)
	require.Error(t, err)
	assert.Zero(t, sink.publishCount())
}

func TestPreviewDoesNotSendOrMarkState(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{flags: []novelty.Granularity{novelty.FirstEver}}
	sink := &fakeAlertSink{}
	store := &fakeStore{}
	p := New(policySettings(), store, classifier, sink, nil)

	note := testNote(1, "Eurasian Nuthatch", "Sitta europaea")
	outcome, err := p.Preview(context.Background(), &note)
	require.NoError(t, err)
	assert.False(t, outcome.Sent)
	assert.Empty(t, outcome.Reason)
	require.NotNil(t, outcome.Result)
	assert.True(t, outcome.Result.HasFlag(novelty.FirstEver))

	assert.Equal(t, 0, sink.publishCount())
	assert.Empty(t, store.savedHistories())

	// A preview must not burn the quiet period, a real send right after
	// still goes out.
	live, err := p.Process(context.Background(), &note)
	require.NoError(t, err)
	assert.True(t, live.Sent)
}

func TestPreviewReportsPolicyReasons(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{}
	p := New(policySettings(), &fakeStore{}, classifier, &fakeAlertSink{}, nil)

	excluded := testNote(1, "House Sparrow", "Passer domesticus")
	settings := policySettings()
	settings.Notify.Blacklist = []string{"House Sparrow"}
	blocked := New(settings, &fakeStore{}, classifier, &fakeAlertSink{}, nil)

	outcome, err := blocked.Preview(context.Background(), &excluded)
	require.NoError(t, err)
	assert.Equal(t, ReasonExcluded, outcome.Reason)

	quiet := testNote(2, "Great Tit", "Parus major")
	outcome, err = p.Preview(context.Background(), &quiet)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotNovel, outcome.Reason)

	// Once a real send has armed the quiet period, previews report it too.
	novel := &fakeClassifier{flags: []novelty.Granularity{novelty.FirstOfYear}}
	warm := New(policySettings(), &fakeStore{}, novel, &fakeAlertSink{}, nil)
	first := testNote(3, "Eurasian Wren", "Troglodytes troglodytes")
	live, err := warm.Process(context.Background(), &first)
	require.NoError(t, err)
	require.True(t, live.Sent)

	repeat := testNote(4, "Eurasian Wren", "Troglodytes troglodytes")
	outcome, err = warm.Preview(context.Background(), &repeat)
	require.NoError(t, err)
	assert.Equal(t, ReasonCooldown, outcome.Reason)
}

func TestRestoreWarmsCooldown(t *testing.T) {
	t.Parallel()

	store := &fakeStore{restoreRows: []datastore.NotificationHistory{
		{ScientificName: "Sitta europaea", NotificationType: "new_species", LastSent: time.Now().Add(-5 * time.Minute)},
	}}
	classifier := &fakeClassifier{flags: []novelty.Granularity{novelty.FirstEver}}
	sink := &fakeAlertSink{}
	p := New(policySettings(), store, classifier, sink, nil)
	require.NoError(t, p.Restore(context.Background()))

	note := testNote(1, "Eurasian Nuthatch", "Sitta europaea")
	outcome, err := p.Process(context.Background(), &note)
	require.NoError(t, err)
	assert.Equal(t, ReasonCooldown, outcome.Reason, "persisted history should keep the quiet period")
}

func TestResolveLatest(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	store.addNote(testNote(1, "House Sparrow", "Passer domesticus"))
	store.addNote(testNote(2, "Eurasian Nuthatch", "Sitta europaea"))
	p := New(policySettings(), store, &fakeClassifier{}, &fakeAlertSink{}, nil)

	note, err := p.ResolveLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(2), note.ID)
}

func TestResolveLatestEmpty(t *testing.T) {
	t.Parallel()

	p := New(policySettings(), &fakeStore{}, &fakeClassifier{}, &fakeAlertSink{}, nil)
	_, err := p.ResolveLatest(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}

func TestResolveID(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	store.addNote(testNote(7, "Eurasian Nuthatch", "Sitta europaea"))
	p := New(policySettings(), store, &fakeClassifier{}, &fakeAlertSink{}, nil)

	note, err := p.ResolveID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Sitta europaea", note.ScientificName)

	_, err = p.ResolveID(context.Background(), 99)
	require.Error(t, err)
}

func TestDecodeNote(t *testing.T) {
	t.Parallel()

	doc := `{"ID": 12, "Date": "2024-05-12", "Time": "06:30:00",
		"ScientificName": "Sitta europaea", "CommonName": "Eurasian Nuthatch",
		"Confidence": 0.87}`
	note, err := DecodeNote(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, uint(12), note.ID)
	assert.Equal(t, "Eurasian Nuthatch", note.CommonName)
	assert.InDelta(t, 0.87, note.Confidence, 1e-9)
}

func TestDecodeNoteInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `{"Date": `},
		{"missing species", `{"Date": "2024-05-12", "Time": "06:30:00"}`},
		{"bad timestamp", `{"Date": "12.05.2024", "Time": "06:30:00", "ScientificName": "Sitta europaea", "CommonName": "Eurasian Nuthatch"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeNote(strings.NewReader(tc.doc))
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestSpeciesFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		whitelist []string
		blacklist []string
		note      datastore.Note
		want      bool
	}{
		{"no lists allows all", nil, nil, testNote(1, "House Sparrow", "Passer domesticus"), true},
		{"blacklist by common name", nil, []string{"house sparrow"}, testNote(1, "House Sparrow", "Passer domesticus"), false},
		{"blacklist by scientific name", nil, []string{"Passer domesticus"}, testNote(1, "House Sparrow", "Passer domesticus"), false},
		{"whitelist match", []string{"House Sparrow"}, nil, testNote(1, "House Sparrow", "Passer domesticus"), true},
		{"whitelist miss", []string{"House Sparrow"}, nil, testNote(1, "Eurasian Nuthatch", "Sitta europaea"), false},
		{"blacklist wins over whitelist", []string{"House Sparrow"}, []string{"House Sparrow"}, testNote(1, "House Sparrow", "Passer domesticus"), false},
		{"whitespace and empties ignored", []string{" ", ""}, nil, testNote(1, "House Sparrow", "Passer domesticus"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newSpeciesFilter(tc.whitelist, tc.blacklist)
			assert.Equal(t, tc.want, f.allowed(&tc.note))
		})
	}
}
