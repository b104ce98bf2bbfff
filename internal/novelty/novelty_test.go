package novelty

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/errors"
)

// occurrenceCall records one HasPriorOccurrence invocation.
type occurrenceCall struct {
	scientificName string
	before         time.Time
	since          time.Time
}

// mockStore implements only the occurrence query; every other datastore
// method panics through the embedded nil interface, which is what we want
// because the classifier must not touch anything else.
type mockStore struct {
	datastore.Interface

	mu    sync.Mutex
	calls []occurrenceCall
	seen  func(since time.Time) bool
	err   error
}

func (m *mockStore) HasPriorOccurrence(_ context.Context, scientificName string, before, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, occurrenceCall{scientificName, before, since})
	if m.err != nil {
		return false, m.err
	}
	if m.seen == nil {
		return false, nil
	}
	return m.seen(since), nil
}

func (m *mockStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Notify.MinConfidence = 0.7
	s.Notify.FirstEver = true
	s.Notify.FirstOfYear = true
	s.Notify.FirstOfSeason = true
	return s
}

func testNote(confidence float64) *datastore.Note {
	return &datastore.Note{
		ID:             42,
		Date:           "2024-05-12",
		Time:           "06:30:00",
		ScientificName: "Sitta europaea",
		CommonName:     "Eurasian Nuthatch",
		Confidence:     confidence,
	}
}

func TestClassifyBelowConfidenceSkipsStore(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	classifier, err := New(testSettings(), store, nil)
	require.NoError(t, err)

	result, err := classifier.Classify(context.Background(), testNote(0.4))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Empty(t, result.Flags)
	assert.False(t, result.IsNovel())
	assert.Equal(t, 0, store.callCount(), "low confidence detection must not query the store")
}

func TestClassifyAllGranularitiesNovel(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	classifier, err := New(testSettings(), store, nil)
	require.NoError(t, err)

	result, err := classifier.Classify(context.Background(), testNote(0.92))
	require.NoError(t, err)

	assert.Equal(t, []Granularity{FirstEver, FirstOfYear, FirstOfSeason}, result.Flags)
	assert.True(t, result.IsNovel())
	assert.Equal(t, "spring", result.Season)

	require.Len(t, store.calls, 3)
	detectedAt := time.Date(2024, time.May, 12, 6, 30, 0, 0, time.Local)
	for _, call := range store.calls {
		assert.Equal(t, "Sitta europaea", call.scientificName)
		assert.True(t, call.before.Equal(detectedAt), "before = %v, want detection time", call.before)
	}

	// All-time, calendar year, then season, each with its own lower bound.
	assert.True(t, store.calls[0].since.IsZero())
	assert.True(t, store.calls[1].since.Equal(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.Local)))
	assert.True(t, store.calls[2].since.Equal(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.Local)))
}

func TestClassifyKnownSpeciesNewThisYear(t *testing.T) {
	t.Parallel()

	// A prior occurrence exists in history but none this calendar year.
	store := &mockStore{seen: func(since time.Time) bool { return since.IsZero() }}
	classifier, err := New(testSettings(), store, nil)
	require.NoError(t, err)

	result, err := classifier.Classify(context.Background(), testNote(0.92))
	require.NoError(t, err)

	assert.Equal(t, []Granularity{FirstOfYear, FirstOfSeason}, result.Flags)
	assert.False(t, result.HasFlag(FirstEver))
	assert.True(t, result.HasFlag(FirstOfYear))
}

func TestClassifyFirstOfYearAtYearBoundary(t *testing.T) {
	t.Parallel()

	// Species seen Dec 31 at 23:59: present in all-time history and in the
	// current winter, but the year window starting Jan 1 00:00 is empty.
	yearStart := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.Local)
	store := &mockStore{seen: func(since time.Time) bool { return !since.Equal(yearStart) }}
	classifier, err := New(testSettings(), store, nil)
	require.NoError(t, err)

	note := testNote(0.92)
	note.Date = "2025-01-01"
	note.Time = "00:00:00"

	result, err := classifier.Classify(context.Background(), note)
	require.NoError(t, err)

	assert.Equal(t, []Granularity{FirstOfYear}, result.Flags)
	assert.Equal(t, "winter", result.Season)

	require.Len(t, store.calls, 3)
	assert.True(t, store.calls[1].since.Equal(yearStart))
	assert.True(t, store.calls[2].since.Equal(time.Date(2024, time.December, 1, 0, 0, 0, 0, time.Local)),
		"a midnight New Year detection still sits in the winter that began in December")
}

func TestClassifyNotNovel(t *testing.T) {
	t.Parallel()

	store := &mockStore{seen: func(time.Time) bool { return true }}
	classifier, err := New(testSettings(), store, nil)
	require.NoError(t, err)

	result, err := classifier.Classify(context.Background(), testNote(0.92))
	require.NoError(t, err)

	assert.Empty(t, result.Flags)
	assert.False(t, result.IsNovel())
	assert.Equal(t, 3, store.callCount(), "every enabled granularity is still checked")
}

func TestClassifyStoreErrorAborts(t *testing.T) {
	t.Parallel()

	store := &mockStore{err: errors.NewStd("connection refused")}
	classifier, err := New(testSettings(), store, nil)
	require.NoError(t, err)

	result, err := classifier.Classify(context.Background(), testNote(0.92))
	require.Error(t, err)
	assert.Nil(t, result, "a failed query must not produce a classification")

	var enhancedErr *errors.EnhancedError
	require.True(t, errors.As(err, &enhancedErr))
	assert.Equal(t, errors.CategoryStoreUnavailable, enhancedErr.Category)

	assert.Equal(t, 1, store.callCount(), "classification aborts on the first failure")
}

func TestClassifyDisabledGranularities(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Notify.FirstOfYear = false
	settings.Notify.FirstOfSeason = false

	store := &mockStore{}
	classifier, err := New(settings, store, nil)
	require.NoError(t, err)

	result, err := classifier.Classify(context.Background(), testNote(0.92))
	require.NoError(t, err)

	assert.Equal(t, []Granularity{FirstEver}, result.Flags)
	require.Len(t, store.calls, 1)
	assert.True(t, store.calls[0].since.IsZero())
}

func TestClassifyMalformedTimestamp(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	classifier, err := New(testSettings(), store, nil)
	require.NoError(t, err)

	note := testNote(0.92)
	note.Date = "12/05/2024"

	_, err = classifier.Classify(context.Background(), note)
	require.Error(t, err)

	var enhancedErr *errors.EnhancedError
	require.True(t, errors.As(err, &enhancedErr))
	assert.Equal(t, errors.CategoryValidation, enhancedErr.Category)
	assert.Equal(t, 0, store.callCount())
}

func TestClassifyWinterYearWrap(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	classifier, err := New(testSettings(), store, nil)
	require.NoError(t, err)

	note := testNote(0.92)
	note.Date = "2025-01-15"

	result, err := classifier.Classify(context.Background(), note)
	require.NoError(t, err)

	// January belongs to the winter that started the previous December.
	assert.Equal(t, "winter", result.Season)
	require.Len(t, store.calls, 3)
	assert.True(t, store.calls[1].since.Equal(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.Local)))
	assert.True(t, store.calls[2].since.Equal(time.Date(2024, time.December, 1, 0, 0, 0, 0, time.Local)))
}
