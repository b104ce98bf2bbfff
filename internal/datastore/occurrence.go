// occurrence.go: prior-occurrence lookups and windowed summary aggregates
package datastore

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tphakala/birdnet-notifier/internal/errors"
)

// speciesTallyScan receives grouped species rows before the first_seen
// string is parsed back into a time.Time.
type speciesTallyScan struct {
	ScientificName string
	CommonName     string
	Count          int
	FirstSeen      string
}

func (s *speciesTallyScan) toTally() SpeciesTally {
	tally := SpeciesTally{
		ScientificName: s.ScientificName,
		CommonName:     s.CommonName,
		Count:          s.Count,
	}
	// Stored values are local wall clock strings
	if t, err := time.ParseInLocation(dateTimeLayout, s.FirstSeen, time.Local); err == nil {
		tally.FirstSeen = t
	}
	return tally
}

// windowScope narrows a query to detections in [start, end). The split
// date and time predicates keep the date index usable; the OR branches
// need explicit parentheses so GORM does not re-group them.
func windowScope(q *gorm.DB, start, end time.Time) *gorm.DB {
	startDate, startTime := SplitDateTime(start)
	endDate, endTime := SplitDateTime(end)
	return q.
		Where("(date > ? OR (date = ? AND time >= ?))", startDate, startDate, startTime).
		Where("(date < ? OR (date = ? AND time < ?))", endDate, endDate, endTime)
}

// HasPriorOccurrence reports whether the species was detected strictly
// before the given instant. A zero since means all time; a non-zero
// since additionally requires the occurrence to fall at or after it,
// which scopes the lookup to the current year or season.
//
// Confidence is deliberately not filtered here: once a detection has
// been accepted, any stored record of the species counts as a prior
// occurrence.
func (ds *DataStore) HasPriorOccurrence(ctx context.Context, scientificName string, before, since time.Time) (bool, error) {
	if scientificName == "" {
		return false, validationError("scientific name cannot be empty", "scientific_name", "")
	}

	beforeDate, beforeTime := SplitDateTime(before)
	query := ds.DB.WithContext(ctx).Model(&Note{}).
		Where("scientific_name = ?", scientificName).
		Where("(date < ? OR (date = ? AND time < ?))", beforeDate, beforeDate, beforeTime)

	if !since.IsZero() {
		sinceDate, sinceTime := SplitDateTime(since)
		query = query.Where("(date > ? OR (date = ? AND time >= ?))", sinceDate, sinceDate, sinceTime)
	}

	var count int64
	if err := query.Limit(1).Count(&count).Error; err != nil {
		return false, dbError(err, "has_prior_occurrence", errors.PriorityHigh,
			"species", scientificName,
			"before", before.Format(dateTimeLayout))
	}
	return count > 0, nil
}

// CountDetections returns the number of detections in [start, end).
func (ds *DataStore) CountDetections(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := windowScope(ds.DB.WithContext(ctx).Model(&Note{}), start, end).
		Count(&count).Error
	if err != nil {
		return 0, dbError(err, "count_detections", errors.PriorityMedium,
			"start", start.Format(dateTimeLayout),
			"end", end.Format(dateTimeLayout))
	}
	return count, nil
}

// CountDistinctSpecies returns the number of distinct species detected
// in [start, end).
func (ds *DataStore) CountDistinctSpecies(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := windowScope(ds.DB.WithContext(ctx).Model(&Note{}), start, end).
		Distinct("scientific_name").
		Count(&count).Error
	if err != nil {
		return 0, dbError(err, "count_distinct_species", errors.PriorityMedium,
			"start", start.Format(dateTimeLayout),
			"end", end.Format(dateTimeLayout))
	}
	return count, nil
}

// TopSpecies returns the most frequently detected species in
// [start, end), at most limit entries. Ties on count are broken by the
// earliest first detection in the window, then by scientific name, so
// repeated runs over the same data produce the same list.
func (ds *DataStore) TopSpecies(ctx context.Context, start, end time.Time, limit int) ([]SpeciesTally, error) {
	if limit <= 0 {
		return []SpeciesTally{}, nil
	}

	dt := ds.GetDateTimeExpr()
	var rows []speciesTallyScan
	err := windowScope(ds.DB.WithContext(ctx).Model(&Note{}), start, end).
		Select("scientific_name, MAX(common_name) AS common_name, COUNT(*) AS count, MIN(" + dt + ") AS first_seen").
		Group("scientific_name").
		Order("count DESC, first_seen ASC, scientific_name ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "top_species", errors.PriorityMedium,
			"start", start.Format(dateTimeLayout),
			"end", end.Format(dateTimeLayout),
			"limit", limit)
	}

	tallies := make([]SpeciesTally, 0, len(rows))
	for i := range rows {
		tallies = append(tallies, rows[i].toTally())
	}
	return tallies, nil
}

// HourlyCounts returns detection counts in [start, end) bucketed by the
// local hour of day. Windows longer than a day fold onto the same 24
// buckets.
func (ds *DataStore) HourlyCounts(ctx context.Context, start, end time.Time) ([24]int, error) {
	var counts [24]int
	hourExpr := ds.GetHourFormat()

	var rows []struct {
		Hour  string
		Count int
	}
	err := windowScope(ds.DB.WithContext(ctx).Model(&Note{}), start, end).
		Select(hourExpr + " AS hour, COUNT(*) AS count").
		Group("hour").
		Scan(&rows).Error
	if err != nil {
		return counts, dbError(err, "hourly_counts", errors.PriorityMedium,
			"start", start.Format(dateTimeLayout),
			"end", end.Format(dateTimeLayout))
	}

	for _, row := range rows {
		hour, err := strconv.Atoi(row.Hour)
		if err != nil || hour < 0 || hour > 23 {
			continue
		}
		counts[hour] = row.Count
	}
	return counts, nil
}

// NewSpeciesInWindow returns species whose first detection ever falls in
// [start, end), ordered by that first detection. The count covers only
// detections inside the window, so historical windows stay accurate even
// when the species kept appearing afterwards.
func (ds *DataStore) NewSpeciesInWindow(ctx context.Context, start, end time.Time) ([]SpeciesTally, error) {
	dt := ds.GetDateTimeExpr()
	startStr := start.In(time.Local).Format(dateTimeLayout)
	endStr := end.In(time.Local).Format(dateTimeLayout)

	var rows []speciesTallyScan
	err := ds.DB.WithContext(ctx).Model(&Note{}).
		Select("scientific_name, MAX(common_name) AS common_name, "+
			"SUM(CASE WHEN "+dt+" >= ? AND "+dt+" < ? THEN 1 ELSE 0 END) AS count, "+
			"MIN("+dt+") AS first_seen", startStr, endStr).
		Group("scientific_name").
		Having("MIN("+dt+") >= ? AND MIN("+dt+") < ?", startStr, endStr).
		Order("first_seen ASC, scientific_name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "new_species_in_window", errors.PriorityMedium,
			"start", startStr,
			"end", endStr)
	}

	tallies := make([]SpeciesTally, 0, len(rows))
	for i := range rows {
		tallies = append(tallies, rows[i].toTally())
	}
	return tallies, nil
}

// SummaryWindow collects all aggregates for a summary over [start, end)
// in one call. The five underlying queries run concurrently; the first
// error cancels the rest.
func (ds *DataStore) SummaryWindow(ctx context.Context, start, end time.Time, topN int) (*SummaryData, error) {
	if !end.After(start) {
		return nil, validationError("window end must be after start", "window",
			start.Format(dateTimeLayout)+" .. "+end.Format(dateTimeLayout))
	}

	summary := &SummaryData{Start: start, End: end}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		total, err := ds.CountDetections(gctx, start, end)
		if err != nil {
			return err
		}
		summary.TotalDetections = total
		return nil
	})

	g.Go(func() error {
		distinct, err := ds.CountDistinctSpecies(gctx, start, end)
		if err != nil {
			return err
		}
		summary.SpeciesCount = distinct
		return nil
	})

	g.Go(func() error {
		top, err := ds.TopSpecies(gctx, start, end, topN)
		if err != nil {
			return err
		}
		summary.TopSpecies = top
		return nil
	})

	g.Go(func() error {
		hourly, err := ds.HourlyCounts(gctx, start, end)
		if err != nil {
			return err
		}
		summary.HourlyCounts = hourly
		return nil
	})

	g.Go(func() error {
		fresh, err := ds.NewSpeciesInWindow(gctx, start, end)
		if err != nil {
			return err
		}
		summary.NewSpecies = fresh
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}
