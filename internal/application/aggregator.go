package application

import (
	"context"
	"sort"
	"time"

	"github.com/twilman/twilman/internal/domain/model"
)

// Combine unions the given result sets, deduplicating by provider SID
// (a record fetched in both the "to" and "from" direction is kept once),
// and orders the result by timestamp descending. Ties are broken by SID
// ascending so identical inputs always produce identical output, in any
// argument order.
func Combine(sets ...[]model.ActivityRecord) []model.ActivityRecord {
	seen := map[string]bool{}
	combined := []model.ActivityRecord{}
	for _, set := range sets {
		for _, rec := range set {
			if seen[rec.SID] {
				continue
			}
			seen[rec.SID] = true
			combined = append(combined, rec)
		}
	}

	sort.Slice(combined, func(i, j int) bool {
		if !combined[i].Timestamp.Equal(combined[j].Timestamp) {
			return combined[i].Timestamp.After(combined[j].Timestamp)
		}
		return combined[i].SID < combined[j].SID
	})
	return combined
}

// ActivityLookup returns all activity for a number, both directions.
type ActivityLookup func(ctx context.Context, number string) ([]model.ActivityRecord, error)

// FindInactive reports every number whose most recent activity is older
// than thresholdDays before now, or that has no activity at all (reported
// with a nil last-activity timestamp). Activity exactly thresholdDays old
// still counts as active. Any lookup failure aborts the scan and
// propagates unchanged.
func FindInactive(
	ctx context.Context,
	numbers []model.OwnedNumber,
	lookup ActivityLookup,
	thresholdDays int,
	now time.Time,
) ([]model.InactiveNumber, error) {
	cutoff := now.AddDate(0, 0, -thresholdDays)

	inactive := []model.InactiveNumber{}
	for _, num := range numbers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := lookup(ctx, num.PhoneNumber)
		if err != nil {
			return nil, err
		}

		var last time.Time
		var calls, messages int
		for _, rec := range records {
			if rec.Timestamp.After(last) {
				last = rec.Timestamp
			}
			switch rec.Kind {
			case model.KindCall:
				calls++
			case model.KindMessage:
				messages++
			}
		}

		if !last.IsZero() && !last.Before(cutoff) {
			continue
		}

		entry := model.InactiveNumber{
			Number:       num,
			CallCount:    calls,
			MessageCount: messages,
		}
		if !last.IsZero() {
			t := last
			entry.LastActivity = &t
		}
		inactive = append(inactive, entry)
	}
	return inactive, nil
}
