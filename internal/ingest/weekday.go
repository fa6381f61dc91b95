package ingest

import (
	"time"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/model"
)

// MealType labels a time of day:
//
//	05:00–10:59 Breakfast
//	11:00–13:59 Lunch
//	14:00–16:59 Snack
//	17:00–20:59 Dinner
//	otherwise   Late Night Snack
//
// A key with no real time-of-day gets "On <Weekday>" instead.
func MealType(k DateKey, loc *time.Location) string {
	t := k.In(loc)
	if k.IsDateOnly(loc) {
		return "On " + t.Weekday().String()
	}
	switch h := t.Hour(); {
	case h >= 5 && h < 11:
		return "Breakfast"
	case h >= 11 && h < 14:
		return "Lunch"
	case h >= 14 && h < 17:
		return "Snack"
	case h >= 17 && h < 21:
		return "Dinner"
	default:
		return "Late Night Snack"
	}
}

// SameWeekday returns every record whose day of week, in loc, equals the day
// of week of now in loc. Each returned food carries the mealType derived from
// its record's key, overriding whatever the model supplied. Records are
// newest first.
//
// An empty selection is apperror.ErrNotFound: "nothing logged on a
// <weekday>" is an answer the caller shows, not an empty success.
func SameWeekday(ledger model.Ledger, now time.Time, loc *time.Location) ([]model.DatedRecord, error) {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc).Weekday()

	days := selectDaysIn(ledger, loc, func(k DateKey) bool {
		return k.In(loc).Weekday() == today
	})
	if len(days) == 0 {
		return nil, apperror.NotFound("records for weekday", today.String())
	}

	out := make([]model.DatedRecord, 0, len(days))
	for _, d := range days {
		label := MealType(d.key, loc)
		foods := make([]model.FoodItem, len(d.record.Foods))
		for i, f := range d.record.Foods {
			f.MealType = label
			foods[i] = f
		}
		out = append(out, model.DatedRecord{
			Date:    d.key.Raw,
			Foods:   foods,
			Summary: d.record.Summary,
		})
	}
	return out, nil
}
