package ingest

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sakif/intake-tracker/internal/model"
)

// totals is the float accumulator behind every summary.
type totals struct {
	calories, protein, carbs, fat float64
}

func (t *totals) add(f model.FoodItem) {
	t.calories += parseAmount(f.Calories)
	t.protein += parseAmount(f.Protein)
	t.carbs += parseAmount(f.Carbs)
	t.fat += parseAmount(f.Fat)
}

// Summarize sums each nutrient over foods.
//
// No rounding happens anywhere: each sum is written with the shortest
// decimal representation that round-trips (0.1+0.2 → "0.30000000000000004",
// 300 → "300"). The stored per-day summary keeps that formatting; only the
// monthly view rounds.
func Summarize(foods []model.FoodItem) model.Summary {
	var t totals
	for _, f := range foods {
		t.add(f)
	}
	return model.Summary{
		Calories: formatFloat(t.calories),
		Protein:  formatFloat(t.protein),
		Carbs:    formatFloat(t.carbs),
		Fat:      formatFloat(t.fat),
	}
}

// Resummarize recomputes the summary of every day in ledger, in place.
func Resummarize(ledger model.Ledger) {
	for key, rec := range ledger {
		rec.Summary = Summarize(rec.Foods)
		ledger[key] = rec
	}
}

// Monthly aggregates every day of ledger falling in the given UTC year/month.
//
// Output:
//   - DailyIntakes: the selected records as stored, newest first (ordered by
//     instant, not by key text);
//   - Total: the sum over all selected foods, two decimals;
//   - Average: Total divided by the number of selected days, two decimals;
//     with no days every average field is "0".
//
// Keys that do not parse as dates are skipped.
func Monthly(ledger model.Ledger, year int, month time.Month) model.MonthlySummary {
	days := selectDays(ledger, func(k DateKey) bool {
		t := k.In(time.UTC)
		return t.Year() == year && t.Month() == month
	})

	var t totals
	intakes := make([]model.DatedRecord, 0, len(days))
	for _, d := range days {
		for _, f := range d.record.Foods {
			t.add(f)
		}
		intakes = append(intakes, model.DatedRecord{
			Date:    d.key.Raw,
			Foods:   d.record.Foods,
			Summary: d.record.Summary,
		})
	}

	average := model.Summary{Calories: "0", Protein: "0", Carbs: "0", Fat: "0"}
	if n := float64(len(days)); n > 0 {
		average = model.Summary{
			Calories: fixed2(t.calories / n),
			Protein:  fixed2(t.protein / n),
			Carbs:    fixed2(t.carbs / n),
			Fat:      fixed2(t.fat / n),
		}
	}

	return model.MonthlySummary{
		Month:        fmt.Sprintf("%04d-%02d", year, int(month)),
		DailyIntakes: intakes,
		OverallSummary: model.OverallSummary{
			Total: model.Summary{
				Calories: fixed2(t.calories),
				Protein:  fixed2(t.protein),
				Carbs:    fixed2(t.carbs),
				Fat:      fixed2(t.fat),
			},
			Average: average,
		},
	}
}

// MonthlyCalories is the leaderboard's view of Monthly: total calories and
// the number of days counted, unformatted.
func MonthlyCalories(ledger model.Ledger, year int, month time.Month) (float64, int) {
	days := selectDays(ledger, func(k DateKey) bool {
		t := k.In(time.UTC)
		return t.Year() == year && t.Month() == month
	})
	var t totals
	for _, d := range days {
		for _, f := range d.record.Foods {
			t.add(f)
		}
	}
	return t.calories, len(days)
}

type datedDay struct {
	key    DateKey
	record model.DailyRecord
}

// selectDays returns the records whose key satisfies keep, newest first.
// Zone-less keys are read as UTC.
func selectDays(ledger model.Ledger, keep func(DateKey) bool) []datedDay {
	return selectDaysIn(ledger, time.UTC, keep)
}

func selectDaysIn(ledger model.Ledger, loc *time.Location, keep func(DateKey) bool) []datedDay {
	days := make([]datedDay, 0)
	for raw, rec := range ledger {
		k, err := ParseDateKey(raw, loc)
		if err != nil || !keep(k) {
			continue
		}
		days = append(days, datedDay{key: k, record: rec})
	}
	sort.Slice(days, func(i, j int) bool {
		ti, tj := days[i].key.Instant, days[j].key.Instant
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return days[i].key.Raw > days[j].key.Raw
	})
	return days
}

// parseAmount reads the leading decimal number of s, the way a lenient
// number parser would: "250", "12.5g" and " 3e2 " all work; text with no
// leading number counts as 0.
func parseAmount(s string) float64 {
	s = trimLeftSpace(s)
	end := numericPrefix(s)
	if end == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return v
}

func trimLeftSpace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return s[i:]
}

// numericPrefix returns the length of the longest prefix of s shaped like
// [+-]digits[.digits][e[+-]digits].
func numericPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits > 0 || frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		exp := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			exp++
		}
		if exp > 0 {
			i = j
		}
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// fixed2 formats v with exactly two decimals.
func fixed2(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return formatFloat(v)
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}
