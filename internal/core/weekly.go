package core

import (
	"slices"
	"strings"
)

// AnomalyReason classifies records the aggregation could not place cleanly.
type AnomalyReason string

const (
	// AnomalyUnknownMeal marks a record skipped because its meal slot is not
	// one of morning, lunch or evening.
	AnomalyUnknownMeal AnomalyReason = "unknown_meal"
	// AnomalyOutsideWeekdays marks a record included under a day key that is
	// not one of the window's Monday..Friday dates.
	AnomalyOutsideWeekdays AnomalyReason = "outside_weekdays"
)

type (
	MealEntry struct {
		ID        string `json:"id"`
		Amount    int64  `json:"amount"`
		Meal      Meal   `json:"meal"`
		UserID    string `json:"userId"`
		UserEmail string `json:"userEmail"`
	}

	MealBuckets struct {
		Morning []MealEntry `json:"morning"`
		Lunch   []MealEntry `json:"lunch"`
		Evening []MealEntry `json:"evening"`
	}

	DayView struct {
		Total     int64       `json:"total"`
		Remaining int64       `json:"remaining"`
		Meals     MealBuckets `json:"meals"`
	}

	// WeeklyView is the per-day and per-week budget rollup. Days is keyed by
	// YYYY-MM-DD.
	WeeklyView struct {
		Total          int64              `json:"total"`
		Remaining      int64              `json:"remaining"`
		DailyRemaining int64              `json:"dailyRemaining"`
		Days           map[string]DayView `json:"days"`
	}

	Anomaly struct {
		RecordID string        `json:"recordId"`
		Date     string        `json:"date"`
		Meal     string        `json:"meal"`
		Reason   AnomalyReason `json:"reason"`
	}
)

func newDayView(dailyLimit int64) DayView {
	return DayView{
		Remaining: dailyLimit,
		Meals: MealBuckets{
			Morning: []MealEntry{},
			Lunch:   []MealEntry{},
			Evening: []MealEntry{},
		},
	}
}

func (b *MealBuckets) add(m Meal, e MealEntry) {
	switch m {
	case MealMorning:
		b.Morning = append(b.Morning, e)
	case MealLunch:
		b.Lunch = append(b.Lunch, e)
	case MealEvening:
		b.Evening = append(b.Evening, e)
	}
}

// Sum returns the total of all bucket amounts.
func (b MealBuckets) Sum() int64 {
	var total int64
	for _, bucket := range [][]MealEntry{b.Morning, b.Lunch, b.Evening} {
		for _, e := range bucket {
			total += e.Amount
		}
	}
	return total
}

// Aggregate folds records into the weekly view for window.
//
// Every weekday of the window gets an entry, even with no expenses. Records
// dated outside Monday..Friday of the window still get a day entry of their
// own and are reported as anomalies. Records with an unknown meal are skipped
// and reported. A negative amount aborts the whole aggregation with a
// *RecordError wrapping ErrNegativeAmount; an amount above MaxAmount does
// the same with ErrInvalidAmount.
//
// The result does not depend on the order of records: bucket entries are
// ordered by (CreatedAt, ID).
func Aggregate(window WeekWindow, records []Expense, settings Settings, today Date) (WeeklyView, []Anomaly, error) {
	if err := settings.Validate(); err != nil {
		return WeeklyView{}, nil, err
	}
	for _, r := range records {
		if r.Amount < 0 {
			return WeeklyView{}, nil, &RecordError{RecordID: r.ID, Err: ErrNegativeAmount}
		}
		if r.Amount > MaxAmount {
			return WeeklyView{}, nil, &RecordError{RecordID: r.ID, Err: ErrInvalidAmount}
		}
	}

	dailyLimit := settings.DailyLimit()
	days := make(map[string]DayView, len(window.Weekdays))
	for _, d := range window.Weekdays {
		days[d.String()] = newDayView(dailyLimit)
	}

	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b Expense) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	var anomalies []Anomaly
	for _, r := range sorted {
		key := r.Date.String()
		meal, err := ParseMeal(string(r.Meal))
		if err != nil {
			anomalies = append(anomalies, Anomaly{RecordID: r.ID, Date: key, Meal: string(r.Meal), Reason: AnomalyUnknownMeal})
			continue
		}

		day, ok := days[key]
		if !ok {
			day = newDayView(dailyLimit)
		}
		if !window.IsWeekday(r.Date) {
			anomalies = append(anomalies, Anomaly{RecordID: r.ID, Date: key, Meal: string(meal), Reason: AnomalyOutsideWeekdays})
		}

		day.Meals.add(meal, MealEntry{
			ID:        r.ID,
			Amount:    r.Amount,
			Meal:      meal,
			UserID:    r.UserID,
			UserEmail: r.DisplayEmail(),
		})
		day.Total += r.Amount
		day.Remaining = dailyLimit - day.Total
		days[key] = day
	}

	view := WeeklyView{Days: days}
	for _, d := range days {
		view.Total += d.Total
	}
	view.Remaining = settings.WeeklyLimit() - view.Total
	if d, ok := days[today.String()]; ok {
		view.DailyRemaining = d.Remaining
	}
	return view, anomalies, nil
}
