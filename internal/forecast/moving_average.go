package forecast

import (
	"context"
	"fmt"
	"math"

	"foodbudget/internal/core"
)

// MovingAverage blends the per-meal mean of the trailing window with the
// mean of past days that fall on the same weekday. Each predicted day is
// appended to the series so later days see it.
type MovingAverage struct {
	// Window defaults to SequenceLength.
	Window int
	// WeekdayWeight is the share given to the same-weekday mean, 0..1.
	// Zero means 0.5.
	WeekdayWeight float64
}

var _ Forecaster = MovingAverage{}

func (m MovingAverage) window() int {
	if m.Window > 0 {
		return m.Window
	}
	return SequenceLength
}

func (m MovingAverage) weight() float64 {
	if m.WeekdayWeight <= 0 || m.WeekdayWeight > 1 {
		return 0.5
	}
	return m.WeekdayWeight
}

func (m MovingAverage) PredictNextDays(ctx context.Context, history []core.DailyMeals, days int) ([]core.DailyMeals, error) {
	if days <= 0 || days > MaxDays {
		return nil, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidHorizon, days, MaxDays)
	}
	n := m.window()
	if len(history) < n+1 {
		return nil, fmt.Errorf("%w: have %d days, need %d", ErrInsufficientHistory, len(history), n+1)
	}

	series := make([]core.DailyMeals, len(history), len(history)+days)
	copy(series, history)
	last := history[len(history)-1].Date

	var out []core.DailyMeals
	for i := 1; i <= days; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := last.AddDays(i)
		if !next.IsWeekday() {
			continue
		}
		p := m.predict(series, next)
		out = append(out, p)
		series = append(series, p)
	}
	return out, nil
}

func (m MovingAverage) predict(series []core.DailyMeals, date core.Date) core.DailyMeals {
	recent := series[len(series)-m.window():]
	rm, rl, re := means(recent, func(core.DailyMeals) bool { return true })

	wd := date.Weekday()
	wm, wl, we := means(series, func(d core.DailyMeals) bool { return d.DayOfWeek == wd })
	w := m.weight()
	if math.IsNaN(wm) {
		w = 0
		wm, wl, we = 0, 0, 0
	}

	return core.DailyMeals{
		Date:      date,
		Morning:   blend(rm, wm, w),
		Lunch:     blend(rl, wl, w),
		Evening:   blend(re, we, w),
		DayOfWeek: wd,
	}
}

// means returns the per-meal averages of the days matching keep, or NaN
// when none match.
func means(days []core.DailyMeals, keep func(core.DailyMeals) bool) (morning, lunch, evening float64) {
	var count int
	for _, d := range days {
		if !keep(d) {
			continue
		}
		count++
		morning += float64(d.Morning)
		lunch += float64(d.Lunch)
		evening += float64(d.Evening)
	}
	if count == 0 {
		nan := math.NaN()
		return nan, nan, nan
	}
	c := float64(count)
	return morning / c, lunch / c, evening / c
}

func blend(recent, weekday, w float64) int64 {
	v := math.Round((1-w)*recent + w*weekday)
	if v < 0 {
		return 0
	}
	return int64(v)
}
