package core

import "time"

// WeekWindow is the Monday..Sunday span containing a reference date.
// Weekdays lists Monday through Friday in order.
type WeekWindow struct {
	Start    Date
	End      Date
	Weekdays [5]Date
}

// WeekOf resolves the week window of ref. It has no notion of "now": callers
// that forbid future weeks compare windows themselves.
func WeekOf(ref Date) WeekWindow {
	// Sunday is 0 in time.Weekday; shift so Monday is 0.
	offset := (int(ref.Weekday()) + 6) % 7
	start := DateOf(ref.Time).AddDays(-offset)

	w := WeekWindow{Start: start, End: start.AddDays(6)}
	for i := range w.Weekdays {
		w.Weekdays[i] = start.AddDays(i)
	}
	return w
}

// Contains reports whether d lies within Start..End, inclusive.
func (w WeekWindow) Contains(d Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// IsWeekday reports whether d is one of the window's Monday..Friday dates.
func (w WeekWindow) IsWeekday(d Date) bool {
	for _, wd := range w.Weekdays {
		if wd.Equal(d) {
			return true
		}
	}
	return false
}

func (w WeekWindow) Prev() WeekWindow { return WeekOf(w.Start.AddDays(-7)) }

func (w WeekWindow) Next() WeekWindow { return WeekOf(w.Start.AddDays(7)) }

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) Date {
	if loc != nil {
		now = now.In(loc)
	}
	return DateOf(now)
}
