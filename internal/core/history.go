package core

import "time"

// DailyMeals is one day of per-meal spending, used as forecast input and
// output.
type DailyMeals struct {
	Date      Date         `json:"date"`
	Morning   int64        `json:"morning"`
	Lunch     int64        `json:"lunch"`
	Evening   int64        `json:"evening"`
	DayOfWeek time.Weekday `json:"dayOfWeek"`
}

func (d DailyMeals) Total() int64 { return d.Morning + d.Lunch + d.Evening }

// DailyHistory sums records per weekday in from..to inclusive. Every weekday
// in the range appears, zero-filled, in ascending date order. Records with an
// unknown meal or a negative amount are ignored.
func DailyHistory(records []Expense, from, to Date) []DailyMeals {
	index := make(map[string]int)
	var out []DailyMeals
	for d := from; !d.After(to); d = d.AddDays(1) {
		if !d.IsWeekday() {
			continue
		}
		index[d.String()] = len(out)
		out = append(out, DailyMeals{Date: d, DayOfWeek: d.Weekday()})
	}

	for _, r := range records {
		i, ok := index[r.Date.String()]
		if !ok || r.Amount < 0 {
			continue
		}
		meal, err := ParseMeal(string(r.Meal))
		if err != nil {
			continue
		}
		switch meal {
		case MealMorning:
			out[i].Morning += r.Amount
		case MealLunch:
			out[i].Lunch += r.Amount
		case MealEvening:
			out[i].Evening += r.Amount
		}
	}
	return out
}
