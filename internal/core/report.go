package core

import (
	"encoding/json"
	"fmt"
)

// ExportReport renders view as indented JSON. Day keys come out sorted so
// the same view always produces the same bytes.
func ExportReport(view WeeklyView) ([]byte, error) {
	b, err := json.MarshalIndent(normalizeView(view), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return b, nil
}

// ParseReport reads a report produced by ExportReport.
func ParseReport(data []byte) (WeeklyView, error) {
	var view WeeklyView
	if err := json.Unmarshal(data, &view); err != nil {
		return WeeklyView{}, fmt.Errorf("parse report: %w", err)
	}
	return normalizeView(view), nil
}

// ReportFilename names the export after the month of d.
func ReportFilename(d Date) string {
	return fmt.Sprintf("expense-report-%s.json", d.Format("2006-01"))
}

// normalizeView replaces nil collections so they encode as [] and {}.
func normalizeView(v WeeklyView) WeeklyView {
	days := make(map[string]DayView, len(v.Days))
	for k, d := range v.Days {
		if d.Meals.Morning == nil {
			d.Meals.Morning = []MealEntry{}
		}
		if d.Meals.Lunch == nil {
			d.Meals.Lunch = []MealEntry{}
		}
		if d.Meals.Evening == nil {
			d.Meals.Evening = []MealEntry{}
		}
		days[k] = d
	}
	v.Days = days
	return v
}
