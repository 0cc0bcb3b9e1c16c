package core

import (
	"testing"
	"time"
)

func TestWeekOf(t *testing.T) {
	// 2024-03-04 is a Monday.
	cases := []struct {
		ref   Date
		start string
		end   string
	}{
		{NewDate(2024, 3, 4), "2024-03-04", "2024-03-10"},
		{NewDate(2024, 3, 6), "2024-03-04", "2024-03-10"},
		{NewDate(2024, 3, 9), "2024-03-04", "2024-03-10"},
		{NewDate(2024, 3, 10), "2024-03-04", "2024-03-10"},
		{NewDate(2024, 3, 11), "2024-03-11", "2024-03-17"},
		{NewDate(2024, 1, 1), "2024-01-01", "2024-01-07"},
		{NewDate(2023, 12, 31), "2023-12-25", "2023-12-31"},
		{NewDate(2024, 2, 29), "2024-02-26", "2024-03-03"},
	}
	for _, tc := range cases {
		w := WeekOf(tc.ref)
		if w.Start.String() != tc.start || w.End.String() != tc.end {
			t.Fatalf("%s: expected %s..%s, got %s..%s", tc.ref, tc.start, tc.end, w.Start, w.End)
		}
		if w.Start.Weekday() != time.Monday || w.End.Weekday() != time.Sunday {
			t.Fatalf("%s: window not Monday..Sunday", tc.ref)
		}
		if !w.Contains(tc.ref) {
			t.Fatalf("%s: window does not contain its reference", tc.ref)
		}
	}
}

func TestWeekOfWeekdays(t *testing.T) {
	w := WeekOf(NewDate(2024, 3, 7))
	want := []string{"2024-03-04", "2024-03-05", "2024-03-06", "2024-03-07", "2024-03-08"}
	for i, d := range w.Weekdays {
		if d.String() != want[i] {
			t.Fatalf("weekday %d: expected %s, got %s", i, want[i], d)
		}
	}
	if w.IsWeekday(NewDate(2024, 3, 9)) {
		t.Fatal("saturday reported as window weekday")
	}
	if w.Contains(NewDate(2024, 3, 11)) || w.Contains(NewDate(2024, 3, 3)) {
		t.Fatal("window contains neighbouring week")
	}
}

func TestWeekNavigation(t *testing.T) {
	w := WeekOf(NewDate(2024, 3, 6))
	if got := w.Prev().Start.String(); got != "2024-02-26" {
		t.Fatalf("prev: got %s", got)
	}
	if got := w.Next().Start.String(); got != "2024-03-11" {
		t.Fatalf("next: got %s", got)
	}
}
