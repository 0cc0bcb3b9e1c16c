package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseMeal(t *testing.T) {
	cases := []struct {
		in   string
		want Meal
		ok   bool
	}{
		{"morning", MealMorning, true},
		{"Lunch", MealLunch, true},
		{" evening ", MealEvening, true},
		{"dinner", MealEvening, true},
		{"brunch", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseMeal(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: expected %q, got %q (err=%v)", tc.in, tc.want, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrUnknownMeal) {
			t.Fatalf("%q: expected ErrUnknownMeal, got %v", tc.in, err)
		}
	}
}

func TestDateJSON(t *testing.T) {
	d := NewDate(2024, 3, 4)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"2024-03-04"` {
		t.Fatalf("unexpected encoding %s", b)
	}
	var back Date
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(d) {
		t.Fatalf("expected %s, got %s", d, back)
	}
	if err := json.Unmarshal([]byte(`"04/03/2024"`), &back); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestDateOfKeepsCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 23:30 local on March 4th is still March 4th, even though UTC is earlier.
	ts := time.Date(2024, 3, 4, 23, 30, 0, 0, loc)
	if got := DateOf(ts).String(); got != "2024-03-04" {
		t.Fatalf("expected 2024-03-04, got %s", got)
	}
	if got := Today(ts.UTC(), loc).String(); got != "2024-03-04" {
		t.Fatalf("expected 2024-03-04 in loc, got %s", got)
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{ID: "a", Date: NewDate(2024, 3, 4), Meal: MealLunch, Amount: 150}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		e    Expense
		want error
	}{
		{"zero date", Expense{Meal: MealLunch, Amount: 1}, ErrInvalidDate},
		{"saturday", Expense{Date: NewDate(2024, 3, 9), Meal: MealLunch, Amount: 1}, ErrWeekendDate},
		{"sunday", Expense{Date: NewDate(2024, 3, 10), Meal: MealLunch, Amount: 1}, ErrWeekendDate},
		{"unknown meal", Expense{Date: NewDate(2024, 3, 4), Meal: "snack", Amount: 1}, ErrUnknownMeal},
		{"negative", Expense{Date: NewDate(2024, 3, 4), Meal: MealMorning, Amount: -1}, ErrNegativeAmount},
		{"above max", Expense{Date: NewDate(2024, 3, 4), Meal: MealMorning, Amount: MaxAmount + 1}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.e.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestExpensePatchApply(t *testing.T) {
	e := Expense{ID: "x", Date: NewDate(2024, 3, 4), Meal: MealMorning, Amount: 10}
	amount := int64(40)
	meal := MealEvening
	got := ExpensePatch{Meal: &meal, Amount: &amount}.Apply(e)
	if got.Meal != MealEvening || got.Amount != 40 || !got.Date.Equal(e.Date) || got.ID != "x" {
		t.Fatalf("unexpected patched expense %+v", got)
	}
	if !(ExpensePatch{}).Empty() {
		t.Fatal("zero patch should be empty")
	}
}

func TestSettings(t *testing.T) {
	s := Settings{NumberOfPeople: 3, DailyLimitPerPerson: 150}
	if s.DailyLimit() != 450 || s.WeeklyLimit() != 2250 {
		t.Fatalf("unexpected limits %d/%d", s.DailyLimit(), s.WeeklyLimit())
	}
	if d := DefaultSettings(); d.NumberOfPeople != 1 || d.DailyLimitPerPerson != 200 {
		t.Fatalf("unexpected defaults %+v", d)
	}
	if largest := (Settings{NumberOfPeople: MaxPeople, DailyLimitPerPerson: MaxAmount}); largest.Validate() != nil || largest.WeeklyLimit() <= 0 {
		t.Fatalf("largest settings should validate without overflow, got %d", largest.WeeklyLimit())
	}
	for _, bad := range []Settings{
		{NumberOfPeople: 0, DailyLimitPerPerson: 10},
		{NumberOfPeople: 1, DailyLimitPerPerson: -1},
		{NumberOfPeople: 2, DailyLimitPerPerson: 1 << 62},
		{NumberOfPeople: MaxPeople + 1, DailyLimitPerPerson: 1},
	} {
		if err := bad.Validate(); !errors.Is(err, ErrInvalidSettings) {
			t.Fatalf("%+v: expected ErrInvalidSettings, got %v", bad, err)
		}
	}
}

func TestDisplayEmail(t *testing.T) {
	if got := (Expense{}).DisplayEmail(); got != UnknownUser {
		t.Fatalf("expected %q, got %q", UnknownUser, got)
	}
	if got := (Expense{UserEmail: "a@b.c"}).DisplayEmail(); got != "a@b.c" {
		t.Fatalf("unexpected %q", got)
	}
}
