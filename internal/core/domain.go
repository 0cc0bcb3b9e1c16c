package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MealMorning Meal = "morning"
	MealLunch   Meal = "lunch"
	MealEvening Meal = "evening"
)

// DateLayout is the canonical calendar-date encoding used for day keys,
// storage columns and JSON.
const DateLayout = "2006-01-02"

type (
	Meal string

	// Date is a calendar date held at UTC midnight so that keys never shift
	// with the server time zone.
	Date struct {
		time.Time
	}

	Expense struct {
		ID        string    `json:"id"`
		Date      Date      `json:"date"`
		Meal      Meal      `json:"meal"`
		Amount    int64     `json:"amount"`
		UserID    string    `json:"userId"`
		UserEmail string    `json:"userEmail"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// ExpensePatch carries the editable fields of an expense. Nil fields are
	// left untouched.
	ExpensePatch struct {
		Date   *Date  `json:"date,omitempty"`
		Meal   *Meal  `json:"meal,omitempty"`
		Amount *int64 `json:"amount,omitempty"`
	}

	Settings struct {
		NumberOfPeople      int   `json:"numberOfPeople"`
		DailyLimitPerPerson int64 `json:"dailyLimitPerPerson"`
	}

	User struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		DisplayName  string    `json:"displayName"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"createdAt"`
	}
)

// UnknownUser labels records that were stored without an email.
const UnknownUser = "Unknown User"

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrWeekendDate     = errors.New("expenses can only be recorded on weekdays")
	ErrUnknownMeal     = errors.New("unknown meal")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("negative amount")
	ErrInvalidSettings = errors.New("invalid settings")
)

// RecordError ties a validation failure to the record that caused it.
type RecordError struct {
	RecordID string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %q: %v", e.RecordID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Meals returns the meal slots in display order.
func Meals() []Meal {
	return []Meal{MealMorning, MealLunch, MealEvening}
}

// ParseMeal normalizes user or storage input. "dinner" is accepted as a
// legacy spelling of evening.
func ParseMeal(s string) (Meal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "morning":
		return MealMorning, nil
	case "lunch":
		return MealLunch, nil
	case "evening", "dinner":
		return MealEvening, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMeal, s)
}

func (m Meal) Valid() bool {
	switch m {
	case MealMorning, MealLunch, MealEvening:
		return true
	}
	return false
}

func (m Meal) String() string { return string(m) }

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as observed in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// IsWeekday reports whether d falls Monday through Friday.
func (d Date) IsWeekday() bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

// Validate enforces the rules applied when a record is created or edited.
func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if !e.Date.IsWeekday() {
		return ErrWeekendDate
	}
	if !e.Meal.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMeal, e.Meal)
	}
	if e.Amount < 0 {
		return ErrNegativeAmount
	}
	if e.Amount > MaxAmount {
		return fmt.Errorf("%w: must be at most %d", ErrInvalidAmount, MaxAmount)
	}
	return nil
}

// DisplayEmail falls back to UnknownUser for records without an email.
func (e Expense) DisplayEmail() string {
	if strings.TrimSpace(e.UserEmail) == "" {
		return UnknownUser
	}
	return e.UserEmail
}

func (p ExpensePatch) Empty() bool {
	return p.Date == nil && p.Meal == nil && p.Amount == nil
}

// Apply returns a copy of e with the patch fields set.
func (p ExpensePatch) Apply(e Expense) Expense {
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Meal != nil {
		e.Meal = *p.Meal
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	return e
}

// DefaultSettings is returned when no configuration has been saved yet.
func DefaultSettings() Settings {
	return Settings{NumberOfPeople: 1, DailyLimitPerPerson: 200}
}

// MaxPeople bounds NumberOfPeople so that WeeklyLimit cannot overflow.
const MaxPeople = 10_000

func (s Settings) Validate() error {
	if s.NumberOfPeople < 1 || s.NumberOfPeople > MaxPeople {
		return fmt.Errorf("%w: number of people must be between 1 and %d", ErrInvalidSettings, MaxPeople)
	}
	if s.DailyLimitPerPerson < 0 {
		return fmt.Errorf("%w: daily limit per person cannot be negative", ErrInvalidSettings)
	}
	if s.DailyLimitPerPerson > MaxAmount {
		return fmt.Errorf("%w: daily limit per person must be at most %d", ErrInvalidSettings, MaxAmount)
	}
	return nil
}

func (s Settings) DailyLimit() int64 {
	return int64(s.NumberOfPeople) * s.DailyLimitPerPerson
}

// WeeklyLimit covers the five working days.
func (s Settings) WeeklyLimit() int64 {
	return s.DailyLimit() * 5
}
