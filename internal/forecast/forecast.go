// Package forecast predicts near-future daily meal spending from recent
// history. Forecasts are advisory: callers treat failures as "no forecast".
package forecast

import (
	"context"
	"errors"

	"foodbudget/internal/core"
)

const (
	// SequenceLength is the number of trailing days each prediction looks at.
	SequenceLength = 5
	// DefaultDays is the horizon used when the caller does not ask for one.
	DefaultDays = 2
	// HistoryDays is how far back callers should collect history.
	HistoryDays = 30
	// MaxDays caps the horizon, in calendar days.
	MaxDays = 30
)

var (
	ErrInsufficientHistory = errors.New("not enough history to forecast")
	ErrInvalidHorizon      = errors.New("forecast horizon out of range")
)

// Forecaster predicts the next days following history. history must be
// sorted by date ascending. The horizon counts calendar days after the last
// history date; weekend slots are dropped from the result.
type Forecaster interface {
	PredictNextDays(ctx context.Context, history []core.DailyMeals, days int) ([]core.DailyMeals, error)
}
