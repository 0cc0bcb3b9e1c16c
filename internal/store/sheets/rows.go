package sheets

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"foodbudget/internal/core"
)

func expenseToRow(e core.Expense) []any {
	return []any{
		e.ID,
		e.Date.String(),
		string(e.Meal),
		e.Amount,
		e.UserID,
		e.UserEmail,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// rowToExpense parses one A..G row. The meal is kept as stored so the
// aggregation can report unknown values; negative amounts are kept too.
func rowToExpense(cols []string) (core.Expense, error) {
	if len(cols) < 4 {
		return core.Expense{}, fmt.Errorf("short row: %d columns", len(cols))
	}
	id := strings.TrimSpace(cols[0])
	if id == "" {
		return core.Expense{}, fmt.Errorf("missing id")
	}
	date, err := core.ParseDate(cols[1])
	if err != nil {
		return core.Expense{}, err
	}
	amount, err := parseAmountCell(cols[3])
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		ID:     id,
		Date:   date,
		Meal:   core.Meal(strings.ToLower(strings.TrimSpace(cols[2]))),
		Amount: amount,
	}
	if m, err := core.ParseMeal(cols[2]); err == nil {
		e.Meal = m
	}
	e.UserID = strings.TrimSpace(safeGet(cols, 4))
	e.UserEmail = strings.TrimSpace(safeGet(cols, 5))
	if ts := strings.TrimSpace(safeGet(cols, 6)); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.CreatedAt = t
		}
	}
	return e, nil
}

// parseAmountCell accepts integers and whole-valued numbers rendered with a
// decimal part, as Sheets may format them. Fractions are rejected rather
// than rounded.
func parseAmountCell(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidAmount, s)
	}
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("%w: %q is not a whole amount", core.ErrInvalidAmount, s)
	}
	return int64(f), nil
}

// looksLikeRecord reports whether cols carry an id and a valid date, i.e.
// the row was meant as a record rather than a header or note.
func looksLikeRecord(cols []string) bool {
	if len(cols) < 2 || strings.TrimSpace(cols[0]) == "" {
		return false
	}
	_, err := core.ParseDate(cols[1])
	return err == nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
