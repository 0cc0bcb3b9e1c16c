package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"foodbudget/internal/core"
	"foodbudget/internal/metrics"
	"foodbudget/internal/store"
)

// fakeSheets emulates the handful of Sheets v4 endpoints the client uses.
type fakeSheets struct {
	mu   sync.Mutex
	rows [][]string

	// afterFullRead runs once, after an A:G read has been answered.
	afterFullRead func(f *fakeSheets)
	// onCellRead runs before every single-cell read.
	onCellRead func(f *fakeSheets)
}

var (
	rowRange  = regexp.MustCompile(`!A(\d+):G\d+$`)
	cellRange = regexp.MustCompile(`!A(\d+)$`)
)

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sid")
	switch {
	case r.Method == http.MethodGet && rest == "":
		writeJSON(w, map[string]any{"sheets": []any{
			map[string]any{"properties": map[string]any{"sheetId": 7, "title": "Expenses"}},
		}})
	case r.Method == http.MethodPost && rest == ":batchUpdate":
		var req gsheet.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, q := range req.Requests {
			dr := q.DeleteDimension.Range
			if dr.SheetId != 7 {
				http.Error(w, "wrong sheet", http.StatusBadRequest)
				return
			}
			f.rows = append(f.rows[:dr.StartIndex], f.rows[dr.EndIndex:]...)
		}
		writeJSON(w, map[string]any{})
	case strings.HasPrefix(rest, "/values/"):
		rng := strings.TrimPrefix(rest, "/values/")
		switch r.Method {
		case http.MethodGet:
			if m := cellRange.FindStringSubmatch(rng); m != nil {
				if f.onCellRead != nil {
					f.onCellRead(f)
				}
				n, _ := strconv.Atoi(m[1])
				resp := map[string]any{"range": rng, "majorDimension": "ROWS"}
				if n >= 1 && n <= len(f.rows) && len(f.rows[n-1]) > 0 {
					resp["values"] = [][]any{{f.rows[n-1][0]}}
				}
				writeJSON(w, resp)
				return
			}
			values := make([][]any, len(f.rows))
			for i, row := range f.rows {
				for _, c := range row {
					values[i] = append(values[i], c)
				}
			}
			writeJSON(w, map[string]any{"range": rng, "majorDimension": "ROWS", "values": values})
			if hook := f.afterFullRead; hook != nil {
				f.afterFullRead = nil
				hook(f)
			}
		case http.MethodPost:
			var vr gsheet.ValueRange
			if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			for _, v := range vr.Values {
				f.rows = append(f.rows, toStrings(v))
			}
			writeJSON(w, map[string]any{})
		case http.MethodPut:
			m := rowRange.FindStringSubmatch(rng)
			if m == nil {
				http.Error(w, "bad range "+rng, http.StatusBadRequest)
				return
			}
			n, _ := strconv.Atoi(m[1])
			var vr gsheet.ValueRange
			if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.rows[n-1] = toStrings(vr.Values[0])
			writeJSON(w, map[string]any{})
		}
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, f *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	c := NewWithService(svc, "sid", "Expenses")
	c.now = func() time.Time { return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) }
	return c
}

func TestClientLifecycle(t *testing.T) {
	f := &fakeSheets{rows: [][]string{{"id", "date", "meal", "amount", "user_id", "user_email", "created_at"}}}
	c := newTestClient(t, f)
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for _, e := range []core.Expense{
		{Date: core.NewDate(2024, 3, 4), Meal: core.MealLunch, Amount: 150, UserID: "u1", UserEmail: "ann@example.com"},
		{Date: core.NewDate(2024, 3, 5), Meal: core.MealEvening, Amount: 40, UserID: "u1"},
		{Date: core.NewDate(2024, 3, 12), Meal: core.MealMorning, Amount: 5, UserID: "u2"},
	} {
		id, err := c.Create(ctx, e)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, id)
	}

	week, err := c.QueryByDateRange(ctx, core.NewDate(2024, 3, 4), core.NewDate(2024, 3, 10))
	if err != nil {
		t.Fatal(err)
	}
	if len(week) != 2 {
		t.Fatalf("expected 2 records in week, got %d", len(week))
	}
	if week[0].Amount != 150 || week[0].UserEmail != "ann@example.com" || week[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected first record %+v", week[0])
	}

	amount := int64(60)
	updated, err := c.Update(ctx, ids[1], core.ExpensePatch{Amount: &amount})
	if err != nil || updated.Amount != 60 || updated.Meal != core.MealEvening {
		t.Fatalf("unexpected update %+v err=%v", updated, err)
	}
	got, err := c.Get(ctx, ids[1])
	if err != nil || got.Amount != 60 {
		t.Fatalf("update not persisted: %+v err=%v", got, err)
	}

	if err := c.Delete(ctx, ids[0]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, ids[0]); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(f.rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(f.rows))
	}

	if _, err := c.Create(ctx, core.Expense{ID: ids[2], Date: core.NewDate(2024, 3, 12), Meal: core.MealLunch}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRowToExpense(t *testing.T) {
	cases := []struct {
		name string
		cols []string
		ok   bool
		want core.Expense
	}{
		{
			name: "full row",
			cols: []string{"a", "2024-03-04", "Dinner", "120", "u1", "ann@example.com", "2024-03-04T09:00:00Z"},
			ok:   true,
			want: core.Expense{ID: "a", Date: core.NewDate(2024, 3, 4), Meal: core.MealEvening, Amount: 120, UserID: "u1", UserEmail: "ann@example.com", CreatedAt: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)},
		},
		{
			name: "formatted amount and short row",
			cols: []string{"b", "2024-03-05", "lunch", "80.0"},
			ok:   true,
			want: core.Expense{ID: "b", Date: core.NewDate(2024, 3, 5), Meal: core.MealLunch, Amount: 80},
		},
		{
			name: "unknown meal kept",
			cols: []string{"c", "2024-03-05", "snack", "-3"},
			ok:   true,
			want: core.Expense{ID: "c", Date: core.NewDate(2024, 3, 5), Meal: "snack", Amount: -3},
		},
		{name: "header", cols: []string{"id", "date", "meal", "amount"}},
		{name: "bad amount", cols: []string{"d", "2024-03-05", "lunch", "abc"}},
		{name: "fractional amount", cols: []string{"d", "2024-03-05", "lunch", "12.5"}},
		{name: "missing id", cols: []string{"", "2024-03-05", "lunch", "1"}},
		{name: "too short", cols: []string{"e", "2024-03-05"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := rowToExpense(tc.cols)
			if !tc.ok {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.ID != tc.want.ID || !got.Date.Equal(tc.want.Date) || got.Meal != tc.want.Meal ||
				got.Amount != tc.want.Amount || got.UserID != tc.want.UserID ||
				got.UserEmail != tc.want.UserEmail || !got.CreatedAt.Equal(tc.want.CreatedAt) {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestExpenseToRowRoundTrip(t *testing.T) {
	e := core.Expense{ID: "x", Date: core.NewDate(2024, 3, 6), Meal: core.MealMorning, Amount: 12, UserID: "u", UserEmail: "u@example.com", CreatedAt: time.Date(2024, 3, 6, 7, 30, 0, 0, time.UTC)}
	cols := make([]string, 0, 7)
	for _, v := range expenseToRow(e) {
		cols = append(cols, fmt.Sprint(v))
	}
	back, err := rowToExpense(cols)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != e.ID || back.Amount != e.Amount || !back.CreatedAt.Equal(e.CreatedAt) || back.Meal != e.Meal {
		t.Fatalf("round trip mismatch %+v vs %+v", back, e)
	}
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if _, err := New(context.Background(), Options{SpreadsheetID: "sid"}); err == nil || !strings.Contains(err.Error(), "credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func header() []string {
	return []string{"id", "date", "meal", "amount", "user_id", "user_email", "created_at"}
}

func record(id string) []string {
	return []string{id, "2024-03-04", "lunch", "10", "u1", "", "2024-03-04T09:00:00Z"}
}

func rowIDs(rows [][]string) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r[0])
	}
	return out
}

func TestMutationsRecheckShiftedRows(t *testing.T) {
	ctx := context.Background()
	// Another writer removes "a" right after our lookup, so "c" moves up.
	removeA := func(f *fakeSheets) { f.rows = append(f.rows[:1], f.rows[2:]...) }

	t.Run("delete", func(t *testing.T) {
		f := &fakeSheets{rows: [][]string{header(), record("a"), record("b"), record("c")}}
		c := newTestClient(t, f)
		if _, err := c.resolveSheetID(ctx); err != nil {
			t.Fatal(err)
		}
		f.afterFullRead = removeA

		if err := c.Delete(ctx, "c"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if got := strings.Join(rowIDs(f.rows), ","); got != "id,b" {
			t.Fatalf("expected id,b to remain, got %s", got)
		}
	})

	t.Run("update", func(t *testing.T) {
		f := &fakeSheets{rows: [][]string{header(), record("a"), record("b"), record("c")}}
		c := newTestClient(t, f)
		f.afterFullRead = removeA

		amount := int64(99)
		if _, err := c.Update(ctx, "b", core.ExpensePatch{Amount: &amount}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if got := strings.Join(rowIDs(f.rows), ","); got != "id,b,c" {
			t.Fatalf("rows changed unexpectedly: %s", got)
		}
		if f.rows[1][3] != "99" || f.rows[2][3] != "10" {
			t.Fatalf("wrong row updated: %v", f.rows)
		}
	})
}

func TestMutationGivesUpWhenRowsKeepMoving(t *testing.T) {
	f := &fakeSheets{rows: [][]string{header(), record("a")}}
	c := newTestClient(t, f)
	n := 0
	f.onCellRead = func(f *fakeSheets) {
		n++
		f.rows = append([][]string{header(), record(fmt.Sprintf("new%d", n))}, f.rows[1:]...)
	}

	err := c.Delete(context.Background(), "a")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if n != maxLocateAttempts {
		t.Fatalf("expected %d lookups, got %d", maxLocateAttempts, n)
	}
	for _, r := range f.rows[1:] {
		if r[0] != "a" && !strings.HasPrefix(r[0], "new") {
			t.Fatalf("unexpected row %v", r)
		}
	}
	if len(f.rows) != 2+maxLocateAttempts {
		t.Fatalf("no row should have been deleted, have %d rows", len(f.rows))
	}
}

func TestConcurrentDeletes(t *testing.T) {
	f := &fakeSheets{rows: [][]string{header()}}
	want := []string{"a", "b", "c", "d", "e", "f"}
	for _, id := range want {
		f.rows = append(f.rows, record(id))
	}
	c := newTestClient(t, f)

	var wg sync.WaitGroup
	errs := make(chan error, len(want))
	for _, id := range want {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := c.Delete(context.Background(), id); err != nil {
				errs <- fmt.Errorf("delete %s: %w", id, err)
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if len(f.rows) != 1 {
		t.Fatalf("expected only the header left, got %v", rowIDs(f.rows))
	}
}

func TestMalformedRecordsAreReported(t *testing.T) {
	f := &fakeSheets{rows: [][]string{
		header(),
		record("ok"),
		{"frac", "2024-03-04", "lunch", "12.5"},
		{"text", "2024-03-05", "lunch", "n/a"},
		{"", "", "", ""},
	}}
	c := newTestClient(t, f)
	c.metrics = metrics.New()

	got, err := c.QueryByDateRange(context.Background(), core.NewDate(2024, 3, 4), core.NewDate(2024, 3, 10))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("expected only the valid record, got %+v", got)
	}

	families, err := c.metrics.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var skipped float64
	for _, mf := range families {
		if mf.GetName() == "foodbudget_sheet_rows_skipped_total" {
			skipped = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if skipped != 2 {
		t.Fatalf("expected 2 skipped records counted, got %v", skipped)
	}
}

func TestParseAmountCell(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"120", 120, true},
		{"80.0", 80, true},
		{"80,00", 80, true},
		{"-3", -3, true},
		{"12.5", 0, false},
		{"0.999", 0, false},
		{"1e300", 0, false},
		{"NaN", 0, false},
	}
	for _, tc := range cases {
		got, err := parseAmountCell(tc.in)
		if !tc.ok {
			if !errors.Is(err, core.ErrInvalidAmount) {
				t.Errorf("%q: expected ErrInvalidAmount, got %d, %v", tc.in, got, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q: expected %d, got %d, %v", tc.in, tc.want, got, err)
		}
	}
}
