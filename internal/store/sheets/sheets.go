// Package sheets stores expense records in a Google Sheets tab, one row per
// record. Columns A..G hold id, date, meal, amount, user id, user email and
// creation time.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"foodbudget/internal/core"
	"foodbudget/internal/metrics"
	"foodbudget/internal/store"
)

const (
	columns = "A:G"
	// maxLocateAttempts bounds lookups when rows keep shifting under a
	// mutation.
	maxLocateAttempts = 3
)

type Options struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
	// Metrics counts skipped rows; may be nil.
	Metrics *metrics.Metrics
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	now           func() time.Time
	metrics       *metrics.Metrics

	mu      sync.Mutex
	sheetID *int64

	// writeMu serializes find-then-mutate sequences so that row numbers
	// stay valid between lookup and write within this process.
	writeMu sync.Mutex
}

var _ store.RecordStore = (*Client)(nil)

// New creates a client authenticated with service account credentials.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	creds, err := credentials(opts)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", opts.SpreadsheetID, "sheet", opts.SheetName)
	c := NewWithService(svc, opts.SpreadsheetID, opts.SheetName)
	c.metrics = opts.Metrics
	return c, nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test
// endpoint.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheet string) *Client {
	if strings.TrimSpace(sheet) == "" {
		sheet = "Expenses"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet, now: time.Now}
}

func credentials(opts Options) ([]byte, error) {
	switch {
	case strings.TrimSpace(opts.ServiceAccountJSON) != "":
		return []byte(opts.ServiceAccountJSON), nil
	case strings.TrimSpace(opts.ServiceAccountFile) != "":
		b, err := os.ReadFile(opts.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
}

func (c *Client) QueryByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	rows, err := c.readRows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Expense, 0, len(rows))
	for _, r := range rows {
		if r.expense.Date.Before(start) || r.expense.Date.After(end) {
			continue
		}
		out = append(out, r.expense)
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id string) (core.Expense, error) {
	r, err := c.findRow(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	return r.expense, nil
}

func (c *Client) Create(ctx context.Context, e core.Expense) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	} else if _, err := c.findRow(ctx, e.ID); err == nil {
		return "", fmt.Errorf("expense %s: %w", e.ID, store.ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now().UTC()
	}

	rng := fmt.Sprintf("%s!%s", c.sheet, columns)
	vr := &gsheet.ValueRange{Values: [][]any{expenseToRow(e)}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.sheet, err)
	}
	return e.ID, nil
}

func (c *Client) Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	r, err := c.locate(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	e := patch.Apply(r.expense)
	rng := fmt.Sprintf("%s!A%d:G%d", c.sheet, r.number, r.number)
	vr := &gsheet.ValueRange{Values: [][]any{expenseToRow(e)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return core.Expense{}, fmt.Errorf("update %s: %w", rng, err)
	}
	return e, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	sheetID, err := c.resolveSheetID(ctx)
	if err != nil {
		return err
	}
	r, err := c.locate(ctx, id)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				// StartIndex 0 would otherwise be dropped as empty.
				Range: &gsheet.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(r.number - 1),
					EndIndex:        int64(r.number),
					ForceSendFields: []string{"StartIndex"},
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d in %s: %w", r.number, c.sheet, err)
	}
	return nil
}

// row is a parsed expense plus its 1-based sheet row number.
type row struct {
	number  int
	expense core.Expense
}

func (c *Client) readRows(ctx context.Context) ([]row, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!%s", c.sheet, columns)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([]row, 0, len(resp.Values))
	for i, values := range resp.Values {
		cols := toStrings(values)
		e, err := rowToExpense(cols)
		if err != nil {
			if !looksLikeRecord(cols) {
				// Header or blank row.
				slog.DebugContext(ctx, "Skipping sheet row", "row", i+1, "error", err)
				continue
			}
			slog.WarnContext(ctx, "Skipping malformed sheet record",
				"row", i+1, "id", cols[0], "error", err)
			c.metrics.SheetRowSkipped()
			continue
		}
		out = append(out, row{number: i + 1, expense: e})
	}
	return out, nil
}

func (c *Client) findRow(ctx context.Context, id string) (row, error) {
	rows, err := c.readRows(ctx)
	if err != nil {
		return row{}, err
	}
	for _, r := range rows {
		if r.expense.ID == id {
			return r, nil
		}
	}
	return row{}, fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
}

// locate finds id's row and confirms, right before the caller mutates it,
// that column A of that row still holds id. Deletes by other writers shift
// rows, in which case the lookup is repeated.
func (c *Client) locate(ctx context.Context, id string) (row, error) {
	for attempt := 1; attempt <= maxLocateAttempts; attempt++ {
		r, err := c.findRow(ctx, id)
		if err != nil {
			return row{}, err
		}
		ok, err := c.rowHolds(ctx, r.number, id)
		if err != nil {
			return row{}, err
		}
		if ok {
			return r, nil
		}
		slog.WarnContext(ctx, "Sheet row moved, looking it up again", "id", id, "row", r.number, "attempt", attempt)
	}
	return row{}, fmt.Errorf("expense %s kept moving in %s: %w", id, c.sheet, store.ErrConflict)
}

func (c *Client) rowHolds(ctx context.Context, number int, id string) (bool, error) {
	rng := fmt.Sprintf("%s!A%d", c.sheet, number)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return false, nil
	}
	return strings.TrimSpace(fmt.Sprint(resp.Values[0][0])) == id, nil
}

func (c *Client) resolveSheetID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheetID != nil {
		return *c.sheetID, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet metadata: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheet {
			id := sh.Properties.SheetId
			c.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", c.sheet)
}
