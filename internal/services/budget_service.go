package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"foodbudget/internal/cache"
	"foodbudget/internal/core"
	"foodbudget/internal/forecast"
	"foodbudget/internal/log"
	"foodbudget/internal/metrics"
	"foodbudget/internal/store"
)

var (
	ErrFutureWeek  = errors.New("cannot view a future week")
	ErrFetchFailed = errors.New("failed to load budget data")
	ErrEmptyPatch  = errors.New("nothing to update")
	// ErrSyncPending is returned when an expense only exists in the local
	// queue and cannot be deleted until it reaches the record store.
	ErrSyncPending = errors.New("expense is still being synced")
)

// Publisher announces queued expenses to the sync worker.
type Publisher interface {
	PublishExpenseSync(ctx context.Context, id string) error
}

// WeekResult is a computed weekly view plus the records the fold flagged.
type WeekResult struct {
	Window    core.WeekWindow `json:"-"`
	View      core.WeeklyView `json:"view"`
	Anomalies []core.Anomaly  `json:"anomalies"`
	Settings  core.Settings   `json:"settings"`
}

// WeekListing is the flat record list of a week, newest first.
type WeekListing struct {
	WeekStart core.Date      `json:"weekStart"`
	WeekEnd   core.Date      `json:"weekEnd"`
	Expenses  []core.Expense `json:"expenses"`
	Total     int64          `json:"total"`
}

// NewExpense is the user input for CreateExpense.
type NewExpense struct {
	Date      core.Date
	Meal      core.Meal
	Amount    int64
	UserID    string
	UserEmail string
}

// BudgetService fetches settings and records, then hands them to the
// aggregation engine. It also owns the write paths.
type BudgetService struct {
	records  store.RecordStore
	settings store.SettingsStore

	pending   store.PendingCache
	publisher Publisher

	forecaster    forecast.Forecaster
	forecastCache cache.Cache[[]core.DailyMeals]
	historyDays   int

	metrics *metrics.Metrics
	logger  *log.Logger
	events  *log.StructuredLogger
	loc     *time.Location
	now     func() time.Time
}

type Option func(*BudgetService)

// WithPendingQueue routes new expenses through the local cache. publisher
// may be nil when the worker polls the cache instead.
func WithPendingQueue(p store.PendingCache, publisher Publisher) Option {
	return func(s *BudgetService) {
		s.pending = p
		s.publisher = publisher
	}
}

func WithForecaster(f forecast.Forecaster, c cache.Cache[[]core.DailyMeals], historyDays int) Option {
	return func(s *BudgetService) {
		s.forecaster = f
		s.forecastCache = c
		if historyDays > 0 {
			s.historyDays = historyDays
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *BudgetService) { s.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(s *BudgetService) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentBudget)
		}
	}
}

// WithClock sets the time source and the zone "today" is resolved in.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(s *BudgetService) {
		if now != nil {
			s.now = now
		}
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewBudgetService(records store.RecordStore, settings store.SettingsStore, opts ...Option) *BudgetService {
	s := &BudgetService{
		records:     records,
		settings:    settings,
		historyDays: forecast.HistoryDays,
		logger:      log.New(log.Config{Component: log.ComponentBudget}),
		loc:         time.UTC,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = log.NewStructuredLogger(s.logger)
	return s
}

// Today is the current calendar date in the configured zone.
func (s *BudgetService) Today() core.Date {
	return core.Today(s.now(), s.loc)
}

func (s *BudgetService) checkNotFuture(window core.WeekWindow) error {
	current := core.WeekOf(s.Today())
	if window.Start.After(current.Start) {
		return fmt.Errorf("%w: week of %s", ErrFutureWeek, window.Start)
	}
	return nil
}

// Week computes the weekly view of the week containing ref.
func (s *BudgetService) Week(ctx context.Context, ref core.Date) (WeekResult, error) {
	start := time.Now()
	window := core.WeekOf(ref)
	if err := s.checkNotFuture(window); err != nil {
		return WeekResult{}, err
	}

	settings, records, err := s.fetchWeek(ctx, window)
	if err != nil {
		s.events.LogError(ctx, "Failed to load week", err, log.OpAggregate,
			log.NewFields().WithComponent(log.ComponentBudget))
		return WeekResult{}, err
	}

	view, anomalies, err := core.Aggregate(window, records, settings, s.Today())
	if err != nil {
		return WeekResult{}, fmt.Errorf("aggregate week of %s: %w", window.Start, err)
	}
	s.metrics.ObserveAggregation(time.Since(start), anomalies)
	if len(anomalies) > 0 {
		s.logger.WarnContext(ctx, "Records flagged during aggregation",
			log.FieldWeekStart, window.Start.String(),
			log.FieldAnomalies, len(anomalies))
	}
	if anomalies == nil {
		anomalies = []core.Anomaly{}
	}
	return WeekResult{Window: window, View: view, Anomalies: anomalies, Settings: settings}, nil
}

// fetchWeek loads settings and the window's records concurrently. Queued
// records not yet in the record store are merged in.
func (s *BudgetService) fetchWeek(ctx context.Context, window core.WeekWindow) (core.Settings, []core.Expense, error) {
	var (
		settings core.Settings
		records  []core.Expense
		queued   []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		settings, err = s.settings.ReadSettings(gctx)
		if err != nil {
			return fmt.Errorf("read settings: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = s.records.QueryByDateRange(gctx, window.Start, window.End)
		if err != nil {
			return fmt.Errorf("query records %s..%s: %w", window.Start, window.End, err)
		}
		return nil
	})
	if s.pending != nil {
		g.Go(func() error {
			pending, err := s.pending.ListUnsynced(gctx, 0)
			if err != nil {
				return fmt.Errorf("list pending: %w", err)
			}
			for _, p := range pending {
				if window.Contains(p.Date) {
					queued = append(queued, p.Expense)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.Settings{}, nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return settings, mergeQueued(records, queued), nil
}

func mergeQueued(records, queued []core.Expense) []core.Expense {
	if len(queued) == 0 {
		return records
	}
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		seen[r.ID] = true
	}
	for _, q := range queued {
		if !seen[q.ID] {
			records = append(records, q)
		}
	}
	return records
}

// ListWeek returns the week's records sorted by date, newest first, and
// their total.
func (s *BudgetService) ListWeek(ctx context.Context, ref core.Date) (WeekListing, error) {
	window := core.WeekOf(ref)
	if err := s.checkNotFuture(window); err != nil {
		return WeekListing{}, err
	}
	_, records, err := s.fetchWeek(ctx, window)
	if err != nil {
		return WeekListing{}, err
	}

	slices.SortFunc(records, func(a, b core.Expense) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	var total int64
	for i := range records {
		total += records[i].Amount
		if strings.TrimSpace(records[i].UserEmail) == "" {
			records[i].UserEmail = core.UnknownUser
		}
	}
	if records == nil {
		records = []core.Expense{}
	}
	return WeekListing{WeekStart: window.Start, WeekEnd: window.End, Expenses: records, Total: total}, nil
}

func (s *BudgetService) CreateExpense(ctx context.Context, in NewExpense) (core.Expense, error) {
	e := core.Expense{
		ID:        uuid.NewString(),
		Date:      in.Date,
		Meal:      in.Meal,
		Amount:    in.Amount,
		UserID:    in.UserID,
		UserEmail: strings.TrimSpace(in.UserEmail),
		CreatedAt: s.now().UTC(),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	queued := s.pending != nil
	if queued {
		if err := s.pending.Put(ctx, e); err != nil {
			return core.Expense{}, fmt.Errorf("queue expense: %w", err)
		}
		s.announce(ctx, e.ID)
	} else {
		id, err := s.records.Create(ctx, e)
		if err != nil {
			return core.Expense{}, fmt.Errorf("save expense: %w", err)
		}
		e.ID = id
	}

	s.invalidateForecast()
	s.metrics.ExpenseCreated(queued)
	s.events.LogExpenseCreated(ctx, e.ID, e.Date.String(), e.Meal.String(), e.Amount, e.UserID, queued)
	return e, nil
}

// announce publishes a sync message. Failures are logged only: the record is
// already queued and the worker's poll picks it up.
func (s *BudgetService) announce(ctx context.Context, id string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseSync(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish sync message", log.FieldExpenseID, id, log.FieldError, err)
	}
}

// UpdateExpense applies patch and re-validates the result. Records still in
// the local queue are edited there and re-announced.
func (s *BudgetService) UpdateExpense(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	if patch.Empty() {
		return core.Expense{}, ErrEmptyPatch
	}
	if patch.Meal != nil {
		m, err := core.ParseMeal(string(*patch.Meal))
		if err != nil {
			return core.Expense{}, err
		}
		patch.Meal = &m
	}

	current, err := s.records.Get(ctx, id)
	switch {
	case err == nil:
		if err := patch.Apply(current).Validate(); err != nil {
			return core.Expense{}, err
		}
		updated, err := s.records.Update(ctx, id, patch)
		if err != nil {
			return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
		}
		s.afterUpdate(ctx, updated)
		return updated, nil
	case errors.Is(err, store.ErrNotFound) && s.pending != nil:
		p, perr := s.pending.GetPending(ctx, id)
		if perr != nil || p.Synced {
			return core.Expense{}, err
		}
		updated := patch.Apply(p.Expense)
		if err := updated.Validate(); err != nil {
			return core.Expense{}, err
		}
		if err := s.pending.Put(ctx, updated); err != nil {
			return core.Expense{}, fmt.Errorf("requeue expense %s: %w", id, err)
		}
		s.announce(ctx, id)
		s.afterUpdate(ctx, updated)
		return updated, nil
	default:
		return core.Expense{}, err
	}
}

func (s *BudgetService) afterUpdate(ctx context.Context, e core.Expense) {
	s.invalidateForecast()
	s.logger.InfoContext(ctx, "Expense updated",
		log.NewFields().WithExpense(e.ID, e.Date.String(), e.Meal.String(), e.Amount, e.UserID).WithOperation(log.OpUpdate).ToSlice()...)
}

func (s *BudgetService) DeleteExpense(ctx context.Context, id string) error {
	err := s.records.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) && s.pending != nil {
		if p, perr := s.pending.GetPending(ctx, id); perr == nil && !p.Synced {
			return fmt.Errorf("delete %s: %w", id, ErrSyncPending)
		}
	}
	if err != nil {
		return err
	}
	s.invalidateForecast()
	s.logger.InfoContext(ctx, "Expense deleted", log.FieldExpenseID, id, log.FieldOperation, log.OpDelete)
	return nil
}

func (s *BudgetService) Settings(ctx context.Context) (core.Settings, error) {
	return s.settings.ReadSettings(ctx)
}

func (s *BudgetService) SaveSettings(ctx context.Context, cfg core.Settings) (core.Settings, error) {
	if err := cfg.Validate(); err != nil {
		return core.Settings{}, err
	}
	if err := s.settings.WriteSettings(ctx, cfg); err != nil {
		return core.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	s.logger.InfoContext(ctx, "Settings saved",
		"number_of_people", cfg.NumberOfPeople,
		"daily_limit_per_person", cfg.DailyLimitPerPerson)
	return cfg, nil
}

// Report renders the week containing ref as a downloadable document.
func (s *BudgetService) Report(ctx context.Context, ref core.Date) ([]byte, string, error) {
	res, err := s.Week(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	data, err := core.ExportReport(res.View)
	if err != nil {
		return nil, "", fmt.Errorf("export report: %w", err)
	}
	s.logger.DebugContext(ctx, "Report exported", log.FieldWeekStart, res.Window.Start.String(), log.FieldOperation, log.OpExport)
	return data, core.ReportFilename(ref), nil
}

// Forecast predicts the next days from recent history. It never fails:
// problems are logged and yield an empty forecast.
func (s *BudgetService) Forecast(ctx context.Context, days int) []core.DailyMeals {
	empty := []core.DailyMeals{}
	if s.forecaster == nil {
		return empty
	}
	days = cmp.Or(max(days, 0), forecast.DefaultDays)

	today := s.Today()
	key := today.String() + "/" + strconv.Itoa(days)
	if s.forecastCache != nil {
		if hit, ok := s.forecastCache.Get(key); ok {
			return hit
		}
	}

	from := today.AddDays(-s.historyDays)
	records, err := s.records.QueryByDateRange(ctx, from, today)
	if err != nil {
		s.logger.WarnContext(ctx, "Forecast history unavailable", log.FieldError, err, log.FieldOperation, log.OpForecast)
		return empty
	}
	history := core.DailyHistory(records, from, today)

	predicted, err := s.forecaster.PredictNextDays(ctx, history, days)
	if err != nil {
		level := s.logger.WarnContext
		if errors.Is(err, forecast.ErrInsufficientHistory) {
			level = s.logger.DebugContext
		}
		level(ctx, "Forecast skipped", log.FieldError, err, log.FieldOperation, log.OpForecast)
		return empty
	}
	if predicted == nil {
		predicted = empty
	}
	if s.forecastCache != nil {
		s.forecastCache.Set(key, predicted)
	}
	return predicted
}

func (s *BudgetService) invalidateForecast() {
	if s.forecastCache != nil {
		s.forecastCache.Purge()
	}
}
