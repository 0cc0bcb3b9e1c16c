// Package worker pushes locally queued expenses to the record store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"foodbudget/internal/amqp"
	"foodbudget/internal/core"
	"foodbudget/internal/log"
	"foodbudget/internal/metrics"
	"foodbudget/internal/store"
)

type Config struct {
	// BatchSize caps each poll; the startup check takes five batches.
	BatchSize int
	// Concurrency bounds parallel pushes to the record store.
	Concurrency int
	// MaxAttempts leaves an entry alone once it has failed this often.
	// Zero retries forever.
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{BatchSize: 10, Concurrency: 4, MaxAttempts: 10}
}

// Result summarizes one batch.
type Result struct {
	Synced  int
	Failed  int
	Skipped int
}

type SyncWorker struct {
	records store.RecordStore
	pending store.PendingCache
	cfg     Config
	metrics *metrics.Metrics
	logger  *log.Logger
}

func NewSyncWorker(records store.RecordStore, pending store.PendingCache, cfg Config, m *metrics.Metrics, logger *log.Logger) *SyncWorker {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SyncWorker{
		records: records,
		pending: pending,
		cfg:     cfg,
		metrics: m,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleSyncMessage processes one queue message. Returning an error makes
// the consumer requeue it.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ExpenseSyncMessage) error {
	_, err := w.syncOne(ctx, msg.ID)
	return err
}

type outcome int

const (
	outcomeSynced outcome = iota
	outcomeSkipped
)

// syncOne pushes a pending expense. It is idempotent: a record already in
// the store is brought up to date instead of appended twice.
func (w *SyncWorker) syncOne(ctx context.Context, id string) (outcome, error) {
	p, err := w.pending.GetPending(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.WarnContext(ctx, "Sync requested for unknown expense", log.FieldExpenseID, id)
		w.metrics.SyncResult(metrics.SyncSkipped)
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeSkipped, fmt.Errorf("read pending %s: %w", id, err)
	}
	if p.Synced {
		w.metrics.SyncResult(metrics.SyncSkipped)
		return outcomeSkipped, nil
	}

	if err := w.push(ctx, p.Expense); err != nil {
		w.metrics.SyncResult(metrics.SyncFailed)
		if merr := w.pending.MarkFailed(ctx, id, err.Error()); merr != nil {
			w.logger.ErrorContext(ctx, "Failed to record sync failure", log.FieldExpenseID, id, log.FieldError, merr)
		}
		return outcomeSkipped, fmt.Errorf("sync %s: %w", id, err)
	}
	if err := w.pending.MarkSynced(ctx, id); err != nil {
		return outcomeSkipped, fmt.Errorf("mark %s synced: %w", id, err)
	}
	w.metrics.SyncResult(metrics.SyncSynced)
	w.logger.InfoContext(ctx, "Expense synced",
		log.NewFields().WithExpense(id, p.Date.String(), p.Meal.String(), p.Amount, p.UserID).WithOperation(log.OpSync).ToSlice()...)
	return outcomeSynced, nil
}

func (w *SyncWorker) push(ctx context.Context, e core.Expense) error {
	existing, err := w.records.Get(ctx, e.ID)
	switch {
	case err == nil:
		if sameContent(existing, e) {
			return nil
		}
		_, err := w.records.Update(ctx, e.ID, core.ExpensePatch{Date: &e.Date, Meal: &e.Meal, Amount: &e.Amount})
		return err
	case errors.Is(err, store.ErrNotFound):
		_, err := w.records.Create(ctx, e)
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return err
	default:
		return err
	}
}

func sameContent(a, b core.Expense) bool {
	return a.Date.Equal(b.Date) && a.Meal == b.Meal && a.Amount == b.Amount
}

// ProcessPending drains one batch of unsynced expenses with bounded
// concurrency. Individual failures are counted, not returned.
func (w *SyncWorker) ProcessPending(ctx context.Context) (Result, error) {
	return w.processBatch(ctx, w.cfg.BatchSize)
}

// StartupSyncCheck catches up on anything missed while the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) (Result, error) {
	res, err := w.processBatch(ctx, w.cfg.BatchSize*5)
	if err != nil {
		return res, fmt.Errorf("startup sync check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync check complete",
		"synced", res.Synced, "failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

func (w *SyncWorker) processBatch(ctx context.Context, limit int) (Result, error) {
	items, err := w.pending.ListUnsynced(ctx, limit)
	if err != nil {
		return Result{}, fmt.Errorf("list pending: %w", err)
	}
	w.metrics.SetPendingBacklog(len(items))
	if len(items) == 0 {
		return Result{}, nil
	}

	var synced, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, p := range items {
		if w.cfg.MaxAttempts > 0 && p.Attempts >= w.cfg.MaxAttempts {
			skipped.Add(1)
			w.logger.WarnContext(ctx, "Giving up on expense after repeated failures",
				log.FieldExpenseID, p.ID, "attempts", p.Attempts, "last_error", p.LastError)
			continue
		}
		g.Go(func() error {
			out, err := w.syncOne(gctx, p.ID)
			switch {
			case err != nil:
				failed.Add(1)
				w.logger.ErrorContext(gctx, "Failed to sync expense", log.FieldExpenseID, p.ID, log.FieldError, err)
			case out == outcomeSkipped:
				skipped.Add(1)
			default:
				synced.Add(1)
			}
			// One failure must not cancel the rest of the batch.
			return nil
		})
	}
	_ = g.Wait()

	return Result{Synced: int(synced.Load()), Failed: int(failed.Load()), Skipped: int(skipped.Load())}, ctx.Err()
}

// Run polls the pending cache every interval until ctx ends. It is used when
// no message broker is configured, and as a safety net next to one.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if _, err := w.StartupSyncCheck(ctx); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "Startup sync check failed", log.FieldError, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Sync worker stopped")
			return nil
		case <-ticker.C:
			res, err := w.ProcessPending(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.ErrorContext(ctx, "Pending sync batch failed", log.FieldError, err)
				continue
			}
			if res.Synced+res.Failed > 0 {
				w.logger.InfoContext(ctx, "Pending sync batch processed",
					"synced", res.Synced, "failed", res.Failed, "skipped", res.Skipped)
			}
		}
	}
}
