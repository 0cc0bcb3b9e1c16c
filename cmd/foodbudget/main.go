package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"foodbudget/internal/amqp"
	"foodbudget/internal/auth"
	"foodbudget/internal/cache"
	"foodbudget/internal/cli"
	"foodbudget/internal/core"
	"foodbudget/internal/forecast"
	apphttp "foodbudget/internal/http"
	"foodbudget/internal/log"
	"foodbudget/internal/metrics"
	"foodbudget/internal/middleware/ratelimit"
	"foodbudget/internal/services"
	"foodbudget/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	m := metrics.New()
	res := cli.InitBackend(context.Background(), logger, cfg, m)
	defer cli.CloseBackend(logger, res)
	b := res.Backend

	forecastCache := cache.NewLRUCache[[]core.DailyMeals](64, cfg.ForecastCacheTTL)

	opts := []services.Option{
		services.WithClock(time.Now, cfg.Location()),
		services.WithLogger(logger),
		services.WithMetrics(m),
		services.WithForecaster(forecast.MovingAverage{}, forecastCache, cfg.ForecastHistoryDays),
	}

	// Queued backends hand new expenses to a worker. With a broker the
	// standalone worker consumes them; without one this process drains the
	// cache itself.
	var amqpClient *amqp.Client
	if b.Queued() {
		var publisher services.Publisher
		if cfg.UsesQueue() {
			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				logger.Warn("AMQP unavailable, falling back to in-process sync", log.FieldError, err)
			} else {
				amqpClient = client
				publisher = client
			}
		}
		opts = append(opts, services.WithPendingQueue(b.Pending, publisher))
	}
	budget := services.NewBudgetService(b.Records, b.Settings, opts...)

	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute})
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Budget:        budget,
		Auth:          auth.NewPasswordAuthenticator(b.Users, cfg.AllowedEmailDomain, cfg.MinPasswordLength),
		Tokens:        auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL),
		Metrics:       m,
		Limiter:       limiter,
		Logger:        logger,
		Ready:         b.Ping,
		SecureCookies: cfg.SecureCookies,
	})

	ctx, stop, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	go limiter.RunCleanup(ctx)
	janitor := cache.NewJanitor(logger.Logger, forecastCache)
	go janitor.Run(ctx, time.Minute)

	var syncDone chan struct{}
	if b.Queued() && amqpClient == nil {
		wc := worker.DefaultConfig()
		wc.BatchSize = cfg.SyncBatchSize
		wc.Concurrency = cfg.SyncConcurrency
		syncWorker := worker.NewSyncWorker(b.Records, b.Pending, wc, m, logger)
		syncDone = make(chan struct{})
		go func() {
			defer close(syncDone)
			_ = syncWorker.Run(ctx, cfg.SyncInterval)
		}()
		logger.Info("In-process sync worker started", "interval", cfg.SyncInterval)
	}

	logger.Info("Starting foodbudget server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"queued", b.Queued(),
		"amqp", amqpClient != nil,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		stop()
	}

	cli.WaitForShutdown(ctx, done)
	<-janitor.Done()
	if syncDone != nil {
		<-syncDone
	}
	if amqpClient != nil {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close failed", log.FieldError, err)
		}
	}
	logger.Info("Server stopped gracefully")
}
