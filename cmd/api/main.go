package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sessionbook/internal/api"
	"sessionbook/internal/config"
	"sessionbook/internal/database"
	"sessionbook/internal/domain"
	"sessionbook/internal/events"
	"sessionbook/internal/google"
	"sessionbook/internal/logging"
	"sessionbook/internal/metrics"
	"sessionbook/internal/notify"
	"sessionbook/internal/repository"
	"sessionbook/internal/service"
	"sessionbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, only background workers will run")
	}

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	background := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	dispatcher := worker.NewDispatcher(db, initCalendar(cfg, logger), initNotifier(cfg, logger), redisClient, cfg.Worker,
		logging.Component(logger, "outbox"))
	background(dispatcher.Start)

	svc := buildServices(cfg, db, dispatcher, stateStore(redisClient, logger), logger)

	if cfg.AutoComplete.Enabled {
		completer := worker.NewAutoCompleter(svc.Lifecycle, cfg.AutoComplete.Interval, logging.Component(logger, "auto-complete"))
		background(completer.Start)
	}
	if cfg.Backup.Enabled {
		background(database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start)
	}

	startMetrics(ctx, cfg, logger)

	err = startServers(ctx, svc, cfg, logger)
	stop()
	wg.Wait()
	return err
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	providersPath := os.Getenv("PROVIDERS_PATH")
	if providersPath == "" {
		providersPath = "configs/providers.yaml"
	}
	providers, err := config.LoadProviders(providersPath)
	switch {
	case os.IsNotExist(err):
		logger.Warn().Str("providers_path", providersPath).Msg("no provider seed file, using stored providers")
	case err != nil:
		db.Close()
		logger.Error().Err(err).Str("providers_path", providersPath).Msg("load providers")
		return nil, err
	default:
		if err := db.SeedProviders(context.Background(), providers); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info().Int("count", len(providers)).Msg("providers seeded")
	}

	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(redisClient)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func stateStore(redisClient *redis.Client, logger *zerolog.Logger) repository.StateStore {
	memory := repository.NewMemoryStateRepository()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverStateRepository(repository.NewRedisStateRepository(redisClient), memory,
		logging.Component(logger, "state"))
}

func initCalendar(cfg *config.Config, logger *zerolog.Logger) domain.CalendarSync {
	if cfg.Google.GoogleCredentialsFile == "" {
		return nil
	}

	calendarService, err := google.NewCalendarService(cfg.Google.GoogleCredentialsFile)
	if err != nil {
		logger.Warn().Err(err).Msg("google calendar init failed, continuing without calendar sync")
		return nil
	}

	logger.Info().Msg("google calendar connected")
	return calendarService
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	router := notify.NewRouter().Handle("email", notify.NewLogNotifier(logging.Component(logger, "mail")))
	if cfg.Telegram.BotToken == "" {
		return router
	}

	bot, err := notify.NewTelegramBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, provider notifications disabled")
		return router
	}

	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram connected")
	return router.Handle("telegram", notify.NewTelegramNotifier(bot, logging.Component(logger, "telegram")))
}

func buildServices(
	cfg *config.Config,
	db *database.DB,
	dispatcher domain.Dispatcher,
	state repository.StateStore,
	logger *zerolog.Logger,
) api.Services {
	bus := events.NewEventBus()
	eventLogger := logging.Component(logger, "events")
	bus.Subscribe(events.AllEvents, func(event *events.Event) error {
		eventLogger.Debug().Str("type", event.Type).RawJSON("payload", event.Payload).Msg("booking event")
		return nil
	})
	bus.OnError(func(event *events.Event, err error) {
		eventLogger.Warn().Err(err).Str("type", event.Type).Msg("event handler failed")
	})

	collab := service.Collaborators{
		Events:     bus,
		Dispatcher: dispatcher,
		Cache:      state,
		Limiter:    state,
	}

	return api.Services{
		Slots:     service.NewSlotService(db, state, cfg.Scheduling, logging.Component(logger, "slots")),
		Bookings:  service.NewBookingService(db, collab, cfg.Scheduling, logging.Component(logger, "bookings")),
		Lifecycle: service.NewLifecycleService(db, collab, cfg.AutoComplete.MinInterval, logging.Component(logger, "lifecycle")),
		Export:    service.NewExportService(db, logging.Component(logger, "export")),
		Ready:     db.PingContext,
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(ctx context.Context, svc api.Services, cfg *config.Config, logger *zerolog.Logger) error {
	var grpcServer *api.GRPCServer
	var httpServer *api.HTTPServer

	if cfg.API.Enabled && cfg.API.GRPC.Enabled {
		var err error
		grpcServer, err = api.NewGRPCServer(&cfg.API, svc, logging.Component(logger, "grpc"))
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
		logger.Info().Str("grpc_addr", grpcServer.Addr()).Msg("gRPC server started")
	}

	if cfg.API.Enabled && cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, svc, logging.Component(logger, "http"))
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
		logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("HTTP server started")
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("sessionbook stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
