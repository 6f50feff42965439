package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"secret-santa/internal/api"
	"secret-santa/internal/assignment"
	"secret-santa/internal/config"
	"secret-santa/internal/handler"
	"secret-santa/internal/logging"
	"secret-santa/internal/metrics"
	"secret-santa/internal/notify"
	"secret-santa/internal/queue"
	"secret-santa/internal/scheduler"
	"secret-santa/internal/sms"
	"secret-santa/internal/storage"
	"secret-santa/internal/whatsapp"
	"secret-santa/internal/wishlist"
)

const leaseKey = "santa:queue:lease"

func main() {
	console := flag.Bool("console", false, "start the interactive admin console")
	flag.Parse()

	cfg := config.LoadConfig()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop, cfg, log, *console); err != nil {
		log.Fatal().Err(err).Msg("Secret Santa stopped")
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg *config.Config, log zerolog.Logger, console bool) error {
	log.Info().Str("db_driver", cfg.Database.Driver).Str("scheduler", cfg.Scheduler).
		Bool("sms_enabled", cfg.SMS.Enabled).Str("sms_provider", cfg.SMS.Provider).Msg("Starting Secret Santa")

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := storage.NewStorage(openCtx, cfg.Database.Driver, cfg.Database.DSN)
	cancel()
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewPrometheus(reg, "")
	if err != nil {
		return err
	}

	gateway, wa, err := newGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	if wa != nil {
		defer wa.Disconnect()
	}

	// Drains from several processes share one lease in Redis.
	lease := queue.Lease(&queue.LocalLease{})
	if cfg.Scheduler == "asynq" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		lease = queue.NewRedisLease(rdb, leaseKey, 10*time.Minute)
	}

	q := queue.New(store, gateway, queue.Config{
		Enabled:     cfg.SMS.Enabled,
		BatchSize:   cfg.SMS.RateLimit,
		SendDelay:   cfg.SMS.SendDelay,
		SendTimeout: cfg.SMS.Timeout,
		Window: queue.Window{
			StartHour: cfg.SMS.WindowStart,
			EndHour:   cfg.SMS.WindowEnd,
			Location:  cfg.SMS.Location,
		},
		RetentionDays: cfg.SMS.RetentionDays,
	}, log, queue.WithLease(lease), queue.WithMetrics(recorder))

	notifier := notify.NewService(store, q, notify.Templates{AppURL: cfg.AppURL}, log)
	engine := assignment.NewEngine(store, log,
		assignment.WithNotifier(notifier),
		assignment.WithMetrics(recorder),
		assignment.WithMaxAttempts(cfg.DrawMaxAttempts))
	exclusions := assignment.NewExclusions(store, log)
	wishlists := wishlist.NewService(store, notifier, log)
	status := handler.NewStatusHandler(q, log)

	if wa != nil {
		normalize := func(phone string) string { return whatsapp.NormalizePhoneNumber(phone, cfg.SMS.CountryCode) }
		inbound := handler.NewInboundHandler(store, q, normalize, log)
		wa.SetMessageHandler(inbound.HandleMessage)
		wa.SetReceiptHandler(status.HandleReceipt)
	}

	jobs := scheduler.Jobs(q, notifier, scheduler.JobConfig{
		BatchSize:     cfg.SMS.RateLimit,
		RetentionDays: cfg.SMS.RetentionDays,
		ExchangeDate:  cfg.ExchangeDate,
		Location:      cfg.SMS.Location,
	}, log)
	runner, err := newScheduler(cfg, jobs, log)
	if err != nil {
		return err
	}
	if err := runner.Start(); err != nil {
		return err
	}
	defer runner.Stop()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN not set, admin routes are disabled")
	}
	srv := api.NewServer(api.Deps{
		Store:      store,
		Engine:     engine,
		Exclusions: exclusions,
		Wishlist:   wishlists,
		Notify:     notifier,
		Queue:      q,
		Status:     status,
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AdminToken: cfg.AdminToken,
		BatchSize:  cfg.SMS.RateLimit,
	}, log)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if console {
		go startConsole(ctx, stop, &consoleDeps{
			engine:   engine,
			notifier: notifier,
			queue:    q,
			store:    store,
			batch:    cfg.SMS.RateLimit,
		})
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	return nil
}

// newGateway returns the outbound gateway for SMS_PROVIDER. The WhatsApp
// service is returned separately so inbound handlers can be attached.
func newGateway(ctx context.Context, cfg *config.Config, log zerolog.Logger) (queue.Gateway, *whatsapp.Service, error) {
	if !cfg.SMS.Enabled {
		log.Info().Msg("SMS disabled, messages will only be logged")
		return nil, nil, nil
	}

	switch cfg.SMS.Provider {
	case "twilio":
		client, err := sms.NewClient(sms.Config{
			AccountSID:     cfg.Twilio.AccountSID,
			AuthToken:      cfg.Twilio.AuthToken,
			PhoneNumber:    cfg.Twilio.PhoneNumber,
			StatusCallback: cfg.StatusCallbackURL(),
			BaseURL:        cfg.Twilio.BaseURL,
			Timeout:        cfg.SMS.Timeout,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if name, err := client.Validate(checkCtx); err != nil {
			log.Warn().Err(err).Msg("Twilio credentials could not be verified")
		} else {
			log.Info().Str("account", name).Msg("Twilio account verified")
		}
		return client, nil, nil

	case "whatsapp":
		wa, err := whatsapp.NewService(ctx, &whatsapp.Config{DataDir: cfg.DataDir, CountryCode: cfg.SMS.CountryCode}, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("Connecting to WhatsApp")
		if err := wa.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return wa, wa, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown SMS_PROVIDER %q", queue.ErrConfiguration, cfg.SMS.Provider)
	}
}

func newScheduler(cfg *config.Config, jobs []scheduler.Job, log zerolog.Logger) (scheduler.Runner, error) {
	switch cfg.Scheduler {
	case "local":
		return scheduler.NewLocal(jobs, cfg.SMS.Location, log)
	case "asynq":
		return scheduler.NewAsynq(jobs, asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.SMS.Location, log)
	default:
		return nil, fmt.Errorf("unknown SCHEDULER %q", cfg.Scheduler)
	}
}
