package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tolkly/bookingd/internal/analytics"
	"github.com/tolkly/bookingd/internal/circuitbreaker"
	"github.com/tolkly/bookingd/internal/config"
	"github.com/tolkly/bookingd/internal/leaderelection"
	"github.com/tolkly/bookingd/internal/matching"
	"github.com/tolkly/bookingd/internal/metrics"
	"github.com/tolkly/bookingd/internal/notify"
	"github.com/tolkly/bookingd/internal/store/postgres"
	"github.com/tolkly/bookingd/internal/sweeper"
	"github.com/tolkly/bookingd/internal/timewindow"
	"github.com/tolkly/bookingd/internal/transport"
	"github.com/tolkly/bookingd/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`bookingd - interpreting booking lifecycle daemon

Usage:
  bookingd <command>

Commands:
  serve      Start the notification dispatcher and booking sweeper
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  REDIS_ADDR                Redis address for delivery analytics (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")
  TIMEZONE                  Zone for night/business-hour rules (default: "Europe/Stockholm")
  BUSINESS_SPEC             Cron expression for business-day start (default: "0 9 * * 1-5")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")

  SWEEP_ENABLED             Enable the expiry/reminder sweeper (default: "true")
  SWEEP_INTERVAL            How often the sweeper runs (default: "1m")
  REMINDER_LEAD             Session reminder lead time (default: "15m")
  SWEEP_BATCH_SIZE          Max rows per sweep cycle (default: "100")

  PUSH_URL, PUSH_APP_ID, PUSH_API_KEY, PUSH_TIMEOUT
  SMS_URL, SMS_TOKEN, SMS_FROM
  SMTP_ADDR, SMTP_FROM, SMTP_FROM_NAME, SMTP_USERNAME, SMTP_PASSWORD

  ANALYTICS_ENABLED         Write delivery counters to Redis (default: "false")
  EVENTBUS_BUFFER_SIZE      Event bus buffer size (default: "100")
  CIRCUIT_BREAKER_THRESHOLD Failures before a provider endpoint opens (default: "5")
  CIRCUIT_BREAKER_COOLDOWN  Open-endpoint cooldown (default: "2m")

  LEADER_LOCK_KEY           Advisory lock key shared by all instances
  LEADER_RETRY_INTERVAL     Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL Leader connection ping interval (default: "2s")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("bookingd: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db)

	policy, err := timewindow.New(timewindow.Config{
		Timezone:     cfg.Timezone,
		BusinessSpec: cfg.BusinessSpec,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid time policy: %v\n", err)
		return exitInvalidConfig
	}

	matcher := matching.New(store)

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("bookingd: metrics enabled (path=%s)", cfg.MetricsPath)
	} else {
		log.Println("bookingd: METRICS_ENABLED not set; metrics disabled")
	}

	// Create event bus with optional metrics
	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewEventBus(cfg.EventBusBufferSize, busOpts...)

	// Outbound providers share one breaker keyed per endpoint.
	breaker := circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	push := transport.NewPushSender(transport.PushConfig{
		URL:     cfg.PushURL,
		AppID:   cfg.PushAppID,
		APIKey:  cfg.PushAPIKey,
		Timeout: cfg.PushTimeout,
	}, breaker, nil)
	sms := transport.NewSMSSender(transport.SMSConfig{
		URL:   cfg.SMSURL,
		Token: cfg.SMSToken,
		From:  cfg.SMSFrom,
	}, breaker, nil)
	email := transport.NewEmailSender(transport.SMTPConfig{
		Addr:     cfg.SMTPAddr,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	}, nil)
	messenger := transport.NewMessenger(push, sms, email)

	disp := notify.New(store, matcher, policy, messenger)
	if metricsSink != nil {
		disp = disp.WithMetrics(metricsSink)
	}

	// Wire analytics if enabled
	if cfg.AnalyticsEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		sink := analytics.NewRedisSink(redisClient, analytics.DefaultConfig())
		disp = disp.WithAnalytics(sink)
		log.Printf("bookingd: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("bookingd: ANALYTICS_ENABLED not set; analytics disabled")
	}

	// Start HTTP server with health and metrics endpoints
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	if cfg.MetricsEnabled {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("bookingd: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("bookingd: http server error: %v", err)
		}
	}()

	// Use separate contexts for the elector and dispatcher to enable ordered shutdown.
	electorCtx, cancelElector := context.WithCancel(context.Background())
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())

	var electorWg sync.WaitGroup
	var dispatcherWg sync.WaitGroup

	dispatcherWg.Add(1)
	go func() {
		defer dispatcherWg.Done()
		disp.Run(dispatcherCtx, bus.Channel())
	}()

	// The sweeper runs only on the leader so expiries and reminders fire once.
	if cfg.SweepEnabled {
		sweep := sweeper.New(sweeper.Config{
			Interval:     cfg.SweepInterval,
			ReminderLead: cfg.ReminderLead,
			BatchSize:    cfg.SweepBatchSize,
		}, store, bus)
		if metricsSink != nil {
			sweep = sweep.WithMetrics(metricsSink)
		}

		var sweepWg sync.WaitGroup
		elector := leaderelection.New(
			db,
			cfg.LeaderLockKey,
			cfg.LeaderRetryInterval,
			cfg.LeaderHeartbeatInterval,
			func(leaderCtx context.Context) {
				sweepWg.Add(1)
				go func() {
					defer sweepWg.Done()
					sweep.Run(leaderCtx)
				}()
			},
			func() {
				sweepWg.Wait()
			},
		)
		if metricsSink != nil {
			elector = elector.WithMetrics(metricsSink)
		}

		electorWg.Add(1)
		go func() {
			defer electorWg.Done()
			elector.Run(electorCtx)
		}()
		log.Printf("bookingd: sweeper enabled (interval=%s, reminder_lead=%s, batch=%d)",
			cfg.SweepInterval, cfg.ReminderLead, cfg.SweepBatchSize)
	} else {
		log.Println("bookingd: SWEEP_ENABLED=false; sweeper disabled")
	}

	log.Printf("bookingd: started (http=%s, tz=%s)", cfg.HTTPAddr, cfg.Timezone)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("bookingd: received signal %v, shutting down", received)

	// Phase 1: Stop the elector; demotion stops the sweeper, so no new
	// events are emitted.
	log.Println("bookingd: stopping sweeper...")
	cancelElector()
	electorWg.Wait()
	log.Println("bookingd: sweeper stopped")

	// Phase 2: Stop dispatcher (will drain buffered events before returning)
	log.Println("bookingd: stopping dispatcher (draining events)...")
	cancelDispatcher()
	dispatcherWg.Wait()
	log.Println("bookingd: dispatcher stopped")

	// Phase 3: Stop HTTP server with graceful shutdown
	log.Println("bookingd: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("bookingd: http server shutdown error: %v", err)
	}
	log.Println("bookingd: http server stopped")

	log.Println("bookingd: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("bookingd version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
