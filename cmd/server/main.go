package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/namsral/flag"
	"github.com/redis/go-redis/v9"

	"github.com/vpanel/economy-engine/internal/account"
	"github.com/vpanel/economy-engine/internal/api"
	"github.com/vpanel/economy-engine/internal/bonus"
	"github.com/vpanel/economy-engine/internal/contest"
	"github.com/vpanel/economy-engine/internal/ledger"
	"github.com/vpanel/economy-engine/internal/lock"
	"github.com/vpanel/economy-engine/internal/metrics"
	"github.com/vpanel/economy-engine/internal/notify"
	"github.com/vpanel/economy-engine/internal/rng"
	"github.com/vpanel/economy-engine/internal/sched"
	"github.com/vpanel/economy-engine/internal/surprise"
	"github.com/vpanel/economy-engine/internal/wager"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var (
		port          = flag.String("port", "8080", "HTTP listen port")
		databaseURL   = flag.String("database-url", "", "PostgreSQL DSN for the user store")
		redisURL      = flag.String("redis-url", "", "Redis URL for the ledger and lock manager")
		telegramToken = flag.String("telegram-token", "", "Telegram bot token for announcements")
		telegramGroup = flag.Int64("telegram-group", 0, "Telegram group chat id for draw reports")
		telegramAdmin = flag.Int64("telegram-admin", 0, "Telegram chat id for operator alerts")
		drawSchedule  = flag.String("draw-schedule", sched.DrawSchedule, "cron spec for the daily draw")
		rngSeed       = flag.Int64("rng-seed", 0, "fixed RNG seed, 0 for time-based")
	)
	flag.Parse()

	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- User store ---
	var accounts account.Store
	if *databaseURL != "" {
		if err := account.Migrate(*databaseURL); err != nil {
			slog.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		pool, err := pgxpool.New(context.Background(), *databaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		accounts = account.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("database-url not set, using in-memory user store (data will not persist)")
		accounts = account.NewMemoryStore()
	}

	// --- Ledger and lock manager ---
	var led ledger.Store
	var locks lock.Manager
	if *redisURL != "" {
		opt, err := redis.ParseURL(*redisURL)
		if err != nil {
			slog.Error("invalid redis-url", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		led = ledger.NewRedisStore(rdb)
		locks = lock.NewRedisManager(rdb)
		slog.Info("connected to Redis")
	} else {
		slog.Warn("redis-url not set, using in-memory ledger and locks (single instance only)")
		led = ledger.NewMemoryStore()
		locks = lock.NewMemoryManager()
	}

	// --- Engines ---
	mutator := account.NewMutator(accounts)
	seed := *rngSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	src := rng.New(seed)

	wagers := wager.New(locks, accounts, mutator, led, src)
	contests := contest.New(locks, accounts, mutator, led, src)
	bonuses := bonus.New(locks, mutator, led, src)
	surprises := surprise.New(locks, mutator, src)

	// --- Notification channels ---
	hub := notify.NewHub()
	go hub.Run()
	wagers.OnBigWin = hub.BroadcastBigWin

	dispatchers := notify.Multi{notify.LogDispatcher{}, hub}
	if *telegramToken != "" {
		adminChat := *telegramAdmin
		if adminChat == 0 {
			adminChat = *telegramGroup
		}
		tg, err := notify.NewTelegram(*telegramToken, *telegramGroup, adminChat)
		if err != nil {
			slog.Error("telegram init failed", "err", err)
			os.Exit(1)
		}
		dispatchers = append(dispatchers, tg)
		slog.Info("telegram announcements enabled")
	}

	// --- Scheduler ---
	runner := sched.NewRunner(contests, surprises, dispatchers)
	cr := sched.NewCron()
	if err := cr.RegisterTask("daily.draw", *drawSchedule, runner.RunToday); err != nil {
		slog.Error("scheduler setup failed", "err", err)
		os.Exit(1)
	}
	cr.Start()

	// --- HTTP router ---
	svc := api.NewService(wagers, contests, bonuses, runner)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"economy-engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", hub.HandleWS)
		svc.Register(r)
	})

	srv := &http.Server{
		Addr:         ":" + *port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("economy-engine listening", "port", *port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down economy-engine...")
	<-cr.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	slog.Info("economy-engine stopped")
}
