package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/carego/internal/auth"
	cfg "github.com/example/carego/internal/config"
	"github.com/example/carego/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	DB       store.DB
	Codec    *auth.TokenCodec
	Auth     *auth.AuthService
	Admin    *auth.AdminService
	Gateway  *auth.Gateway
	Owners   *auth.OwnershipGate
	Sessions *auth.SessionManager
	Audit    *auth.Auditor
	Metrics  *Metrics
	Log      *zap.Logger

	cfg         *cfg.Config
	rateLimiter *RateLimiter
}

// AppOptions carries the optional collaborators. Zero values fall back to
// in-process defaults.
type AppOptions struct {
	Now          func() time.Time
	Throttle     auth.LoginThrottle
	AuditWriters []auth.AuditWriter
	Log          *zap.Logger
}

func NewApp(c *cfg.Config, db store.DB, opts AppOptions) (*App, error) {
	logger := opts.Log
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:     []byte(c.JwtSecret),
		Issuer:     c.JwtIssuer,
		RefreshTTL: c.RefreshTokenTTL,
		Now:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	throttle := opts.Throttle
	if throttle == nil {
		throttle = auth.NewMemoryThrottle(c.LoginMaxFailures, c.LoginFailureWindow, now)
	}

	metrics := NewMetrics()
	writers := append([]auth.AuditWriter{auth.NewStoreAuditWriter(db), auth.NewLogAuditWriter(logger.Named("audit"))}, opts.AuditWriters...)
	auditor := auth.NewAuditor(c.AuditBuffer, metrics, logger, writers...)
	sessions := auth.NewSessionManager(db, now, logger)

	return &App{
		DB:          db,
		Codec:       codec,
		Auth:        auth.NewAuthService(db, codec, sessions, throttle, auditor, metrics, c.RotateRefreshTokens, logger),
		Admin:       auth.NewAdminService(db, sessions, auditor, logger),
		Gateway:     auth.NewGateway(codec, sessions, db, metrics, logger),
		Owners:      auth.NewOwnershipGate(db),
		Sessions:    sessions,
		Audit:       auditor,
		Metrics:     metrics,
		Log:         logger,
		cfg:         c,
		rateLimiter: NewRateLimiter(c.RateLimitPerMinute),
	}, nil
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Log.Warn("write json failed", zap.Int("status", status), zap.Error(err))
	}
}

func newLogger(c *cfg.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if !c.IsProduction() {
		zc = zap.NewDevelopmentConfig()
	}
	lvl, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc.Level = lvl
	return zc.Build()
}

func main() {
	notes, err := cfg.LoadEnv(context.Background(), ".env")
	if err != nil {
		log.Fatalf("env: %v", err)
	}
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := newLogger(c)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	for _, n := range notes {
		logger.Info(n)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.DBAdapter == "memory" {
		logger.Warn("using in-memory database (not recommended for production)")
	}
	db, err := store.Open(ctx, c)
	if err != nil {
		logger.Fatal("database init failed", zap.String("adapter", c.DBAdapter), zap.Error(err))
	}
	logger.Info("database ready", zap.String("adapter", c.DBAdapter))

	opts := AppOptions{Log: logger}

	var rdb *redis.Client
	if c.RedisURL != "" {
		ro, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb = redis.NewClient(ro)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis unreachable", zap.Error(err))
		}
		opts.Throttle = auth.NewRedisThrottle(rdb, c.LoginMaxFailures, c.LoginFailureWindow)
		logger.Info("login throttle backed by redis")
	}

	var closeAMQP func() error
	if c.AMQPURL != "" {
		w, closeFn, err := auth.DialAMQPAudit(c.AMQPURL, c.AuditExchange)
		if err != nil {
			logger.Fatal("audit broker unreachable", zap.Error(err))
		}
		opts.AuditWriters = append(opts.AuditWriters, w)
		closeAMQP = closeFn
		logger.Info("audit entries published", zap.String("exchange", c.AuditExchange))
	}

	app, err := NewApp(c, db, opts)
	if err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	go app.Sessions.RunSweeper(sweepCtx, c.SessionSweepInterval, app.Metrics.swept)
	go app.rateLimiter.RunSweeper(sweepCtx, time.Minute)

	srv := &http.Server{Handler: buildRouter(app), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		logger.Info("starting server", zap.String("port", c.Port), zap.String("env", c.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	if err := app.Audit.Close(shutdownCtx); err != nil {
		logger.Warn("audit queue not drained", zap.Error(err))
	}
	if closeAMQP != nil {
		_ = closeAMQP()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	_ = db.Close()
	logger.Info("server exited properly")
}
