// Command server runs the gatepass HTTP API. main wires configuration,
// stores, dispatchers, and the router, and keeps the server lifecycle
// small; business rules live under internal/visit.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatepass/internal/actortoken"
	"gatepass/internal/directory"
	"gatepass/internal/notify"
	"gatepass/internal/platform/config"
	"gatepass/internal/platform/httpserver"
	"gatepass/internal/platform/logger"
	platformmetrics "gatepass/internal/platform/metrics"
	"gatepass/internal/platform/middleware"
	platformredis "gatepass/internal/platform/redis"
	"gatepass/internal/policy"
	"gatepass/internal/ratelimit"
	"gatepass/internal/visit/credential"
	"gatepass/internal/visit/handler"
	visitmetrics "gatepass/internal/visit/metrics"
	"gatepass/internal/visit/service"
	visitstore "gatepass/internal/visit/store/visit"
)

const (
	tokenIssuer    = "gatepass"
	startupTimeout = 5 * time.Second
)

// visitStore is the union of what the service and the credential manager
// need from the store. Both the postgres and the in-memory store satisfy it.
type visitStore interface {
	service.VisitStore
	credential.VisitSource
}

func main() {
	// Local development reads .env; deployments set real variables.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New(cfg.Server.Env)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	visits, db, err := buildVisitStore(cfg.Database, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	credentials := credential.New(cfg.Credential.SigningKey, cfg.Credential.TTL, visits)

	dispatcher, stopDispatch, err := buildDispatcher(cfg, log)
	if err != nil {
		return err
	}
	defer stopDispatch()

	cache, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var limiter ratelimit.Store = ratelimit.NewMemory()
	if cache != nil {
		defer cache.Close()
		limiter = ratelimit.NewRedis(cache, "gatepass:ratelimit")
	} else {
		log.Warn("redis not configured, scan rate limits are per instance")
	}

	svc := service.New(visits, buildDirectory(cfg.Directory, log), credentials, policy.NewDefault(),
		service.WithLogger(log),
		service.WithDispatcher(dispatcher),
		service.WithMetrics(visitmetrics.New()),
	)

	scanLimit := ratelimit.Middleware(limiter, cfg.RateLimit.ScanRequestsPerWindow, cfg.RateLimit.ScanWindow, log)
	visitHandler := handler.New(svc, log, handler.WithScanLimiter(scanLimit))
	tokens := actortoken.New(cfg.Auth.TokenSigningKey, tokenIssuer)

	httpMetrics := platformmetrics.New()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.LatencyMiddleware(httpMetrics))
	router.Use(cors.Handler(corsOptions(cfg.Server.CORSOrigins)))

	router.Get("/healthz", handleHealth(db, cache))
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor(tokens, log))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
		visitHandler.Register(r)
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("gatepass listening", "addr", cfg.Server.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// buildVisitStore opens Postgres when configured and falls back to the
// in-memory store otherwise. The returned *sql.DB is nil in the fallback.
func buildVisitStore(cfg config.DatabaseConfig, log *slog.Logger) (visitStore, *sql.DB, error) {
	if cfg.URL == "" {
		log.Warn("no database configured, visits are held in memory and lost on restart")
		return visitstore.NewInMemory(), nil, nil
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if err := visitstore.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ensure visits schema: %w", err)
	}
	return visitstore.NewPostgres(db), db, nil
}

func buildDirectory(cfg config.DirectoryConfig, log *slog.Logger) service.Directory {
	if cfg.BaseURL == "" {
		log.Warn("no directory service configured, visitor and host references will not resolve")
		return directory.NewMemory()
	}
	return directory.NewHTTPClient(cfg.BaseURL, cfg.Timeout)
}

// buildDispatcher assembles the notification fanout. The ops log is always
// on; Kafka and SMTP join when configured. The returned stop func flushes
// the Kafka producer.
func buildDispatcher(cfg config.Config, log *slog.Logger) (service.Dispatcher, func(), error) {
	dispatchers := []notify.Dispatcher{notify.NewLogDispatcher(log)}
	stop := func() {}

	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := notify.NewKafkaDispatcher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect kafka: %w", err)
		}
		dispatchers = append(dispatchers, kafka)
		stop = kafka.Close
		log.Info("kafka dispatcher enabled", "topic", cfg.Kafka.Topic)
	}

	if cfg.SMTP.Host != "" {
		mailer, err := notify.NewMailDispatcher(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
		if err != nil {
			return nil, nil, fmt.Errorf("connect smtp: %w", err)
		}
		dispatchers = append(dispatchers, mailer)
		log.Info("mail dispatcher enabled", "host", cfg.SMTP.Host)
	}

	return notify.NewFanout(dispatchers...), stop, nil
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}
}

// handleHealth reports liveness plus the state of optional backends. A
// reachable process with a broken database answers 503 so the balancer
// rotates it out.
func handleHealth(db *sql.DB, cache *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := map[string]string{}
		if db != nil {
			checks["database"] = "ok"
			if err := db.PingContext(ctx); err != nil {
				checks["database"] = "unreachable"
				status = http.StatusServiceUnavailable
			}
		}
		if cache != nil {
			checks["redis"] = "ok"
			if err := cache.Health(ctx); err != nil {
				checks["redis"] = "unreachable"
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": http.StatusText(status),
			"checks": checks,
		})
	}
}
