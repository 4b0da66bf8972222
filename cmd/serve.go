package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricetrack/internal/monitoring"
	"github.com/sells-group/pricetrack/internal/store"
	"github.com/sells-group/pricetrack/internal/telemetry"
)

const (
	cacheKeyBatteries = "batteries"
	cacheKeyClasses   = "classes"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog API and batch webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, version)
		if err != nil {
			return err
		}
		defer func() { _ = shutdownTracing(context.WithoutCancel(ctx)) }()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(monitoring.NewCollector(env.Store), env.Alerter, env.Metrics, cfg.Monitoring)
		go checker.Run(ctx)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(ctx, env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter wires the HTTP API over env. ctx bounds background work
// started by handlers.
func buildRouter(ctx context.Context, env *pipelineEnv) http.Handler {
	c := newResponseCache(time.Duration(cfg.Server.CacheTTLSecs) * time.Second)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/batteries", func(w http.ResponseWriter, r *http.Request) {
		if v, ok := c.get(cacheKeyBatteries); ok {
			writeJSON(w, http.StatusOK, v)
			return
		}
		batteries, err := env.Store.ListEntitiesWithClassInfo(r.Context())
		if err != nil {
			zap.L().Error("api: list batteries", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to fetch batteries")
			return
		}
		c.set(cacheKeyBatteries, batteries)
		writeJSON(w, http.StatusOK, batteries)
	})

	r.Get("/api/classes", func(w http.ResponseWriter, r *http.Request) {
		if v, ok := c.get(cacheKeyClasses); ok {
			writeJSON(w, http.StatusOK, v)
			return
		}
		classes, err := env.Store.ListClasses(r.Context())
		if err != nil {
			zap.L().Error("api: list classes", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to fetch battery classes")
			return
		}
		c.set(cacheKeyClasses, classes)
		writeJSON(w, http.StatusOK, classes)
	})

	r.Get("/api/price-history", func(w http.ResponseWriter, r *http.Request) {
		batteryID := r.URL.Query().Get("batteryId")
		if batteryID == "" {
			writeError(w, http.StatusBadRequest, "batteryId is required")
			return
		}
		limit, err := parseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		history, err := env.Store.ReadHistory(r.Context(), batteryID, limit)
		if err != nil {
			zap.L().Error("api: read history", zap.String("battery_id", batteryID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to fetch price history")
			return
		}
		writeJSON(w, http.StatusOK, history)
	})

	r.Post("/webhook/batch", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, cfg.Server.WebhookToken) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		summary := env.Runner.RunBatch(r.Context(), env.Suppliers)
		c.invalidate(cacheKeyBatteries)

		if alerts := env.Alerter.Evaluate(summary); len(alerts) > 0 {
			go env.Alerter.SendAlerts(ctx, alerts)
		}
		writeJSON(w, http.StatusOK, summary)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(env.Registry, promhttp.HandlerOpts{}))

	return r
}

// responseCache caches catalog reads. A zero TTL disables it.
type responseCache struct {
	c *cache.Cache
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		return &responseCache{}
	}
	return &responseCache{c: cache.New(ttl, 2*ttl)}
}

func (rc *responseCache) get(key string) (any, bool) {
	if rc.c == nil {
		return nil, false
	}
	return rc.c.Get(key)
}

func (rc *responseCache) set(key string, v any) {
	if rc.c != nil {
		rc.c.SetDefault(key, v)
	}
}

func (rc *responseCache) invalidate(keys ...string) {
	if rc.c == nil {
		return
	}
	for _, k := range keys {
		rc.c.Delete(k)
	}
}

// parseLimit reads the history limit query value. Empty means the
// default; values above the maximum are capped.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return store.DefaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, eris.Errorf("limit must be a positive integer, got %q", raw)
	}
	return min(n, store.MaxHistoryLimit), nil
}

// authorized checks a bearer token. An empty token disables the check.
func authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
