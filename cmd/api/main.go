package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limitermw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/mveljko/backend-cenik/internal/admin"
	"github.com/mveljko/backend-cenik/internal/app"
	"github.com/mveljko/backend-cenik/internal/auth"
	"github.com/mveljko/backend-cenik/internal/catalog"
	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/config"
	"github.com/mveljko/backend-cenik/internal/db"
	"github.com/mveljko/backend-cenik/internal/fx"
	"github.com/mveljko/backend-cenik/internal/health"
	"github.com/mveljko/backend-cenik/internal/lock"
	"github.com/mveljko/backend-cenik/internal/obs"
	"github.com/mveljko/backend-cenik/internal/prices"
	"github.com/mveljko/backend-cenik/internal/quote"
	"github.com/mveljko/backend-cenik/internal/ratelimit"
	"github.com/mveljko/backend-cenik/internal/repo"
	"github.com/mveljko/backend-cenik/internal/security"
	"github.com/mveljko/backend-cenik/internal/settings"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "cenik")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "cenik-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "cenik-api"
	poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = strconv.Itoa(envInt("DB_STATEMENT_TIMEOUT_MS", 5000))

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	ruleStore := repo.NewRuleStore(pool)
	catalogStore := repo.NewCatalogStore(pool)
	snapshotStore := repo.NewSnapshotStore(pool)
	adminStore := repo.NewAdminStore(pool)
	offerStore := repo.NewOfferStore(pool)
	backupStore := repo.NewBackupStore(pool)
	settingsLoader := settings.NewLoader(adminStore)

	authService, err := auth.NewService(auth.Config{
		Store:    adminStore,
		Secret:   cfg.JWTSecret,
		TokenTTL: cfg.TokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{Service: authService, Validate: validator.New()}
	authMiddleware := auth.Middleware{Service: authService}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Store:    catalogStore,
		Cache:    catalog.NewCache(redisClient, envDurationMillis("CATALOG_CACHE_TTL_MS", 60000)),
		Settings: settingsLoader,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalogService)

	pricesService, err := prices.NewService(prices.ServiceConfig{
		Snapshots: snapshotStore,
		Catalog:   catalogStore,
		Rules:     ruleStore,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise prices service")
	}
	pricesHandler := prices.NewHandler(pricesService)

	quoteService, err := quote.NewService(quote.ServiceConfig{
		Offers:   offerStore,
		Prices:   snapshotStore,
		Products: catalogStore,
		Settings: settingsLoader,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise quote service")
	}
	quoteHandler := quote.NewHandler(quoteService)

	adminService, err := admin.NewService(admin.ServiceConfig{
		Rules:       ruleStore,
		Store:       adminStore,
		Backups:     backupStore,
		Passwords:   authService,
		RestoreLock: lock.Locker{R: redisClient},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise admin service")
	}
	adminHandler := admin.NewHandler(adminService)

	fxHandler := fx.NewHandler(fx.NewClient(cfg.FXRateURL, cfg.FXTimeout))

	idem := common.Idem{R: redisClient, TTL: 24 * time.Hour}

	apiLimiter, err := app.NewAPILimiter(redisClient, cfg.APIRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise api rate limiter")
	}

	loginRate, err := limiter.NewRateFromFormatted(cfg.LoginRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse login rate limit")
	}
	loginLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:login"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return common.ClientIP(r) },
			Window: loginRate.Period,
			Max:    int(loginRate.Limit),
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("login rate limiter") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: 64 << 20}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(limitermw.NewMiddleware(apiLimiter).Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", true) {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPassword))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.With(loginLimit.Middleware).Post("/auth/login", authHandler.Login)

		v.Group(func(p chi.Router) {
			p.Use(authMiddleware.RequireRole(auth.RolePricing))

			p.Get("/brands", catalogHandler.Brands)
			p.Post("/brands", catalogHandler.CreateBrand)
			p.Put("/brands/{brandID}", catalogHandler.RenameBrand)
			p.Delete("/brands/{brandID}", catalogHandler.DeleteBrand)

			p.Get("/categories", catalogHandler.Categories)
			p.Post("/categories", catalogHandler.CreateCategory)
			p.Put("/categories/{categoryID}", catalogHandler.UpdateCategory)
			p.Delete("/categories/{categoryID}", catalogHandler.DeleteCategory)

			p.Get("/products", catalogHandler.Products)
			p.Get("/products/{productID}", catalogHandler.Product)
			p.Post("/products", catalogHandler.CreateProduct)
			p.Put("/products/{productID}", catalogHandler.UpdateProduct)
			p.Delete("/products/{productID}", catalogHandler.DeleteProduct)

			p.Get("/products/{productID}/prices", pricesHandler.History)
			p.Get("/products/{productID}/prices/latest", pricesHandler.Latest)
			p.Get("/prices/export", pricesHandler.ExportCSV)
			p.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/products/{productID}/prices", pricesHandler.Create)
				g.Post("/products/{productID}/prices/quick", pricesHandler.QuickUpdate)
				g.Put("/prices/{snapshotID}", pricesHandler.Edit)
				g.Delete("/prices/{snapshotID}", pricesHandler.Delete)
			})
		})

		v.Group(func(o chi.Router) {
			o.Use(authMiddleware.RequireRole(auth.RoleOffer))

			o.Get("/fx/rate", fxHandler.Rate)
			o.Get("/offers", quoteHandler.List)
			o.Get("/offers/{offerID}", quoteHandler.Get)
			o.Get("/offers/{offerID}/export", quoteHandler.ExportCSV)
			o.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/offers", quoteHandler.Create)
				g.Put("/offers/{offerID}", quoteHandler.Update)
				g.Delete("/offers/{offerID}", quoteHandler.Delete)
				g.Post("/offers/{offerID}/duplicate", quoteHandler.Duplicate)
				g.Put("/offers/{offerID}/reorder", quoteHandler.Reorder)
			})
		})

		v.Route("/admin", func(a chi.Router) {
			a.Use(authMiddleware.RequireRole(auth.RoleAdmin))

			a.Get("/rules", adminHandler.Rules)
			a.Post("/rules", adminHandler.CreateRule)
			a.Put("/rules/{ruleID}", adminHandler.UpdateRule)
			a.Delete("/rules/{ruleID}", adminHandler.DeleteRule)

			a.Get("/settings", adminHandler.Settings)
			a.Put("/settings", adminHandler.PutSetting)

			a.Get("/presets", adminHandler.Presets)
			a.Post("/presets", adminHandler.SavePreset)
			a.Put("/presets/{presetID}", adminHandler.SavePreset)
			a.Delete("/presets/{presetID}", adminHandler.DeletePreset)

			a.Get("/templates", adminHandler.Templates)
			a.Post("/templates", adminHandler.SaveTemplate)
			a.Put("/templates/{templateID}", adminHandler.SaveTemplate)
			a.Delete("/templates/{templateID}", adminHandler.DeleteTemplate)

			a.Put("/passwords", adminHandler.SetPassword)
			a.Get("/backup", adminHandler.Backup)
			a.Post("/restore", adminHandler.Restore)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
