package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ridematch/internal/config"
	handlers "ridematch/internal/handlers/shared"
	"ridematch/internal/middleware"
	"ridematch/internal/repositories/interfaces"
	"ridematch/internal/repositories/memory"
	"ridematch/internal/repositories/mongodb"
	"ridematch/internal/services"
	"ridematch/internal/utils"
	"ridematch/pkg/cache"
	"ridematch/pkg/database"
	"ridematch/pkg/events"
	"ridematch/pkg/logger"
	"ridematch/pkg/maps"
	"ridematch/pkg/metrics"
	"ridematch/pkg/signals"
	"ridematch/pkg/websocket"
	"ridematch/routes"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  "stdout",
		Caller:  cfg.App.Debug,
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.WithError(err).Fatal("Server stopped with error")
	}
}

type storage struct {
	rides  interfaces.RideRepository
	quotes interfaces.PriceQuoteRepository
	mongo  *database.MongoDB
}

func run(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	store, err := openStorage(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	if store.mongo != nil {
		defer store.mongo.Close()
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCache(ctx, &cache.RedisConfig{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return err
		}
		defer redisCache.Close()
	}

	zones, err := utils.NewZoneIndex(cfg.Pricing.ZoneCellSizeDeg)
	if err != nil {
		return fmt.Errorf("invalid zone grid: %w", err)
	}

	var demand services.DemandTracker
	if redisCache != nil {
		demand = services.NewRedisDemandTracker(redisCache, zones, cfg.Signals.Demand.Window)
	} else {
		demand = services.NewMemoryDemandTracker(zones, cfg.Signals.Demand.Window)
	}

	var googleMaps *maps.GoogleMapsProvider
	if cfg.Maps.Enabled() {
		googleMaps, err = maps.NewGoogleMapsProvider(maps.GoogleMapsConfig{
			APIKey:         cfg.Maps.GoogleMaps.APIKey,
			RequestTimeout: cfg.Maps.GoogleMaps.RequestTimeout,
			RateLimit:      cfg.Maps.GoogleMaps.RateLimit,
		})
		if err != nil {
			return err
		}
	} else {
		appLogger.Warn("Google Maps disabled, traffic signal is neutral and addresses are not geocoded")
	}

	location, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	signalSet := buildSignals(cfg, redisCache, googleMaps, demand, location, appLogger)
	pricing := services.NewPricingService(cfg.Pricing, cfg.App.Currency, zones, signalSet, store.quotes, m, appLogger)

	var geocoder services.Geocoder
	if googleMaps != nil {
		geocoder = googleMaps
	}
	rides := services.NewRideService(store.rides, pricing, zones, demand, geocoder, services.RideOptions{
		OTPLength:      cfg.Security.OTPLength,
		OTPExpiry:      cfg.Security.OTPExpiry,
		OTPMaxAttempts: cfg.Security.OTPMaxAttempts,
		PendingTTL:     cfg.Dispatch.PendingTTL,
		PendingLimit:   cfg.Dispatch.PendingLimit,
		Currency:       cfg.App.Currency,
	}, m, appLogger)

	var bus services.DispatchBus
	if cfg.Dispatch.Backend == "redis" && redisCache != nil {
		bus = services.NewRedisDispatchBus(redisCache, cfg.Dispatch.SubscriberBuffer, appLogger)
	} else {
		if cfg.Dispatch.Backend == "redis" {
			appLogger.Warn("Redis disabled, dispatch events stay in this process")
		}
		bus = services.NewLocalDispatchBus(cfg.Dispatch.SubscriberBuffer, appLogger)
	}
	defer bus.Close()

	var payments events.PaymentPublisher = events.NopPaymentPublisher{}
	if cfg.Events.Kafka.Enabled() {
		payments = events.NewKafkaPaymentProducer(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.PaymentTopic, cfg.Events.Kafka.WriteTimeout)
	}
	defer payments.Close()

	matching := services.NewMatchingService(rides, pricing, demand, bus, payments, cfg.Dispatch.PublishTimeout, m, appLogger)

	hub := websocket.NewHub(matching, m, appLogger)
	go hub.Run(ctx)
	go func() {
		if err := hub.Relay(ctx, bus); err != nil {
			appLogger.WithError(err).Error("Dispatch relay stopped")
		}
	}()
	go matching.RunPendingExpiry(ctx, cfg.Dispatch.ExpirySweepInterval)

	router := buildRouter(ctx, cfg, appLogger, m, registry, store, redisCache, matching, hub)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.WithField("addr", server.Addr).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStorage(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (*storage, error) {
	if cfg.App.StorageDriver == config.StorageMemory {
		appLogger.Warn("Using in-memory storage, rides are lost on restart")
		return &storage{
			rides:  memory.NewRideRepository(),
			quotes: memory.NewPriceQuoteRepository(cfg.Pricing.QuoteRetention),
		}, nil
	}

	db, err := database.NewMongoDB(ctx, &database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Database.RunMigrations {
		if err := database.NewMigrator(db.Database, cfg.Pricing.QuoteRetention, appLogger).Up(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &storage{
		rides:  mongodb.NewRideRepository(db.Database),
		quotes: mongodb.NewPriceQuoteRepository(db.Database),
		mongo:  db,
	}, nil
}

// buildSignals picks a live provider per signal where one is configured and
// a neutral static reading otherwise.
func buildSignals(
	cfg *config.Config,
	redisCache *cache.RedisCache,
	googleMaps *maps.GoogleMapsProvider,
	demand services.DemandTracker,
	location *time.Location,
	appLogger *logger.Logger,
) services.SignalSet {
	set := services.SignalSet{
		Weather: signals.NewStatic(signals.NameWeather, signals.NeutralWeather),
		Traffic: signals.NewStatic(signals.NameTraffic, signals.NeutralTraffic),
		Demand:  signals.NewDemandProvider(demand, cfg.Signals.Demand.Window),
		Time:    signals.NewTimeOfDayProvider(location),
	}

	weather := cfg.Signals.Weather
	if weather.Provider == "openweather" && weather.APIKey != "" {
		var weatherCache signals.Cache
		if redisCache != nil {
			weatherCache = redisCache
		}
		set.Weather = signals.NewOpenWeatherProvider(signals.OpenWeatherConfig{
			APIKey:   weather.APIKey,
			BaseURL:  weather.BaseURL,
			CacheTTL: weather.CacheTTL,
		}, &http.Client{Timeout: cfg.Pricing.ProviderTimeout}, weatherCache)
	} else {
		appLogger.Info("Weather signal uses the neutral reading")
	}

	if googleMaps != nil {
		set.Traffic = signals.NewTrafficProvider(googleMaps, cfg.Signals.Traffic.ProbeDistanceKM, cfg.Signals.Traffic.ProbeBearing)
	}

	return set
}

func buildRouter(
	ctx context.Context,
	cfg *config.Config,
	appLogger *logger.Logger,
	m *metrics.Metrics,
	registry *prometheus.Registry,
	store *storage,
	redisCache *cache.RedisCache,
	matching services.MatchingService,
	hub *websocket.Hub,
) *gin.Engine {
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		appLogger.WithError(err).Warn("Invalid trusted proxies, trusting none")
		_ = router.SetTrustedProxies(nil)
	}

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))

	auth := routes.AuthConfig{Secret: cfg.Security.JWTSecret, Issuer: cfg.Security.JWTIssuer}

	// API routes
	v1 := router.Group("/api/v1")
	{
		routes.SetupRideRoutes(v1, auth, handlers.NewRideHandler(matching, appLogger))
		routes.SetupDriverRoutes(v1, auth, handlers.NewDriverHandler(matching, appLogger))
	}

	wsHandler := websocket.NewHandler(ctx, hub, cfg.WebSocket, appLogger)
	routes.SetupWebSocketRoutes(router, cfg.WebSocket.Path, auth, wsHandler)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		checks := gin.H{}
		healthy := true
		if store.mongo != nil {
			if err := store.mongo.Ping(c.Request.Context()); err != nil {
				checks["mongodb"] = err.Error()
				healthy = false
			} else {
				checks["mongodb"] = "ok"
			}
		}
		if redisCache != nil {
			if err := redisCache.Ping(c.Request.Context()); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			} else {
				checks["redis"] = "ok"
			}
		}

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":      status,
			"version":     cfg.App.Version,
			"checks":      checks,
			"ws_clients":  hub.ClientCount(),
			"environment": cfg.App.Environment,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	return router
}
