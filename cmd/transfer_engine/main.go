package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/adapters/messaging"
	"github.com/SscSPs/money_transfer_engine/internal/adapters/messaging/kafka"
	"github.com/SscSPs/money_transfer_engine/internal/adapters/ratesource"
	"github.com/SscSPs/money_transfer_engine/internal/adapters/settlement"
	portsrepo "github.com/SscSPs/money_transfer_engine/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_engine/internal/core/services"
	"github.com/SscSPs/money_transfer_engine/internal/handlers"
	"github.com/SscSPs/money_transfer_engine/internal/middleware"
	"github.com/SscSPs/money_transfer_engine/internal/platform/config"
	"github.com/SscSPs/money_transfer_engine/internal/repositories/database/pgsql"
	"github.com/SscSPs/money_transfer_engine/internal/repositories/memory"
	"github.com/SscSPs/money_transfer_engine/pkg/database"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

// Unscaled rail latencies; SETTLEMENT_LATENCY_SCALE multiplies them.
var baseLatency = settlement.SimulationConfig{
	DomesticBankLatency:  2 * time.Second,
	MobileMoneyLatency:   500 * time.Millisecond,
	CardNetworkLatency:   200 * time.Millisecond,
	LinkedAccountLatency: 3 * time.Second,
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Transfer engine stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis is unreachable, rate cache and shared limiter disabled", slog.String("error", err.Error()))
		} else {
			redisClient = client
		}
	}

	rates := buildRateSource(cfg, store.repos, redisClient, logger)

	var broker portssvc.EventPublisher = kafka.NewNoOpProducer(logger)
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
		broker = producer
	}
	publisher := messaging.NewAsyncPublisher(broker, cfg.EventWorkers, cfg.EventQueueSize, logger)

	router, err := buildSettlementRouter(cfg)
	if err != nil {
		return err
	}

	container := services.NewServiceContainer(cfg, services.Dependencies{
		Repos:         store.repos,
		Accounts:      store.accounts,
		Beneficiaries: store.beneficiaries,
		Rates:         rates,
		Router:        router,
		Publisher:     publisher,
	})

	engine, err := buildHTTPEngine(cfg, container, redisClient, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down transfer engine")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		// settlement first so its final events still reach the publisher
		if err := container.Settlement.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := publisher.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

type storage struct {
	repos         portsrepo.RepositoryProvider
	accounts      portssvc.AccountService
	beneficiaries portssvc.BeneficiaryStore
	close         func()
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction {
			return nil, errors.New("PGSQL_URL is required when IS_PRODUCTION is set")
		}
		store := memory.NewStore()
		directory := memory.NewDirectory()
		logger.Warn("Running on the in-memory store; data is lost on restart")
		if cfg.DemoSeed {
			directory.SeedDemo(cfg.DemoUserID, cfg.DemoBalance)
			logger.Warn("Seeded demo account and beneficiaries",
				slog.String("user_id", cfg.DemoUserID),
				slog.String("account_id", memory.DemoAccountID),
				slog.String("balance", cfg.DemoBalance.String()))
		}
		return &storage{
			repos: portsrepo.RepositoryProvider{
				TransferRepo: store,
				QuoteRepo:    store,
			},
			accounts:      directory,
			beneficiaries: directory,
			close:         func() {},
		}, nil
	}

	if cfg.RunMigrations {
		logger.Info("Running database migrations...")
		if err := database.RunMigrations(cfg.DatabaseURL, "file://migrations", logger); err != nil {
			return nil, err
		}
	}

	pool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	return &storage{
		repos:         pgsql.NewRepositoryProvider(pool),
		accounts:      pgsql.NewPgxAccountDirectory(pool),
		beneficiaries: pgsql.NewPgxBeneficiaryDirectory(pool),
		close:         func() { database.ClosePgxPool(pool, logger) },
	}, nil
}

func buildRateSource(cfg *config.Config, repos portsrepo.RepositoryProvider, client *redis.Client, logger *slog.Logger) portssvc.RateSource {
	var source portssvc.RateSource = services.NewStaticRateProvider(nil)
	if cfg.RateSource == config.RateSourceDatabase && repos.ExchangeRateRepo != nil {
		source = services.NewRepositoryRateProvider(repos.ExchangeRateRepo)
	}
	source = ratesource.NewBreakerRateProvider(source, cfg.RateBreakerTrips, cfg.RateBreakerWindow)
	if client != nil {
		source = ratesource.NewCachedRateProvider(client, source, cfg.RateCacheTTL)
	}
	logger.Info("Rate source configured", slog.String("source", cfg.RateSource), slog.Bool("cached", client != nil))
	return source
}

func buildSettlementRouter(cfg *config.Config) (*settlement.Router, error) {
	sim := settlement.SimulationConfig{
		DomesticBankLatency:  scale(baseLatency.DomesticBankLatency, cfg.SettlementLatencyScale),
		MobileMoneyLatency:   scale(baseLatency.MobileMoneyLatency, cfg.SettlementLatencyScale),
		CardNetworkLatency:   scale(baseLatency.CardNetworkLatency, cfg.SettlementLatencyScale),
		LinkedAccountLatency: scale(baseLatency.LinkedAccountLatency, cfg.SettlementLatencyScale),
		FailureRate:          cfg.SettlementFailureRate,
		ReturnRate:           cfg.SettlementReturnRate,
	}

	resilience := settlement.DefaultResilienceConfig()
	resilience.MaxRetries = cfg.SettlementMaxRetries
	resilience.ConsecutiveFailures = cfg.SettlementBreakerTrips
	resilience.OpenTimeout = cfg.SettlementBreakerWindow

	return settlement.NewRouter(settlement.WrapRails(settlement.DefaultRails(sim), resilience))
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}

func buildHTTPEngine(cfg *config.Config, container *portssvc.ServiceContainer, client *redis.Client, logger *slog.Logger) (*gin.Engine, error) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowHeaders("Authorization")
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery(), cors.New(corsConfig))

	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	var rateLimiter *limiter.Limiter
	var err error
	if cfg.RateLimit != "" {
		if client != nil {
			rateLimiter, err = middleware.NewRedisRateLimiter(cfg.RateLimit, client)
		} else {
			rateLimiter, err = middleware.NewRateLimiter(cfg.RateLimit)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := handlers.RegisterRoutes(r, cfg, container, rateLimiter); err != nil {
		return nil, err
	}
	return r, nil
}
