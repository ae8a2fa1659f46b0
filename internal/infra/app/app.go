package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/tolibear/evolving-site-sub001/internal/core/port"
	"github.com/tolibear/evolving-site-sub001/internal/infra/config"
	"github.com/tolibear/evolving-site-sub001/internal/infra/database"
	kafkainfra "github.com/tolibear/evolving-site-sub001/internal/infra/kafka"
	"github.com/tolibear/evolving-site-sub001/internal/infra/logger"
	"github.com/tolibear/evolving-site-sub001/internal/infra/oauthprovider"
	redisinfra "github.com/tolibear/evolving-site-sub001/internal/infra/redis"
	"github.com/tolibear/evolving-site-sub001/internal/infra/telemetry"
	postgresrepo "github.com/tolibear/evolving-site-sub001/internal/repository/postgres"
	redisrepo "github.com/tolibear/evolving-site-sub001/internal/repository/redis"
	transportgrpc "github.com/tolibear/evolving-site-sub001/internal/transport/grpc"
	grpcinterceptors "github.com/tolibear/evolving-site-sub001/internal/transport/grpc/interceptors"
	"github.com/tolibear/evolving-site-sub001/internal/transport/http/middleware"
	"github.com/tolibear/evolving-site-sub001/internal/transport/http/routes"
	"github.com/tolibear/evolving-site-sub001/internal/usecase"
)

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	resources  *cleanup
	consumer   *kafkainfra.ConsumerGroup
	sessions   *usecase.SessionService
	health     *transportgrpc.HealthReporter
	grpcServer *grpc.Server
	grpcAddr   string
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	resources := &cleanup{}
	fail := func(format string, err error) (*Application, error) {
		resources.run(log)
		return nil, fmt.Errorf(format, err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Version, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	resources.add("tracer", func() error { return tracer.Shutdown(context.Background()) })

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, cfg.App.Name, log)
	if err != nil {
		return fail("init postgres: %w", err)
	}
	resources.add("postgres", func() error {
		pool.Close()
		return nil
	})

	if cfg.Postgres.AutoMigrate {
		if err := database.RunPostgresMigrations(pool, log); err != nil {
			return fail("run migrations: %w", err)
		}
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fail("init redis: %w", err)
	}
	resources.add("redis", redisClient.Close)

	repos := postgresrepo.NewRepositories(pool)
	handshakes := redisrepo.NewHandshakeStore(redisClient.Client(), cfg.Redis.HandshakePrefix)
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: redisinfra.Keyspace("rate-limit"),
	})

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, cfg.App.Name, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			resources.add("kafka producer", producer.Close)
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	authMetrics, err := telemetry.NewAuthMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fail("init auth metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return fail("init http metrics: %w", err)
	}
	grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{})
	if err != nil {
		return fail("init grpc metrics: %w", err)
	}

	recorder := usecase.NewSecurityEventRecorder(repos.SecurityEvents, authMetrics, log)

	sessionService := usecase.NewSessionService(repos.Sessions, repos.Accounts, eventPublisher, usecase.SessionPolicy{
		TTL:     cfg.Session.TTL,
		Sliding: cfg.Session.Sliding,
	}, log).WithMetrics(authMetrics)

	provider := oauthprovider.NewClient(cfg.OAuth, log)
	loginService := usecase.NewLoginService(
		provider,
		handshakes,
		repos.Accounts,
		sessionService,
		recorder,
		eventPublisher,
		cfg.OAuth.HandshakeTTL,
		log,
	).WithMetrics(authMetrics)

	allowanceService := usecase.NewAllowanceService(repos.Allowances, eventPublisher, recorder, usecase.AllowancePolicy{
		Default: cfg.Allowance.Default,
		Max:     cfg.Allowance.Max,
	}, log).WithMetrics(authMetrics)

	var consumer *kafkainfra.ConsumerGroup
	if cfg.Kafka.ConsumerEnabled && len(cfg.Kafka.Brokers) > 0 {
		claimer := redisrepo.NewHandshakeStore(redisClient.Client(), redisinfra.Keyspace("feature_event"))
		handler := kafkainfra.NewFeatureImplementedConsumer(allowanceService, claimer, cfg.Allowance.DefaultGrant, log).
			WithTracer(tracer.Tracer("board/kafka"))
		consumer, err = kafkainfra.NewConsumerGroup(cfg.Kafka, cfg.App.Name, handler, log)
		if err != nil {
			log.Warn("failed to init kafka consumer, feature grants disabled", zap.Error(err))
			consumer = nil
		} else {
			resources.add("kafka consumer", consumer.Close)
		}
	}

	health := transportgrpc.NewHealthReporter([]transportgrpc.DependencyCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: redisClient.HealthCheck},
	}, 0, log)

	grpcSrv, err := transportgrpc.NewServer(transportgrpc.ServerDependencies{
		Health:  health,
		Metrics: grpcMetrics,
		Logger:  log,
	})
	if err != nil {
		return fail("init grpc server: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		HTTPMetrics: httpMetrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Login:     loginService,
			Sessions:  sessionService,
			Allowance: allowanceService,
			Recorder:  recorder,
		},
	})

	return &Application{
		cfg:        cfg,
		engine:     engine,
		logger:     log,
		resources:  resources,
		consumer:   consumer,
		sessions:   sessionService,
		health:     health,
		grpcServer: grpcSrv,
		grpcAddr:   fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port),
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close()

	// Background workers share one context so shutdown stops them together.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	workers.Add(1)
	go func() {
		defer workers.Done()
		a.health.Run(workerCtx)
	}()

	workers.Add(1)
	go func() {
		defer workers.Done()
		a.sessions.RunReaper(workerCtx, a.cfg.Session.ReaperInterval)
	}()

	if a.consumer != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := a.consumer.Run(workerCtx); err != nil {
				a.logger.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	grpcErrCh := make(chan error, 1)
	if a.grpcServer != nil && a.grpcAddr != "" {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
		go func() {
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
			}
		}()
	}
	defer func() {
		if a.grpcServer != nil {
			a.grpcServer.GracefulStop()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting board identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("version", a.cfg.App.Version),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	case err := <-grpcErrCh:
		return err
	}
}

func (a *Application) close() {
	a.resources.run(a.logger)
}
