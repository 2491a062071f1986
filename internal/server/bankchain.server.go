package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/internal/config"
	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	hrest "github.com/Elmahrosa/Teos-Bankchain/internal/handler/rest"
	"github.com/Elmahrosa/Teos-Bankchain/internal/metrics"
	publisher "github.com/Elmahrosa/Teos-Bankchain/internal/pub"
	"github.com/Elmahrosa/Teos-Bankchain/internal/repository"
	"github.com/Elmahrosa/Teos-Bankchain/internal/router"
	"github.com/Elmahrosa/Teos-Bankchain/internal/service"
	"github.com/Elmahrosa/Teos-Bankchain/internal/usecase"
	"github.com/Elmahrosa/Teos-Bankchain/shared/utils/cache"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server owns the HTTP API, the gRPC health endpoint and every backing
// client opened for them.
type Server struct {
	cfg    config.AppConfig
	logger *zap.Logger

	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server

	closers []func() error
}

func NewServer(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}
	m := metrics.NewMetrics("bankchain")

	// --- Redis client ---
	var (
		rdb redis.UniversalClient
		c   *cache.Cache
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       0,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		c = cache.NewCacheFromClient(rdb)
		s.closers = append(s.closers, c.Close)
		logger.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	}

	// --- Repositories ---
	repos, err := s.openRepositories(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if c != nil {
		repos.Settlements = repository.NewCachedSettlementRepo(repos.Settlements, c, cfg.SettlementCacheTTL, logger)
	}

	// --- Services ---
	classifier, err := service.NewTierClassifier(cfg.TierThresholds)
	if err != nil {
		s.Close()
		return nil, err
	}
	var rates service.RateProvider = service.NewStaticRateProvider(cfg.ReferenceCurrency, cfg.FXRates)
	if c != nil {
		rates = service.NewCachedRateProvider(rates, c, cfg.RateCacheTTL, logger)
	}
	normalizer := service.NewCurrencyNormalizer(cfg.ReferenceCurrency, domain.DefaultCurrencies(), rates)
	fees := service.NewFeeCalculator(cfg.SettlementConfigs(), cfg.SettlementLocation)

	// --- Event publishers ---
	pub := s.openPublishers(rdb)

	// --- Usecases ---
	var authz usecase.Authorizer = usecase.NewStaticAuthorizer(cfg.ApproverRoles)
	if len(cfg.ApproverRoles) == 0 {
		logger.Warn("APPROVER_ROLES not set, every approver is authorized for every role")
		authz = usecase.AllowAll
	}
	approvalUC := usecase.NewApprovalUsecase(repos, classifier, normalizer, fees, authz, pub, m, logger)

	// --- HTTP ---
	var rateLimit func(http.Handler) http.Handler
	if rdb != nil && cfg.RateLimit > 0 {
		rateLimit = router.RateLimiter(rdb, router.RateLimitConfig{
			Limit:     cfg.RateLimit,
			Window:    cfg.RateLimitWindow,
			Block:     cfg.RateLimitBlock,
			KeyPrefix: "bankchain:ratelimit",
		}, logger)
	}
	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.SetupRoutes(hrest.NewBankchainRestHandler(approvalUC), m.Handler(), rateLimit, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- gRPC ---
	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(metrics.UnaryServerInterceptor(m)))
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	return s, nil
}

func (s *Server) openRepositories(ctx context.Context) (*repository.Repositories, error) {
	if s.cfg.StoreDriver == config.StoreMemory {
		s.logger.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryRepositories(), nil
	}

	dbpool, err := config.ConnectDB(ctx, s.cfg.DB, s.logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { dbpool.Close(); return nil })

	if err := repository.Migrate(ctx, dbpool); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repository.NewPostgresRepositories(dbpool), nil
}

func (s *Server) openPublishers(rdb redis.UniversalClient) publisher.EventPublisher {
	var pubs publisher.MultiPublisher
	if len(s.cfg.KafkaBrokers) > 0 {
		kp := publisher.NewKafkaPublisher(publisher.NewKafkaWriter(s.cfg.KafkaBrokers, s.cfg.KafkaTopic), s.logger)
		s.closers = append(s.closers, kp.Close)
		pubs = append(pubs, kp)
		s.logger.Info("kafka publisher enabled",
			zap.Strings("brokers", s.cfg.KafkaBrokers),
			zap.String("topic", s.cfg.KafkaTopic))
	}
	if rdb != nil {
		pubs = append(pubs, publisher.NewRedisPublisher(rdb, s.cfg.EventChannel, s.logger))
	}
	if len(pubs) == 0 {
		return publisher.NoopPublisher{}
	}
	return pubs
}

// Run serves HTTP and gRPC until ctx is cancelled or a listener fails,
// then shuts both down.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.HTTPAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		s.logger.Info("gRPC server listening", zap.String("addr", s.cfg.GRPCAddr))
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err = <-errCh:
		s.logger.Error("server failed", zap.Error(err))
	}

	s.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := s.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		s.logger.Warn("http shutdown", zap.Error(shutdownErr))
	}
	s.grpcServer.GracefulStop()
	s.Close()
	return err
}

// Close releases backing clients in reverse order of opening.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close failed", zap.Error(err))
		}
	}
	s.closers = nil
}
