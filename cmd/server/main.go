package main

import (
	"context"
	"crypto"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"jobtrackr/backend/internal/audit"
	auditrepo "jobtrackr/backend/internal/audit/repository"
	"jobtrackr/backend/internal/ceremony"
	"jobtrackr/backend/internal/challenge"
	chrepo "jobtrackr/backend/internal/challenge/repository"
	"jobtrackr/backend/internal/config"
	"jobtrackr/backend/internal/credential"
	credrepo "jobtrackr/backend/internal/credential/repository"
	"jobtrackr/backend/internal/db"
	"jobtrackr/backend/internal/health"
	"jobtrackr/backend/internal/policy/engine"
	"jobtrackr/backend/internal/security"
	"jobtrackr/backend/internal/server"
	"jobtrackr/backend/internal/server/httpx"
	"jobtrackr/backend/internal/server/middleware"
	"jobtrackr/backend/internal/session"
	"jobtrackr/backend/internal/telemetry"
	telemetryotel "jobtrackr/backend/internal/telemetry/otel"
	userrepo "jobtrackr/backend/internal/user/repository"
	"jobtrackr/backend/internal/vault"
	vaultrepo "jobtrackr/backend/internal/vault/repository"
)

const (
	sweepInterval     = time.Minute
	rateLimitCleanup  = 5 * time.Minute
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// repositories groups the persistence backends chosen from config.
type repositories struct {
	users       userrepo.Repository
	challenges  chrepo.Repository
	credentials credrepo.Repository
	secrets     vaultrepo.Repository
	audit       auditrepo.Repository
	// cache is set when challenges live in redis; readiness then includes it.
	cache       *chrepo.RedisRepository
	closers     []func() error
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var conn *sql.DB
	if cfg.DatabaseURL != "" {
		c, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer c.Close()
		conn = c
	} else if cfg.IsProduction() {
		return errors.New("DATABASE_URL is required in production")
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory storage, data is lost on restart")
	}

	repos, err := newRepositories(ctx, cfg, conn)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range repos.closers {
			_ = c()
		}
	}()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewMetrics(providers.Meter())
	if err != nil {
		return err
	}
	events := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	policy, err := engine.NewOPAEvaluator(ctx, "", cfg.RequireUserVerification, logger)
	if err != nil {
		return err
	}

	tokens, err := newTokenProvider(cfg, logger)
	if err != nil {
		return err
	}
	cookies := httpx.Cookies{Secure: cfg.IsProduction()}

	store := challenge.NewStore(repos.challenges, cfg.ChallengeTTL())
	registry := credential.NewRegistry(repos.credentials)
	ceremonies, err := ceremony.NewEngine(ceremony.Config{
		RPID:     cfg.RPID,
		RPName:   cfg.RPName,
		RPOrigin: cfg.RPOrigin,
		Timeout:  cfg.WebAuthnTimeout(),
	}, store, registry, policy)
	if err != nil {
		return err
	}
	masterPasswords, err := vault.NewService(repos.secrets, cfg.PBKDF2Iterations, cfg.KDFConcurrency, metrics)
	if err != nil {
		return err
	}

	var auditLogger audit.AuditLogger = audit.NopLogger{}
	if repos.audit != nil {
		auditLogger = audit.NewLogger(repos.audit, middleware.ClientIPFromContext, logger)
	}

	var pinger health.Pinger
	if conn != nil {
		pinger = conn
	}
	checker := health.NewChecker(pinger, policy)
	if repos.cache != nil {
		checker.WithChallengeCache(repos.cache)
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPM)
	trustedProxies, err := cfg.TrustedProxies()
	if err != nil {
		return err
	}

	deps := server.Deps{
		Ceremony: ceremony.NewHandler(ceremonies, registry, repos.users, session.NewBridge(tokens, cookies), cookies, store.TTL()).
			WithLogger(logger).
			WithAudit(auditLogger).
			WithTelemetry(events, metrics),
		Vault: vault.NewHandler(masterPasswords, tokens, cookies, cfg.MasterVerifiedTTL()).
			WithLogger(logger).
			WithEvents(events),
		Tokens:      tokens,
		Audit:       auditLogger,
		RateLimiter: limiter,
		Metrics:     middleware.NewHTTPMetrics(),
		Health:      checker,
		TrustedProxies: trustedProxies,
		CORSOrigins: cfg.CORSOrigins(),
		Logger:      logger,
	}

	go store.RunSweeper(ctx, sweepInterval, func(err error) {
		logger.Warn("challenge sweep failed", "error", err)
	})
	go limiter.RunCleanup(ctx, rateLimitCleanup)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcServer = grpc.NewServer()
		server.RegisterServices(grpcServer, deps)
		go func() {
			logger.Info("gRPC health server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("listener failed", "error", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	drainCtx, cancelDrain := context.WithTimeout(shutdownCtx, telemetry.ShutdownDrainDuration)
	if err := telemetry.Drain(drainCtx); err != nil {
		logger.Warn("telemetry drain incomplete", "error", err)
	}
	cancelDrain()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func newRepositories(ctx context.Context, cfg *config.Config, conn *sql.DB) (*repositories, error) {
	repos := &repositories{}
	if conn != nil {
		repos.users = userrepo.NewPostgresRepository(conn)
		repos.credentials = credrepo.NewPostgresRepository(conn)
		repos.secrets = vaultrepo.NewPostgresRepository(conn)
		repos.audit = auditrepo.NewPostgresRepository(conn)
	} else {
		repos.users = userrepo.NewMemoryRepository()
		repos.credentials = credrepo.NewMemoryRepository()
		repos.secrets = vaultrepo.NewMemoryRepository()
	}

	switch cfg.ChallengeStore {
	case "redis":
		client, err := chrepo.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		repos.cache = chrepo.NewRedisRepository(client)
		repos.challenges = repos.cache
		repos.closers = append(repos.closers, client.Close)
	case "postgres":
		if conn == nil {
			repos.challenges = chrepo.NewMemoryRepository()
			break
		}
		repos.challenges = chrepo.NewPostgresRepository(conn)
	default:
		repos.challenges = chrepo.NewMemoryRepository()
	}
	return repos, nil
}

func newTokenProvider(cfg *config.Config, logger *slog.Logger) (*security.TokenProvider, error) {
	var (
		signer crypto.Signer
		pub    crypto.PublicKey
		err    error
	)
	if cfg.JWTPrivateKey != "" || cfg.JWTPublicKey != "" {
		signer, pub, err = security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
	} else {
		if cfg.IsProduction() {
			return nil, errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required in production")
		}
		logger.Warn("JWT keys not configured; using an ephemeral key pair, sessions end on restart")
		signer, pub, err = security.GenerateEphemeralKeyPair()
		if err != nil {
			return nil, err
		}
	}
	logger.Info("token signing key loaded", "alg", security.KeyAlg(pub), "issuer", cfg.JWTIssuer)
	return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTTL()), nil
}
