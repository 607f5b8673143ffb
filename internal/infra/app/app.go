package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/infra/config"
	"github.com/vocalid/voiceauth/internal/infra/database"
	kafkainfra "github.com/vocalid/voiceauth/internal/infra/kafka"
	"github.com/vocalid/voiceauth/internal/infra/logger"
	redisinfra "github.com/vocalid/voiceauth/internal/infra/redis"
	"github.com/vocalid/voiceauth/internal/infra/scoring"
	"github.com/vocalid/voiceauth/internal/infra/telemetry"
	postgresrepo "github.com/vocalid/voiceauth/internal/repository/postgres"
	redisrepo "github.com/vocalid/voiceauth/internal/repository/redis"
	"github.com/vocalid/voiceauth/internal/transport/http/middleware"
	"github.com/vocalid/voiceauth/internal/transport/http/routes"
	"github.com/vocalid/voiceauth/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider
	reaper *usecase.ReaperService
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	provider, err := telemetry.Attach(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			log.Warn("failed to init tracer provider, continuing without tracing", zap.Error(err))
			tracer = nil
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	lockoutStore := redisrepo.NewLockoutStore(redisClient.Client(), cfg.Redis.LockoutPrefix)
	enrollmentSessions := redisrepo.NewEnrollmentSessionStore(redisClient.Client(), cfg.Redis.EnrollmentPrefix)
	multiPhraseSessions := redisrepo.NewMultiPhraseSessionStore(redisClient.Client(), cfg.Redis.MultiPhrasePrefix)
	phraseUsage := redisrepo.NewPhraseUsageStore(redisClient.Client(), cfg.Redis.PhraseUsagePrefix)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	policy, err := config.BuildPolicy(cfg.Verification)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("build threshold policy: %w", err)
	}
	policyStore, err := config.NewPolicyStore(policy)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init policy store: %w", err)
	}

	scorerClient := scoring.NewClient(cfg.Verification.Scorer)

	phraseService := usecase.NewPhraseService(repos.Phrases, phraseUsage, log).
		WithExclusionWindow(cfg.Phrases.ExclusionWindow).
		WithLanguage(cfg.Phrases.Language)

	challengeService := usecase.NewChallengeService(repos.Challenges, repos.Phrases, log).
		WithTTL(cfg.Challenge.TTL).
		WithRetention(cfg.Challenge.Retention)

	lockoutService := usecase.NewLockoutService(lockoutStore, repos.Identities, eventPublisher, log).
		WithLimits(cfg.Lockout.MaxFailures, cfg.Lockout.Duration).
		WithLockObserver(provider.ObserveLockout)

	enrollmentService := usecase.NewEnrollmentService(repos.Identities, repos.Samples, repos.Voiceprints, enrollmentSessions, challengeService, scorerClient, eventPublisher, log).
		WithRequiredSamples(cfg.Enrollment.RequiredSamples).
		WithQualityFloors(cfg.Enrollment.MinSNRdB, cfg.Enrollment.MinDuration).
		WithSessionTTL(cfg.Enrollment.SessionTTL).
		WithScorerTimeout(cfg.Verification.Scorer.Timeout).
		WithCompletionObserver(provider.ObserveEnrollment)

	verificationService := usecase.NewVerificationService(
		repos.Identities,
		repos.Voiceprints,
		repos.Attempts,
		multiPhraseSessions,
		challengeService,
		phraseService,
		lockoutService,
		scorerClient,
		policyStore,
		eventPublisher,
		log,
	).
		WithScorerTimeout(cfg.Verification.Scorer.Timeout).
		WithSessionTTL(cfg.Verification.SessionTTL).
		WithDecisionObserver(provider.ObserveDecision)

	reaperService := usecase.NewReaperService(challengeService, repos.Attempts, repos.Samples, log).
		WithInterval(cfg.Reaper.Interval).
		WithRetention(cfg.Reaper.AttemptRetention, cfg.Reaper.SampleRetention)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics,
		Policies: policyStore,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Phrases:      phraseService,
			Challenges:   challengeService,
			Enrollment:   enrollmentService,
			Verification: verificationService,
			Lockout:      lockoutService,
		},
		Repositories: routes.RepositorySet{
			Identities: repos.Identities,
			Attempts:   repos.Attempts,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
		reaper: reaperService,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	if a.reaper != nil {
		go a.reaper.Run(reaperCtx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting voiceauth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		stopReaper()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		if a.tracer != nil {
			if err := a.tracer.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
