package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/infra/config"
	"github.com/vocalid/voiceauth/internal/transport/http/handlers"
	"github.com/vocalid/voiceauth/internal/transport/http/middleware"
	"github.com/vocalid/voiceauth/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Phrases      *usecase.PhraseService
	Challenges   *usecase.ChallengeService
	Enrollment   *usecase.EnrollmentService
	Verification *usecase.VerificationService
	Lockout      *usecase.LockoutService
}

// RepositorySet groups the repositories read directly by handlers.
type RepositorySet struct {
	Identities port.IdentityRepository
	Attempts   port.AttemptRepository
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config       *config.AppConfig
	Logger       *zap.Logger
	Metrics      *middleware.HTTPMetrics
	Policies     *config.PolicyStore
	Services     ServiceSet
	Repositories RepositorySet
	Database     DatabaseChecker
	Cache        CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/v1")
	{
		phraseHandler := handlers.NewPhraseHandler(deps.Services.Phrases)
		phraseHandler.RegisterRoutes(api.Group("/phrases"))
		phraseHandler.RegisterAdminRoutes(api.Group("/admin/phrases"))

		challengeHandler := handlers.NewChallengeHandler(deps.Services.Challenges)
		challengeHandler.RegisterRoutes(api.Group("/challenges"))

		enrollmentHandler := handlers.NewEnrollmentHandler(deps.Services.Enrollment)
		enrollmentHandler.RegisterRoutes(api.Group("/enrollments"))

		verificationHandler := handlers.NewVerificationHandler(deps.Services.Verification)
		verificationHandler.RegisterRoutes(api.Group("/verifications"))

		identityHandler := handlers.NewIdentityHandler(deps.Repositories.Identities, deps.Repositories.Attempts, deps.Services.Lockout)
		identityHandler.RegisterRoutes(api.Group("/identities"))

		policyHandler := handlers.NewPolicyHandler(deps.Policies, deps.Config.Verification)
		policyHandler.RegisterRoutes(api.Group("/admin/policy"))
	}

	return r
}
