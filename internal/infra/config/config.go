package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App          AppSettings          `mapstructure:"app"`
	Postgres     PostgresSettings     `mapstructure:"postgres"`
	Redis        RedisSettings        `mapstructure:"redis"`
	Kafka        KafkaSettings        `mapstructure:"kafka"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry"`
	Challenge    ChallengeSettings    `mapstructure:"challenge"`
	Enrollment   EnrollmentSettings   `mapstructure:"enrollment"`
	Verification VerificationSettings `mapstructure:"verification"`
	Lockout      LockoutSettings      `mapstructure:"lockout"`
	Phrases      PhraseSettings       `mapstructure:"phrases"`
	Reaper       ReaperSettings       `mapstructure:"reaper"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection and key prefixes.
type RedisSettings struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	DB                int    `mapstructure:"db"`
	Password          string `mapstructure:"password"`
	TLSEnabled        bool   `mapstructure:"tls_enabled"`
	LockoutPrefix     string `mapstructure:"lockout_prefix"`
	EnrollmentPrefix  string `mapstructure:"enrollment_prefix"`
	MultiPhrasePrefix string `mapstructure:"multi_phrase_prefix"`
	PhraseUsagePrefix string `mapstructure:"phrase_usage_prefix"`
}

// KafkaSettings configures the Kafka producer. An empty broker list disables
// event publishing.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type TelemetrySettings struct {
	MetricsPort  int     `mapstructure:"metrics_port"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type ChallengeSettings struct {
	TTL       time.Duration `mapstructure:"ttl"`
	Retention time.Duration `mapstructure:"retention"`
}

type EnrollmentSettings struct {
	RequiredSamples int           `mapstructure:"required_samples"`
	MinSNRdB        float64       `mapstructure:"min_snr_db"`
	MinDuration     time.Duration `mapstructure:"min_duration"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
}

// VerificationSettings configures the decision engine: the active named
// strategy, the per-strategy threshold tuples, the multi-phrase policy, and
// the external scorer endpoints.
type VerificationSettings struct {
	Strategy   string                      `mapstructure:"strategy"`
	Strategies map[string]StrategySettings `mapstructure:"strategies"`
	Multi      MultiPhraseSettings         `mapstructure:"multi"`
	Scorer     ScorerSettings              `mapstructure:"scorer"`
	SessionTTL time.Duration               `mapstructure:"session_ttl"`
}

type StrategySettings struct {
	Speaker float64 `mapstructure:"speaker"`
	Spoof   float64 `mapstructure:"spoof"`
	Text    float64 `mapstructure:"text"`
}

type MultiPhraseSettings struct {
	PhraseCount   int     `mapstructure:"phrase_count"`
	Threshold     float64 `mapstructure:"threshold"`
	SpoofCutoff   float64 `mapstructure:"spoof_cutoff"`
	PhrasePenalty float64 `mapstructure:"phrase_penalty"`
}

type ScorerSettings struct {
	EmbedURL      string        `mapstructure:"embed_url"`
	SimilarityURL string        `mapstructure:"similarity_url"`
	SpoofURL      string        `mapstructure:"spoof_url"`
	PhraseURL     string        `mapstructure:"phrase_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type LockoutSettings struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Duration    time.Duration `mapstructure:"duration"`
}

type PhraseSettings struct {
	ExclusionWindow int    `mapstructure:"exclusion_window"`
	Language        string `mapstructure:"language"`
}

type ReaperSettings struct {
	Interval         time.Duration `mapstructure:"interval"`
	AttemptRetention time.Duration `mapstructure:"attempt_retention"`
	SampleRetention  time.Duration `mapstructure:"sample_retention"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("VOICEAUTH")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.lockout_prefix",
		"redis.enrollment_prefix",
		"redis.multi_phrase_prefix",
		"redis.phrase_usage_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"telemetry.metrics_port",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"challenge.ttl",
		"challenge.retention",
		"enrollment.required_samples",
		"enrollment.min_snr_db",
		"enrollment.min_duration",
		"enrollment.session_ttl",
		"verification.strategy",
		"verification.session_ttl",
		"verification.multi.phrase_count",
		"verification.multi.threshold",
		"verification.multi.spoof_cutoff",
		"verification.multi.phrase_penalty",
		"verification.scorer.embed_url",
		"verification.scorer.similarity_url",
		"verification.scorer.spoof_url",
		"verification.scorer.phrase_url",
		"verification.scorer.timeout",
		"lockout.max_failures",
		"lockout.duration",
		"phrases.exclusion_window",
		"phrases.language",
		"reaper.interval",
		"reaper.attempt_retention",
		"reaper.sample_retention",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "voiceauth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "voiceauth")
	v.SetDefault("postgres.password", "voiceauth_password")
	v.SetDefault("postgres.database", "voiceauth")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.lockout_prefix", "voiceauth:lockout")
	v.SetDefault("redis.enrollment_prefix", "voiceauth:enroll")
	v.SetDefault("redis.multi_phrase_prefix", "voiceauth:multiphrase")
	v.SetDefault("redis.phrase_usage_prefix", "voiceauth:phrase-usage")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "voiceauth")
	v.SetDefault("kafka.async", true)

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "voiceauth")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("challenge.ttl", "5m")
	v.SetDefault("challenge.retention", "336h")

	v.SetDefault("enrollment.required_samples", 5)
	v.SetDefault("enrollment.min_snr_db", 15.0)
	v.SetDefault("enrollment.min_duration", "2s")
	v.SetDefault("enrollment.session_ttl", "30m")

	v.SetDefault("verification.strategy", "equal-error")
	v.SetDefault("verification.session_ttl", "10m")
	v.SetDefault("verification.strategies", map[string]map[string]float64{
		"security-first":  {"speaker": 0.65, "spoof": 0.5, "text": 0.7},
		"equal-error":     {"speaker": 0.55, "spoof": 0.6, "text": 0.6},
		"usability-first": {"speaker": 0.45, "spoof": 0.7, "text": 0.5},
	})
	v.SetDefault("verification.multi.phrase_count", 3)
	v.SetDefault("verification.multi.threshold", 0.6)
	v.SetDefault("verification.multi.spoof_cutoff", 0.8)
	v.SetDefault("verification.multi.phrase_penalty", 0.5)
	v.SetDefault("verification.scorer.embed_url", "http://localhost:7001/embed")
	v.SetDefault("verification.scorer.similarity_url", "http://localhost:7001/similarity")
	v.SetDefault("verification.scorer.spoof_url", "http://localhost:7002/spoof")
	v.SetDefault("verification.scorer.phrase_url", "http://localhost:7003/phrase-match")
	v.SetDefault("verification.scorer.timeout", "10s")

	v.SetDefault("lockout.max_failures", 3)
	v.SetDefault("lockout.duration", "15m")

	v.SetDefault("phrases.exclusion_window", 50)
	v.SetDefault("phrases.language", "en")

	v.SetDefault("reaper.interval", "1h")
	v.SetDefault("reaper.attempt_retention", "336h")
	v.SetDefault("reaper.sample_retention", "24h")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "VOICEAUTH_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
