// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, persistence, scoring and SLA knobs, the LLM and escalation
// collaborators, HTTP protection, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // SCORING_TIMEZONE must resolve on hosts without zoneinfo
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "customer-hub")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the relational store.
type DBConfig struct {
	Driver   string // sqlite|mysql|postgres
	Path     string // SQLite file
	DSN      string // MySQL/Postgres DSN
	MaxConns int    // DB_MAX_CONNS, pool size
}

// SLAConfig holds the thread lifecycle timers.
type SLAConfig struct {
	NeedReplyMinutes     int
	FollowUpHours        int
	DefaultSnoozeMinutes int
}

// RedisConfig points the dedup store at Redis. An empty Addr means the
// database-backed store is used instead.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LLMProvider is one OpenAI-compatible endpoint.
type LLMProvider struct {
	APIKey  string
	BaseURL string
	Model   string
}

// LLMConfig configures the trigger workflows' model access. With no API key
// on either provider, the offline mock engine is used.
type LLMConfig struct {
	Primary     LLMProvider
	Fallback    LLMProvider
	MaxTokens   int
	Temperature float64
}

// Enabled reports whether any provider has credentials.
func (c LLMConfig) Enabled() bool {
	return c.Primary.APIKey != "" || c.Fallback.APIKey != ""
}

// EscalationConfig configures the overdue e-mail notifier. Without an API
// key escalations are only logged.
type EscalationConfig struct {
	SendGridAPIKey string
	From           string
	To             []string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Persistence
	DB DBConfig

	// Scoring
	RulesFile       string // optional YAML rules file
	ScoringTimezone string // IANA zone for the work-time window and daily metrics

	// Thread lifecycle
	SLA                 SLAConfig
	ThreadUpdateRetries int           // CAS retries per thread write
	RecalcInterval      time.Duration // background sweep period; 0 disables

	// Dedup
	Redis    RedisConfig
	DedupTTL time.Duration

	// Trigger workflows
	LLM            LLMConfig
	TriggerTimeout time.Duration

	// Escalation
	Escalation EscalationConfig

	// Knowledge base
	KBPath      string  // markdown file; empty disables matching
	KBThreshold float64 // query coverage needed for a match, (0,1]

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/hub")),

		// Persistence
		DB: DBConfig{
			Driver:   strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:     getenv("DB_PATH", "hub.db"),
			DSN:      getenv("DB_DSN", ""),
			MaxConns: getint("DB_MAX_CONNS", 10),
		},

		// Scoring
		RulesFile:       getenv("RULES_FILE", ""),
		ScoringTimezone: getenv("SCORING_TIMEZONE", "Asia/Shanghai"),

		// Thread lifecycle
		SLA: SLAConfig{
			NeedReplyMinutes:     getint("SLA_NEED_REPLY_MINUTES", 30),
			FollowUpHours:        getint("SLA_FOLLOW_UP_HOURS", 48),
			DefaultSnoozeMinutes: getint("DEFAULT_SNOOZE_MINUTES", 60),
		},
		ThreadUpdateRetries: getint("THREAD_UPDATE_RETRIES", 3),
		RecalcInterval:      getdur("RECALC_INTERVAL", 5*time.Minute),

		// Dedup
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},
		DedupTTL: getdur("DEDUP_TTL", 24*time.Hour),

		// Trigger workflows
		LLM: LLMConfig{
			Primary: LLMProvider{
				APIKey:  getenv("LLM_API_KEY", ""),
				BaseURL: getenv("LLM_BASE_URL", ""),
				Model:   getenv("LLM_MODEL", "gpt-4o-mini"),
			},
			Fallback: LLMProvider{
				APIKey:  getenv("LLM_FALLBACK_API_KEY", ""),
				BaseURL: getenv("LLM_FALLBACK_BASE_URL", ""),
				Model:   getenv("LLM_FALLBACK_MODEL", ""),
			},
			MaxTokens:   getint("LLM_MAX_TOKENS", 1024),
			Temperature: getfloat("LLM_TEMPERATURE", 0.2),
		},
		TriggerTimeout: getdur("TRIGGER_TIMEOUT", 30*time.Second),

		// Escalation
		Escalation: EscalationConfig{
			SendGridAPIKey: getenv("SENDGRID_API_KEY", ""),
			From:           getenv("ESCALATION_EMAIL_FROM", ""),
			To:             splitCSV(getenv("ESCALATION_EMAIL_TO", "")),
		},

		// Knowledge base
		KBPath:      getenv("KB_PATH", ""),
		KBThreshold: getfloat("KB_THRESHOLD", 0.35),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "customer-hub"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "mysql", "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DB_DSN is required for mysql and postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, mysql, postgres")
	}
	if cfg.DB.MaxConns < 1 {
		return cfg, errors.New("DB_MAX_CONNS must be >= 1")
	}
	if _, err := time.LoadLocation(cfg.ScoringTimezone); err != nil {
		return cfg, errors.New("SCORING_TIMEZONE must be a valid IANA time zone")
	}
	if cfg.SLA.NeedReplyMinutes <= 0 || cfg.SLA.FollowUpHours <= 0 || cfg.SLA.DefaultSnoozeMinutes <= 0 {
		return cfg, errors.New("SLA_* and DEFAULT_SNOOZE_MINUTES must be > 0")
	}
	if cfg.ThreadUpdateRetries < 0 {
		return cfg, errors.New("THREAD_UPDATE_RETRIES must be >= 0")
	}
	if cfg.RecalcInterval < 0 {
		return cfg, errors.New("RECALC_INTERVAL must be >= 0")
	}
	if cfg.Redis.DB < 0 {
		return cfg, errors.New("REDIS_DB must be >= 0")
	}
	if cfg.DedupTTL <= 0 {
		return cfg, errors.New("DEDUP_TTL must be > 0")
	}
	if cfg.LLM.MaxTokens <= 0 {
		return cfg, errors.New("LLM_MAX_TOKENS must be > 0")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return cfg, errors.New("LLM_TEMPERATURE must be in [0,2]")
	}
	if cfg.TriggerTimeout < 0 {
		return cfg, errors.New("TRIGGER_TIMEOUT must be >= 0")
	}
	if cfg.Escalation.SendGridAPIKey != "" && (cfg.Escalation.From == "" || len(cfg.Escalation.To) == 0) {
		return cfg, errors.New("ESCALATION_EMAIL_FROM and ESCALATION_EMAIL_TO are required with SENDGRID_API_KEY")
	}
	if cfg.KBThreshold <= 0 || cfg.KBThreshold > 1 {
		return cfg, errors.New("KB_THRESHOLD must be in (0,1]")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// Location returns the scoring time zone, or UTC when it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ScoringTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ---- env helpers: unset, blank or unparsable values yield def ----

func env[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	if out, err := parse(strings.TrimSpace(v)); err == nil {
		return out
	}
	return def
}

func getenv(k, def string) string {
	return env(k, def, func(v string) (string, error) { return v, nil })
}

func getfloat(k string, def float64) float64 {
	return env(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getint(k string, def int) int { return env(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return env(k, def, time.ParseDuration) }

func getbool(k string, def bool) bool { return env(k, def, parseSwitch) }

// parseSwitch accepts the usual on/off spellings.
func parseSwitch(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a switch: %q", v)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
