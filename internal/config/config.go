package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	DatabaseURL          string
	DatabasePool         PoolConfig
	RedisURL             string
	NATSURL              string
	JWTSecret            string
	JWTIssuer            string
	CORSAllowOrigins     []string
	NotificationChannel  string
	EmailFrom            string
	SSEKeepAlive         time.Duration
	KPI                  KPIConfig
	RateLimitMax         int
	RateLimitWindow      time.Duration
	AutoMigrate          bool
	SeedDefaultTemplates bool
}

// PoolConfig sizes the postgres connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KPIConfig tunes the trigger pipeline.
type KPIConfig struct {
	TrainingDueDays   int
	AuditLeadDays     map[string]int
	EmailConcurrency  int
	ConfigCacheTTL    time.Duration
	ProcessingLockTTL time.Duration
	AutoProcess       bool
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// AuditLeadFor returns the scheduling lead time in days for a priority, falling back to medium.
func (k KPIConfig) AuditLeadFor(priority string) int {
	if days, ok := k.AuditLeadDays[strings.ToLower(strings.TrimSpace(priority))]; ok {
		return days
	}
	return k.AuditLeadDays["medium"]
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("KPI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "KPI Ops API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.auto_migrate", true)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("notifications.channel", "kpi-ops")
	v.SetDefault("email.from", "kpi-ops@localhost")
	v.SetDefault("email.seed_templates", true)
	v.SetDefault("sse.keepalive", "25s")
	v.SetDefault("ratelimit.max", 30)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("kpi.training_due_days", 7)
	v.SetDefault("kpi.audit_lead_days.critical", 1)
	v.SetDefault("kpi.audit_lead_days.high", 2)
	v.SetDefault("kpi.audit_lead_days.medium", 5)
	v.SetDefault("kpi.audit_lead_days.low", 7)
	v.SetDefault("kpi.email_concurrency", 4)
	v.SetDefault("kpi.config_cache_ttl", "10m")
	v.SetDefault("kpi.processing_lock_ttl", "2m")
	v.SetDefault("kpi.auto_process", true)

	keepAlive, err := parseDuration(v, "sse.keepalive")
	if err != nil {
		return Config{}, err
	}
	window, err := parseDuration(v, "ratelimit.window")
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "kpi.config_cache_ttl")
	if err != nil {
		return Config{}, err
	}
	lockTTL, err := parseDuration(v, "kpi.processing_lock_ttl")
	if err != nil {
		return Config{}, err
	}
	connLifetime, err := parseDuration(v, "database.conn_max_lifetime")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:     v.GetString("app.name"),
		AppEnv:      v.GetString("app.env"),
		AppPort:     v.GetString("app.port"),
		DatabaseURL: v.GetString("database.url"),
		DatabasePool: PoolConfig{
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connLifetime,
		},
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		JWTSecret:            v.GetString("jwt.secret"),
		JWTIssuer:            v.GetString("jwt.issuer"),
		CORSAllowOrigins:     splitList(v.GetString("cors.allow_origins")),
		NotificationChannel:  v.GetString("notifications.channel"),
		EmailFrom:            v.GetString("email.from"),
		SSEKeepAlive:         keepAlive,
		RateLimitMax:         v.GetInt("ratelimit.max"),
		RateLimitWindow:      window,
		AutoMigrate:          v.GetBool("app.auto_migrate"),
		SeedDefaultTemplates: v.GetBool("email.seed_templates"),
		KPI: KPIConfig{
			TrainingDueDays: v.GetInt("kpi.training_due_days"),
			AuditLeadDays: map[string]int{
				"critical": v.GetInt("kpi.audit_lead_days.critical"),
				"high":     v.GetInt("kpi.audit_lead_days.high"),
				"medium":   v.GetInt("kpi.audit_lead_days.medium"),
				"low":      v.GetInt("kpi.audit_lead_days.low"),
			},
			EmailConcurrency:  v.GetInt("kpi.email_concurrency"),
			ConfigCacheTTL:    cacheTTL,
			ProcessingLockTTL: lockTTL,
			AutoProcess:       v.GetBool("kpi.auto_process"),
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.KPI.TrainingDueDays <= 0 {
		cfg.KPI.TrainingDueDays = 7
	}
	if cfg.KPI.EmailConcurrency <= 0 {
		cfg.KPI.EmailConcurrency = 4
	}

	return cfg, nil
}

// DefaultKPIConfig returns the pipeline tuning used when no environment is loaded.
func DefaultKPIConfig() KPIConfig {
	return KPIConfig{
		TrainingDueDays:   7,
		AuditLeadDays:     map[string]int{"critical": 1, "high": 2, "medium": 5, "low": 7},
		EmailConcurrency:  4,
		ConfigCacheTTL:    10 * time.Minute,
		ProcessingLockTTL: 2 * time.Minute,
		AutoProcess:       true,
	}
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var items []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
