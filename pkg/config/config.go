package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
	Billing    BillingConfig
	Team       TeamConfig
	Analysis   AnalysisConfig
	Admin      AdminConfig
	Payments   PaymentsConfig
	Storage    StorageConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type EncryptionConfig struct {
	Key string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

// BillingConfig holds the defaults used until an admin overrides them in settings.
type BillingConfig struct {
	MaxSeats            int
	BillingPeriodMonths int
	BillingPeriodDays   int
}

type TeamConfig struct {
	InvitationExpiryDays int
}

type AnalysisConfig struct {
	FreeLimit int
}

type AdminConfig struct {
	PIN                 string
	PINDelayMillis      int
	SettingsCacheSecs   int
	AdminCheckCacheSecs int
}

type PaymentsConfig struct {
	WebhookSecret string
}

type StorageConfig struct {
	Provider        string // "", "s3" or "gcs"
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	RoleARN         string
	CredentialsFile string
	URLExpiryMins   int
}

type WorkerConfig struct {
	Concurrency int
	SweepCron   string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (a *AdminConfig) PINDelay() time.Duration {
	return time.Duration(a.PINDelayMillis) * time.Millisecond
}

func (a *AdminConfig) SettingsCacheTTL() time.Duration {
	return time.Duration(a.SettingsCacheSecs) * time.Second
}

func (a *AdminConfig) AdminCheckCacheTTL() time.Duration {
	return time.Duration(a.AdminCheckCacheSecs) * time.Second
}

func (s *StorageConfig) URLExpiry() time.Duration {
	return time.Duration(s.URLExpiryMins) * time.Minute
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "dealdesk")
	v.SetDefault("DATABASE_PASSWORD", "dealdesk_secret")
	v.SetDefault("DATABASE_NAME", "dealdesk")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("BILLING_MAX_SEATS", 50)
	v.SetDefault("BILLING_PERIOD_MONTHS", 1)
	v.SetDefault("BILLING_PERIOD_DAYS", 0)
	v.SetDefault("TEAM_INVITATION_EXPIRY_DAYS", 7)
	v.SetDefault("ANALYSIS_FREE_LIMIT", 3)
	v.SetDefault("ADMIN_PIN", "")
	v.SetDefault("ADMIN_PIN_DELAY_MS", 1000)
	v.SetDefault("ADMIN_SETTINGS_CACHE_SECONDS", 60)
	v.SetDefault("ADMIN_CHECK_CACHE_SECONDS", 30)
	v.SetDefault("PAYMENT_WEBHOOK_SECRET", "")
	v.SetDefault("STORAGE_PROVIDER", "")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_URL_EXPIRY_MINUTES", 15)
	v.SetDefault("WORKER_CONCURRENCY", 5)
	v.SetDefault("WORKER_SWEEP_CRON", "*/5 * * * *")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Billing: BillingConfig{
			MaxSeats:            v.GetInt("BILLING_MAX_SEATS"),
			BillingPeriodMonths: v.GetInt("BILLING_PERIOD_MONTHS"),
			BillingPeriodDays:   v.GetInt("BILLING_PERIOD_DAYS"),
		},
		Team: TeamConfig{
			InvitationExpiryDays: v.GetInt("TEAM_INVITATION_EXPIRY_DAYS"),
		},
		Analysis: AnalysisConfig{
			FreeLimit: v.GetInt("ANALYSIS_FREE_LIMIT"),
		},
		Admin: AdminConfig{
			PIN:                 v.GetString("ADMIN_PIN"),
			PINDelayMillis:      v.GetInt("ADMIN_PIN_DELAY_MS"),
			SettingsCacheSecs:   v.GetInt("ADMIN_SETTINGS_CACHE_SECONDS"),
			AdminCheckCacheSecs: v.GetInt("ADMIN_CHECK_CACHE_SECONDS"),
		},
		Payments: PaymentsConfig{
			WebhookSecret: v.GetString("PAYMENT_WEBHOOK_SECRET"),
		},
		Storage: StorageConfig{
			Provider:        strings.ToLower(v.GetString("STORAGE_PROVIDER")),
			Bucket:          v.GetString("STORAGE_BUCKET"),
			Region:          v.GetString("STORAGE_REGION"),
			Endpoint:        v.GetString("STORAGE_ENDPOINT"),
			AccessKeyID:     v.GetString("STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("STORAGE_SECRET_ACCESS_KEY"),
			RoleARN:         v.GetString("STORAGE_ROLE_ARN"),
			CredentialsFile: v.GetString("STORAGE_CREDENTIALS_FILE"),
			URLExpiryMins:   v.GetInt("STORAGE_URL_EXPIRY_MINUTES"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("WORKER_CONCURRENCY"),
			SweepCron:   v.GetString("WORKER_SWEEP_CRON"),
		},
	}

	return cfg, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
