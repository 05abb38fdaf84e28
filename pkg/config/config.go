package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Conflict checker backends.
const (
	ConflictCheckerLocal  = "local"
	ConflictCheckerLegacy = "legacy"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Legacy    LegacyConfig
	Jobs      JobsConfig
	Export    ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	// Timeout bounds dialing, reads and writes. Cache calls sit on the request path.
	Timeout time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes the rescheduling and room recommendation flows.
type SchedulerConfig struct {
	Timezone                 string
	ConflictChecker          string
	ExternalCheckConcurrency int
	ExternalCheckTimeout     time.Duration
	RecommendationLimit      int
	NearbyDays               int
	RoomCacheTTL             time.Duration
}

// LegacyConfig points at the classroom backend the admin UI used to call directly.
type LegacyConfig struct {
	BaseURL  string
	Timeout  time.Duration
	APIToken string
}

// JobsConfig sizes the post-commit worker queue.
type JobsConfig struct {
	Workers int
	Retries int
}

// ExportConfig locates stored timetable files and signs their download links.
type ExportConfig struct {
	Dir        string
	SignSecret string
	LinkTTL    time.Duration
}

// Location resolves the scheduler timezone, falling back to the process local zone.
func (c SchedulerConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
		Timeout:  parseDuration(v.GetString("REDIS_TIMEOUT"), 500*time.Millisecond),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		Timezone:                 v.GetString("SCHEDULER_TIMEZONE"),
		ConflictChecker:          strings.ToLower(v.GetString("CONFLICT_CHECKER")),
		ExternalCheckConcurrency: v.GetInt("SCHEDULER_EXTERNAL_CHECK_CONCURRENCY"),
		ExternalCheckTimeout:     parseDuration(v.GetString("SCHEDULER_EXTERNAL_CHECK_TIMEOUT"), 5*time.Second),
		RecommendationLimit:      v.GetInt("SCHEDULER_RECOMMENDATION_LIMIT"),
		NearbyDays:               v.GetInt("SCHEDULER_NEARBY_DAYS"),
		RoomCacheTTL:             parseDuration(v.GetString("SCHEDULER_ROOM_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Legacy = LegacyConfig{
		BaseURL:  strings.TrimRight(v.GetString("LEGACY_BASE_URL"), "/"),
		Timeout:  parseDuration(v.GetString("LEGACY_TIMEOUT"), 5*time.Second),
		APIToken: v.GetString("LEGACY_API_TOKEN"),
	}

	cfg.Jobs = JobsConfig{
		Workers: v.GetInt("JOBS_WORKERS"),
		Retries: v.GetInt("JOBS_RETRIES"),
	}

	cfg.Export = ExportConfig{
		Dir:        v.GetString("EXPORT_DIR"),
		SignSecret: v.GetString("EXPORT_SIGN_SECRET"),
		LinkTTL:    parseDuration(v.GetString("EXPORT_LINK_TTL"), 24*time.Hour),
	}
	if cfg.Export.SignSecret == "" {
		cfg.Export.SignSecret = cfg.JWT.Secret
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "classroom")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_TIMEOUT", "500ms")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_TIMEZONE", "Asia/Ho_Chi_Minh")
	v.SetDefault("CONFLICT_CHECKER", ConflictCheckerLocal)
	v.SetDefault("SCHEDULER_EXTERNAL_CHECK_CONCURRENCY", 4)
	v.SetDefault("SCHEDULER_EXTERNAL_CHECK_TIMEOUT", "5s")
	v.SetDefault("SCHEDULER_RECOMMENDATION_LIMIT", 10)
	v.SetDefault("SCHEDULER_NEARBY_DAYS", 3)
	v.SetDefault("SCHEDULER_ROOM_CACHE_TTL", "10m")

	v.SetDefault("LEGACY_BASE_URL", "http://localhost:8088/api")
	v.SetDefault("LEGACY_TIMEOUT", "5s")
	v.SetDefault("LEGACY_API_TOKEN", "")

	v.SetDefault("JOBS_WORKERS", 2)
	v.SetDefault("JOBS_RETRIES", 3)

	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_SIGN_SECRET", "")
	v.SetDefault("EXPORT_LINK_TTL", "24h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
