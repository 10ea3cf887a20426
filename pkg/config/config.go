package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	QR           QRConfig
	Verification VerificationConfig
	Sweeper      SweeperConfig
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
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// QRConfig sets defaults for QR session issuance and consumption.
type QRConfig struct {
	DefaultDurationMinutes int
	MaxDurationMinutes     int
	DefaultMaxUsage        int
	AllowMultipleScans     bool
	EnforceIPAllowList     bool
	CreateLockTTL          time.Duration
}

// VerificationConfig tunes the three-factor verification engine.
type VerificationConfig struct {
	FaceScoreThreshold float64
	AltitudeTolerance  float64
	// AllowDegradedGeofence permits the distance-from-center fallback for
	// rooms whose polygon data is malformed. Off by default: malformed
	// geometry fails closed.
	AllowDegradedGeofence bool
	DegradedRadiusMeters  float64
}

// SweeperConfig controls the background expiry bookkeeping job. The engine
// stays correct without it; expiry is always re-checked at validation time.
type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
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
		if !errors.As(err, &notFound) {
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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.QR = QRConfig{
		DefaultDurationMinutes: v.GetInt("QR_DEFAULT_DURATION_MINUTES"),
		MaxDurationMinutes:     v.GetInt("QR_MAX_DURATION_MINUTES"),
		DefaultMaxUsage:        v.GetInt("QR_DEFAULT_MAX_USAGE"),
		AllowMultipleScans:     v.GetBool("QR_ALLOW_MULTIPLE_SCANS"),
		EnforceIPAllowList:     v.GetBool("QR_ENFORCE_IP_ALLOWLIST"),
		CreateLockTTL:          parseDuration(v.GetString("QR_CREATE_LOCK_TTL"), 10*time.Second),
	}

	cfg.Verification = VerificationConfig{
		FaceScoreThreshold:    v.GetFloat64("FACE_SCORE_THRESHOLD"),
		AltitudeTolerance:     v.GetFloat64("ALTITUDE_TOLERANCE_METERS"),
		AllowDegradedGeofence: v.GetBool("GEOFENCE_ALLOW_DEGRADED"),
		DegradedRadiusMeters:  v.GetFloat64("GEOFENCE_DEGRADED_RADIUS_METERS"),
	}

	cfg.Sweeper = SweeperConfig{
		Enabled:  v.GetBool("ENABLE_SESSION_SWEEPER"),
		Interval: parseDuration(v.GetString("SESSION_SWEEPER_INTERVAL"), 5*time.Minute),
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
	v.SetDefault("DB_NAME", "attendance_engine")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("QR_DEFAULT_DURATION_MINUTES", 30)
	v.SetDefault("QR_MAX_DURATION_MINUTES", 180)
	v.SetDefault("QR_DEFAULT_MAX_USAGE", 1000)
	v.SetDefault("QR_ALLOW_MULTIPLE_SCANS", true)
	v.SetDefault("QR_ENFORCE_IP_ALLOWLIST", false)
	v.SetDefault("QR_CREATE_LOCK_TTL", "10s")

	v.SetDefault("FACE_SCORE_THRESHOLD", 0.75)
	v.SetDefault("ALTITUDE_TOLERANCE_METERS", 2.0)
	v.SetDefault("GEOFENCE_ALLOW_DEGRADED", false)
	v.SetDefault("GEOFENCE_DEGRADED_RADIUS_METERS", 10.0)

	v.SetDefault("ENABLE_SESSION_SWEEPER", false)
	v.SetDefault("SESSION_SWEEPER_INTERVAL", "5m")
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
