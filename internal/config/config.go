package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Log      LogConfig
	Auth     AuthConfig
	Dispatch DispatchConfig
	Geocoder GeocoderConfig
	Kafka    KafkaConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	Migrate      bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// AuthConfig holds caller identification settings.
type AuthConfig struct {
	JWTSecret    string
	TrustHeaders bool
}

// DispatchConfig holds ride dispatch and housekeeping settings.
type DispatchConfig struct {
	RideRequestTTL       time.Duration
	RiderLockTTL         time.Duration
	ExpirySweepInterval  time.Duration
	DriverIdleTimeout    time.Duration
	OfflineSweepInterval time.Duration
	NearbyRadiusKm       float64
}

// GeocoderConfig holds reverse geocoding settings.
type GeocoderConfig struct {
	// Provider is "google" or "coordinates".
	Provider string
	APIKey   string
	Language string
	CacheTTL time.Duration
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	LocationTopic     string
	NotificationTopic string
	GroupID           string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			DBName:       getEnv("DB_NAME", "ride_engine"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 25),
			Migrate:      getBoolEnv("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "ride-engine"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("AUTH_JWT_SECRET", ""),
			TrustHeaders: getBoolEnv("AUTH_TRUST_HEADERS", false),
		},
		Dispatch: DispatchConfig{
			RideRequestTTL:       getDurationEnv("RIDE_REQUEST_TTL", 5*time.Hour),
			RiderLockTTL:         getDurationEnv("RIDER_LOCK_TTL", 10*time.Second),
			ExpirySweepInterval:  getPositiveDurationEnv("EXPIRY_SWEEP_INTERVAL", time.Minute),
			DriverIdleTimeout:    getDurationEnv("DRIVER_IDLE_TIMEOUT", 10*time.Minute),
			OfflineSweepInterval: getPositiveDurationEnv("OFFLINE_SWEEP_INTERVAL", time.Minute),
			NearbyRadiusKm:       getFloatEnv("NEARBY_RADIUS_KM", 5),
		},
		Geocoder: GeocoderConfig{
			Provider: getEnv("GEOCODER_PROVIDER", "coordinates"),
			APIKey:   getEnv("GOOGLE_MAPS_API_KEY", ""),
			Language: getEnv("GEOCODER_LANGUAGE", "en"),
			CacheTTL: getDurationEnv("GEOCODE_CACHE_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Enabled:           getBoolEnv("KAFKA_ENABLED", false),
			Brokers:           getListEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			LocationTopic:     getEnv("KAFKA_LOCATION_TOPIC", "user-locations"),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "ride-notifications"),
			GroupID:           getEnv("KAFKA_GROUP_ID", "ride-engine"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getPositiveDurationEnv is getDurationEnv for values that must be above zero,
// such as ticker intervals.
func getPositiveDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if d := getDurationEnv(key, defaultValue); d > 0 {
		return d
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, dropping empty entries.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
