package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP
	HTTPPort string

	// Postgres (durable movement/alert archive)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis (live state + notification channels)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Zone catalog and vehicle directory seed
	ZonesFile    string
	VehiclesFile string

	// Ingestion
	MinDetectionConfidence float64

	// Alert thresholds
	InactivityAlertDays  int
	DeliveryReadyMinutes int
	SweepIntervalMinutes int

	// Tag that authorizes a vehicle to leave through an exit camera.
	ExitReadyTag string

	// Pipeline channels
	MovementChannelSize int
	StateChannelSize    int
	AlertChannelSize    int

	// Batch writer tuning
	DBBatchSize       int
	DBFlushIntervalMS int

	// Auth
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string
}

func Load() *Config {
	return &Config{
		HTTPPort:               getEnv("HTTP_PORT", "8002"),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBUser:                 getEnv("DB_USER", "yard_user"),
		DBPassword:             getEnv("DB_PASSWORD", "yard_password"),
		DBName:                 getEnv("DB_NAME", "yard_monitor"),
		DBMaxConns:             int32(getEnvInt("DB_MAX_CONNS", 10)),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvInt("REDIS_DB", 0),
		ZonesFile:              getEnv("ZONES_FILE", "zones.yml"),
		VehiclesFile:           getEnv("VEHICLES_FILE", "vehicles.yml"),
		MinDetectionConfidence: getEnvFloat("MIN_DETECTION_CONFIDENCE", 0.5),
		InactivityAlertDays:    getEnvInt("INACTIVITY_ALERT_DAYS", 20),
		DeliveryReadyMinutes:   getEnvInt("DELIVERY_READY_MINUTES", 60),
		SweepIntervalMinutes:   getEnvInt("SWEEP_INTERVAL_MINUTES", 15),
		ExitReadyTag:           getEnv("EXIT_READY_TAG", "ready"),
		MovementChannelSize:    getEnvInt("MOVEMENT_CHANNEL_SIZE", 10000),
		StateChannelSize:       getEnvInt("STATE_CHANNEL_SIZE", 10000),
		AlertChannelSize:       getEnvInt("ALERT_CHANNEL_SIZE", 1000),
		DBBatchSize:            getEnvInt("DB_BATCH_SIZE", 200),
		DBFlushIntervalMS:      getEnvInt("DB_FLUSH_INTERVAL_MS", 200),
		AuthCacheTTLSeconds:    getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		ValidAPIKeys:           strings.Split(getEnv("VALID_API_KEYS", ""), ","),
	}
}

// InactivityThreshold is the idle duration after which an on-premises
// vehicle is considered inactive.
func (c *Config) InactivityThreshold() time.Duration {
	return time.Duration(c.InactivityAlertDays) * 24 * time.Hour
}

// DeliveryReadyThreshold is the idle duration in a workshop zone after
// which a vehicle may be ready for pickup.
func (c *Config) DeliveryReadyThreshold() time.Duration {
	return time.Duration(c.DeliveryReadyMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
