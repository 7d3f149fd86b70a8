package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const defaultRatesBaseURL = "https://data-api.ecb.europa.eu/service/data/EXR"

type Config struct {
	Port      string
	PprofAddr string
	LogLevel  string

	DBConnectionString string
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	DBConnMaxLifetime  time.Duration

	JWTSecret string

	MarketDataAPIKey         string
	InstrumentImportSchedule string

	RatesBaseURL         string
	RatesQuoteCurrency   string
	RatesCacheTTL        time.Duration
	RatesRefreshSchedule string

	RecurringSchedule string

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("Error loading .env file, continuing with system environment variables")
	}

	dbConn, err := getRequiredEnv("DB_CONNECTION_STRING")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		PprofAddr: getEnv("PPROF_ADDR", "localhost:6060"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		DBConnectionString: dbConn,
		DBMaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
		DBMaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),

		JWTSecret: jwtSecret,

		MarketDataAPIKey:         getEnv("MARKET_DATA_API_KEY", ""),
		InstrumentImportSchedule: getEnv("INSTRUMENT_IMPORT_SCHEDULE", "@every 6h"),

		RatesBaseURL:         getEnv("RATES_BASE_URL", defaultRatesBaseURL),
		RatesQuoteCurrency:   getEnv("RATES_QUOTE_CURRENCY", "EUR"),
		RatesCacheTTL:        getEnvAsDuration("RATES_CACHE_TTL", time.Hour),
		RatesRefreshSchedule: getEnv("RATES_REFRESH_SCHEDULE", "@every 30m"),

		RecurringSchedule: getEnv("RECURRING_SCHEDULE", "@every 15m"),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 30),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("missing %s in environment variables", key)
	}
	return value, nil
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Int("default", fallback).Msg("Invalid integer in environment, using default")
		return fallback
	}
	return value
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Float64("default", fallback).Msg("Invalid number in environment, using default")
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Dur("default", fallback).Msg("Invalid duration in environment, using default")
		return fallback
	}
	return value
}
