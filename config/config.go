package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the server reads from the environment.
type Config struct {
	Env         string
	Port        string
	LogLevel    string
	Domain      string
	CORSOrigins []string
	Location    *time.Location

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
	TokenTTL  time.Duration
	OTPTTL    time.Duration

	IssueDailyLimit  int
	IssueLimitPrefix string
	LocationSlotTTL  time.Duration

	S3Bucket        string
	S3PublicBaseURL string
	S3Endpoint      string

	KafkaBrokers   []string
	KafkaPushTopic string
	KafkaOTPTopic  string

	KavenegarAPIKey      string
	KavenegarSender      string
	KavenegarOTPTemplate string
}

// IsProduction reports whether GO_ENV is production.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:              getEnv("GO_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Domain:           os.Getenv("DOMAIN"),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		MongoURI:         os.Getenv("MONGODB_URI"),
		MongoDB:          getEnv("MONGODB_DATABASE", "civicreport"),
		RedisAddr:        getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		IssueLimitPrefix: getEnv("REDIS_QUEUE_FOR_ISSUE_LIMIT", "issue_limit"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:  os.Getenv("S3_PUBLIC_BASE_URL"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaPushTopic:   getEnv("KAFKA_PUSH_TOPIC", "push-notifications"),
		KafkaOTPTopic:    getEnv("KAFKA_OTP_TOPIC", "sms-otp"),

		KavenegarAPIKey:      os.Getenv("KAVENEGAR_API_KEY"),
		KavenegarSender:      os.Getenv("KAVENEGAR_SENDER"),
		KavenegarOTPTemplate: getEnv("KAVENEGAR_OTP_TEMPLATE", "verify"),
	}

	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("please define the MONGODB_URI environment variable")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set")
	}

	var err error
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.IssueDailyLimit, err = strconv.Atoi(getEnv("ISSUE_DAILY_LIMIT", "10")); err != nil {
		return nil, fmt.Errorf("invalid ISSUE_DAILY_LIMIT: %w", err)
	}
	if cfg.TokenTTL, err = time.ParseDuration(getEnv("TOKEN_TTL", "72h")); err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	if cfg.OTPTTL, err = time.ParseDuration(getEnv("OTP_TTL", "5m")); err != nil {
		return nil, fmt.Errorf("invalid OTP_TTL: %w", err)
	}
	if cfg.LocationSlotTTL, err = time.ParseDuration(getEnv("LOCATION_SLOT_TTL", "15m")); err != nil {
		return nil, fmt.Errorf("invalid LOCATION_SLOT_TTL: %w", err)
	}
	if cfg.Location, err = time.LoadLocation(getEnv("APP_TIMEZONE", "Local")); err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
