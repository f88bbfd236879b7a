package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("RequiresMongoURI", func(t *testing.T) {
		t.Setenv("MONGODB_URI", "")
		t.Setenv("JWT_SECRET", "secret")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("RequiresJWTSecret", func(t *testing.T) {
		t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
		t.Setenv("JWT_SECRET", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("KAFKA_BROKERS", "")
		t.Setenv("ISSUE_DAILY_LIMIT", "")
		t.Setenv("APP_TIMEZONE", "UTC")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "civicreport", cfg.MongoDB)
		assert.Equal(t, 10, cfg.IssueDailyLimit)
		assert.Equal(t, 72*time.Hour, cfg.TokenTTL)
		assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
		assert.Empty(t, cfg.KafkaBrokers)
		assert.Equal(t, "sms-otp", cfg.KafkaOTPTopic)
		assert.Equal(t, "verify", cfg.KavenegarOTPTemplate)
		assert.Equal(t, time.UTC, cfg.Location)
		assert.Nil(t, NewKafkaWriter(cfg))
	})

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("GO_ENV", "production")
		t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com,")
		t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
		t.Setenv("ISSUE_DAILY_LIMIT", "3")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.IsProduction())
		assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
		assert.Equal(t, 3, cfg.IssueDailyLimit)

		writer := NewKafkaWriter(cfg)
		require.NotNil(t, writer)
		assert.Empty(t, writer.Topic)
		require.NoError(t, writer.Close())
	})

	t.Run("InvalidDuration", func(t *testing.T) {
		t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("TOKEN_TTL", "three days")
		_, err := Load()
		assert.Error(t, err)
	})
}
