package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// DecoderKind selects which image decoding path the inference pipeline uses.
type DecoderKind string

const (
	DecoderByte    DecoderKind = "byte"
	DecoderSurface DecoderKind = "surface"
)

// Config carries all runtime settings for the service.
type Config struct {
	HTTPAddr          string
	DatabaseDSN       string
	RedisAddr         string
	TokenSecret       string
	TokenTTL          time.Duration
	ModelPath         string
	ModelMetadataPath string
	Decoder           DecoderKind
	ShutdownTimeout   time.Duration
}

// Load reads configuration from the environment. A .env file in the
// working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DatabaseDSN:       getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=striplab port=5432 sslmode=disable"),
		RedisAddr:         getEnv("REDIS_ADDR", "redis:6379"),
		TokenSecret:       getEnv("TOKEN_SECRET", "dev-secret"),
		TokenTTL:          7 * 24 * time.Hour,
		ModelPath:         getEnv("MODEL_PATH", "assets/model/strip_classifier.onnx"),
		ModelMetadataPath: getEnv("MODEL_METADATA_PATH", "assets/model/metadata.json"),
		Decoder:           DecoderKind(getEnv("DECODER", string(DecoderByte))),
		ShutdownTimeout:   15 * time.Second,
	}

	switch cfg.Decoder {
	case DecoderByte, DecoderSurface:
	default:
		return nil, fmt.Errorf("config: unknown decoder %q", cfg.Decoder)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
