package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds runtime configuration values.
type Config struct {
	Env              string        `validate:"oneof=development production test"`
	Port             string        `validate:"required,numeric"`
	HTTPWriteTimeout time.Duration `validate:"gt=0"`
	Model            ModelConfig
	Upload           UploadConfig
}

// ModelConfig describes how to reach the image model and how hard to try.
type ModelConfig struct {
	APIKey        string `validate:"required_without=UseVertex"`
	Name          string `validate:"required"`
	UseVertex     bool
	Project       string        `validate:"required_if=UseVertex true"`
	Location      string        `validate:"required_if=UseVertex true"`
	BaseURL       string        `validate:"omitempty,url"`
	CallTimeout   time.Duration `validate:"gt=0"`
	MaxRetries    int           `validate:"min=0,max=1"`
	MinInterval   time.Duration `validate:"gte=0"`
	MaxPacingWait time.Duration `validate:"gte=0"`
}

// UploadConfig bounds what a caller may upload.
type UploadConfig struct {
	MaxFileBytes int64 `validate:"gt=0"`
	MaxSide      int   `validate:"gte=0"`
}

const defaultModel = "gemini-2.5-flash-image"

var validate = validator.New()

// Load reads an optional .env file and then builds the configuration from the environment.
// A missing .env file is not an error.
func Load(paths ...string) (Config, error) {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv loads configuration from environment variables and applies defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		Env:              strings.ToLower(getenv("APP_ENV", "production")),
		Port:             getenv("APP_PORT", getenv("PORT", "8080")),
		HTTPWriteTimeout: getenvDuration("HTTP_WRITE_TIMEOUT", 120*time.Second),
		Model: ModelConfig{
			APIKey:        strings.TrimSpace(getenv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))),
			Name:          strings.TrimPrefix(getenv("GEMINI_MODEL", defaultModel), "models/"),
			UseVertex:     getenvBool("GOOGLE_GENAI_USE_VERTEXAI", false),
			Project:       os.Getenv("GOOGLE_CLOUD_PROJECT"),
			Location:      os.Getenv("GOOGLE_CLOUD_LOCATION"),
			BaseURL:       os.Getenv("GEMINI_BASE_URL"),
			CallTimeout:   getenvDuration("MODEL_CALL_TIMEOUT", 30*time.Second),
			MaxRetries:    getenvInt("MODEL_MAX_RETRIES", 1),
			MinInterval:   getenvDuration("MODEL_MIN_INTERVAL", 5*time.Second),
			MaxPacingWait: getenvDuration("MODEL_MAX_PACING_WAIT", 3*time.Second),
		},
		Upload: UploadConfig{
			MaxFileBytes: int64(getenvInt("MAX_UPLOAD_BYTES", 8<<20)),
			MaxSide:      getenvInt("MAX_REFERENCE_SIDE", 768),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if fe.Namespace() == "Config.Model.APIKey" {
				return fmt.Errorf("config: GEMINI_API_KEY (or GOOGLE_API_KEY) is required")
			}
			return fmt.Errorf("config: %s failed %q check", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Development reports whether the service runs in development mode.
func (c Config) Development() bool {
	return c.Env == "development"
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func getenvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}

	return parsed
}

func getenvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}

	return parsed
}

// getenvDuration accepts Go duration strings ("30s") or a bare number of seconds.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}

	if parsed, err := time.ParseDuration(val); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}

	return fallback
}
