package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is the resolved server configuration. Secrets stay in memory and
// are never written into execution units or logs.
type Config struct {
	APIBaseURL       string        `validate:"required,url"`
	APIName          string        `validate:"required"`
	APIToken         string        `validate:"-"`
	AccountID        string        `validate:"omitempty,printascii"`
	SpecPath         string        `validate:"required"`
	SpecSource       string        `validate:"required"`
	ExecutionTimeout time.Duration `validate:"gt=0"`
	HTTPTimeout      time.Duration `validate:"gt=0"`
	Transport        string        `validate:"oneof=stdio http"`
	Port             string        `validate:"required,numeric"`
	RedisURL         string        `validate:"omitempty,url"`
	RateLimit        int           `validate:"gte=0"`
	RateLimitWindow  time.Duration `validate:"gt=0"`
	SessionTimeout   time.Duration `validate:"gte=0"`
	LogTags          string        `validate:"-"`
}

var validate = validator.New()

// Default returns the configuration before any environment is applied.
func Default() Config {
	return Config{
		APIBaseURL:       "https://api.cloudflare.com/client/v4",
		APIName:          "Cloudflare",
		SpecPath:         "data/spec.json",
		SpecSource:       "https://raw.githubusercontent.com/cloudflare/api-schemas/main/openapi.json",
		ExecutionTimeout: 30 * time.Second,
		HTTPTimeout:      30 * time.Second,
		Transport:        TransportStdio,
		Port:             "8080",
		RateLimit:        60,
		RateLimitWindow:  time.Minute,
		SessionTimeout:   30 * time.Minute,
	}
}

// Load resolves the configuration from defaults and CODEMODE_* variables.
// .env files are loaded into the environment by the CLI beforehand.
func Load() (Config, error) {
	cfg := Default()

	overrideString("CODEMODE_API_BASE_URL", &cfg.APIBaseURL)
	overrideString("CODEMODE_API_NAME", &cfg.APIName)
	overrideString("CODEMODE_API_TOKEN", &cfg.APIToken)
	overrideString("CODEMODE_ACCOUNT_ID", &cfg.AccountID)
	overrideString("CODEMODE_SPEC_PATH", &cfg.SpecPath)
	overrideString("CODEMODE_SPEC_SOURCE", &cfg.SpecSource)
	overrideString("CODEMODE_TRANSPORT", &cfg.Transport)
	overrideString("PORT", &cfg.Port)
	overrideString("CODEMODE_REDIS_URL", &cfg.RedisURL)
	overrideString("CODEMODE_LOG_TAGS", &cfg.LogTags)
	overrideInt("CODEMODE_RATE_LIMIT", &cfg.RateLimit)

	if err := overrideDuration("CODEMODE_EXECUTION_TIMEOUT", &cfg.ExecutionTimeout); err != nil {
		return Config{}, err
	}
	if err := overrideDuration("CODEMODE_HTTP_TIMEOUT", &cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}
	if err := overrideDuration("CODEMODE_RATE_LIMIT_WINDOW", &cfg.RateLimitWindow); err != nil {
		return Config{}, err
	}
	if err := overrideDuration("CODEMODE_SESSION_TIMEOUT", &cfg.SessionTimeout); err != nil {
		return Config{}, err
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.Transport = strings.ToLower(cfg.Transport)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports the offending fields.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fields := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fieldErr.Field(), fieldErr.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
}

// FixedAccount reports whether every execution targets a configured account.
func (c Config) FixedAccount() bool {
	return c.AccountID != ""
}

func overrideString(name string, target *string) {
	if value := os.Getenv(name); value != "" {
		*target = value
	}
}

func overrideInt(name string, target *int) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err == nil {
		*target = parsed
	}
}

func overrideDuration(name string, target *time.Duration) error {
	value := os.Getenv(name)
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	*target = parsed
	return nil
}
