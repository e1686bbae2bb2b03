// Package config reads gateway settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-ocr-gateway/internal/validate"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

type Config struct {
	Addr              string
	APIKey            string
	WorkerURL         string
	WorkerAPIKey      string
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
	MultipartMemory   int64
	Limits            validate.Limits
	NATSURL           string
	NATSSubjectPrefix string
	LogLevel          slog.Level
	LogFormat         string
}

func Load() (Config, error) {
	cfg := Config{
		Addr:              getenv("GATEWAY_ADDR", ":8080"),
		APIKey:            getenv("GATEWAY_API_KEY", ""),
		WorkerURL:         getenv("OCR_WORKER_URL", "http://127.0.0.1:8000"),
		WorkerAPIKey:      getenv("OCR_WORKER_API_KEY", ""),
		NATSURL:           getenv("NATS_URL", ""),
		NATSSubjectPrefix: getenv("NATS_SUBJECT_PREFIX", "ocr.jobs"),
		LogFormat:         strings.ToLower(getenv("LOG_FORMAT", "text")),
		Limits:            validate.DefaultLimits(),
	}
	if cfg.WorkerURL == "" {
		return Config{}, fmt.Errorf("OCR_WORKER_URL is required")
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("LOG_FORMAT must be text or json (got %q)", cfg.LogFormat)
	}

	var err error
	if cfg.RequestTimeout, err = parseDuration(getenv("REQUEST_TIMEOUT", "5m"), "REQUEST_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = parseDuration(getenv("SHUTDOWN_TIMEOUT", "30s"), "SHUTDOWN_TIMEOUT"); err != nil {
		return Config{}, err
	}

	maxSize, err := parsePositiveInt(getenv("MAX_FILE_SIZE", strconv.FormatInt(validate.DefaultMaxFileSize, 10)), "MAX_FILE_SIZE")
	if err != nil {
		return Config{}, err
	}
	cfg.Limits.MaxFileSize = int64(maxSize)

	memory, err := parsePositiveInt(getenv("MULTIPART_MEMORY", strconv.Itoa(8<<20)), "MULTIPART_MEMORY")
	if err != nil {
		return Config{}, err
	}
	cfg.MultipartMemory = int64(memory)

	if types := getenv("ALLOWED_FILE_TYPES", ""); types != "" {
		cfg.Limits.AllowedMediaTypes = parseList(types)
		if len(cfg.Limits.AllowedMediaTypes) == 0 {
			return Config{}, fmt.Errorf("ALLOWED_FILE_TYPES lists no media types")
		}
	}

	tokens, err := parsePositiveInt(getenv("DEFAULT_MAX_OUTPUT_TOKENS", strconv.Itoa(cfg.Limits.Defaults.MaxOutputTokens)), "DEFAULT_MAX_OUTPUT_TOKENS")
	if err != nil {
		return Config{}, err
	}
	if tokens > validate.MaxOutputTokensCeiling {
		return Config{}, fmt.Errorf("DEFAULT_MAX_OUTPUT_TOKENS must be at most %d (got %d)", validate.MaxOutputTokensCeiling, tokens)
	}
	cfg.Limits.Defaults.MaxOutputTokens = tokens

	if cfg.Limits.Defaults.IncludeImages, err = getenvBool("DEFAULT_INCLUDE_IMAGES", cfg.Limits.Defaults.IncludeImages); err != nil {
		return Config{}, err
	}
	if cfg.Limits.Defaults.IncludeHeadersFooters, err = getenvBool("DEFAULT_INCLUDE_HEADERS_FOOTERS", cfg.Limits.Defaults.IncludeHeadersFooters); err != nil {
		return Config{}, err
	}
	if f := getenv("DEFAULT_OUTPUT_FORMAT", ""); f != "" {
		format := schema.OutputFormat(strings.ToLower(f))
		if !format.Valid() {
			return Config{}, fmt.Errorf("DEFAULT_OUTPUT_FORMAT must be markdown, html or json (got %q)", f)
		}
		cfg.Limits.Defaults.OutputFormat = format
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) (bool, error) {
	val := getenv(key, "")
	if val == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func parseDuration(value string, name string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %s)", name, d)
	}
	return d, nil
}

func parseList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
