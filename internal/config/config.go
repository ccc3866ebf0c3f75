// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port               int      `koanf:"port"`
	Env                string   `koanf:"env"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Database
	DatabaseURL       string        `koanf:"database_url"`
	DBMaxOpenConns    int           `koanf:"db_max_open_conns"`
	DBMaxIdleConns    int           `koanf:"db_max_idle_conns"`
	DBConnMaxLifetime time.Duration `koanf:"db_conn_max_lifetime"`

	// Reporting
	ReportTimezone string        `koanf:"report_timezone"`
	RedisURL       string        `koanf:"redis_url"`
	ReportCacheTTL time.Duration `koanf:"report_cache_ttl"`

	// Map viewport
	MapDefaultLat  float64 `koanf:"map_default_lat"`
	MapDefaultLng  float64 `koanf:"map_default_lng"`
	MapDefaultZoom int     `koanf:"map_default_zoom"`
	MapMinZoom     int     `koanf:"map_min_zoom"`
	MapMaxZoom     int     `koanf:"map_max_zoom"`

	// Audit
	AuditIPRetention time.Duration `koanf:"audit_ip_retention"`

	// R2 (Cloudflare Object Storage) export archive
	R2BucketName      string        `koanf:"r2_bucket_name"`
	R2AccessKeyID     string        `koanf:"r2_access_key_id"`
	R2SecretAccessKey string        `koanf:"r2_secret_access_key"`
	R2Endpoint        string        `koanf:"r2_endpoint"`
	R2URLExpiry       time.Duration `koanf:"r2_url_expiry"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporter     string  `koanf:"tracing_exporter"`
	TracingEndpoint     string  `koanf:"tracing_endpoint"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL       = errors.New("DATABASE_URL is required")
	ErrMissingR2BucketName      = errors.New("R2_BUCKET_NAME is required")
	ErrMissingR2AccessKeyID     = errors.New("R2_ACCESS_KEY_ID is required")
	ErrMissingR2SecretAccessKey = errors.New("R2_SECRET_ACCESS_KEY is required")
	ErrMissingR2Endpoint        = errors.New("R2_ENDPOINT is required")
	ErrInvalidPort              = errors.New("PORT must be a valid integer")
	ErrInvalidValue             = errors.New("invalid configuration value")
	ErrInvalidTimezone          = errors.New("REPORT_TIMEZONE must be an IANA zone name")
	ErrInvalidMapZoom           = errors.New("map zoom levels must satisfy 0 <= min <= default <= max")
	ErrInvalidSamplingRate      = errors.New("TRACING_SAMPLING_RATE must be between 0 and 1")
)

// Default values for non-secret configuration.
const (
	DefaultPort                = 8080
	DefaultEnv                 = "development"
	DefaultDBMaxOpenConns      = 25
	DefaultDBMaxIdleConns      = 5
	DefaultDBConnMaxLifetime   = 30 * time.Minute
	DefaultReportTimezone      = "UTC"
	DefaultReportCacheTTL      = 5 * time.Minute
	DefaultMapDefaultLat       = 6.5244
	DefaultMapDefaultLng       = 3.3792
	DefaultMapDefaultZoom      = 11
	DefaultMapMinZoom          = 9
	DefaultMapMaxZoom          = 18
	DefaultR2URLExpiry         = 15 * time.Minute
	DefaultTracingExporter     = "otlp-http"
	DefaultTracingSamplingRate = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	l := &loader{k: k}

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	cfg := &Config{
		Port:               l.port([]string{"WASTEMAP_PORT", "PORT"}, "port", DefaultPort),
		Env:                getEnvOrDefaultMulti([]string{"WASTEMAP_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		CORSAllowedOrigins: l.list("CORS_ALLOWED_ORIGINS", "cors_allowed_origins"),
		DatabaseURL:        getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		DBMaxOpenConns:     l.int("DB_MAX_OPEN_CONNS", "db_max_open_conns", DefaultDBMaxOpenConns),
		DBMaxIdleConns:     l.int("DB_MAX_IDLE_CONNS", "db_max_idle_conns", DefaultDBMaxIdleConns),
		DBConnMaxLifetime:  l.duration("DB_CONN_MAX_LIFETIME", "db_conn_max_lifetime", DefaultDBConnMaxLifetime),

		ReportTimezone: getEnvOrDefault("REPORT_TIMEZONE", k.String("report_timezone"), DefaultReportTimezone),
		RedisURL:       getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		ReportCacheTTL: l.duration("REPORT_CACHE_TTL", "report_cache_ttl", DefaultReportCacheTTL),

		MapDefaultLat:  l.float("MAP_DEFAULT_LAT", "map_default_lat", DefaultMapDefaultLat),
		MapDefaultLng:  l.float("MAP_DEFAULT_LNG", "map_default_lng", DefaultMapDefaultLng),
		MapDefaultZoom: l.int("MAP_DEFAULT_ZOOM", "map_default_zoom", DefaultMapDefaultZoom),
		MapMinZoom:     l.int("MAP_MIN_ZOOM", "map_min_zoom", DefaultMapMinZoom),
		MapMaxZoom:     l.int("MAP_MAX_ZOOM", "map_max_zoom", DefaultMapMaxZoom),

		AuditIPRetention: l.duration("AUDIT_IP_RETENTION", "audit_ip_retention", 0),

		R2BucketName:      getEnvOrKoanf("R2_BUCKET_NAME", k, "r2_bucket_name"),
		R2AccessKeyID:     getEnvOrKoanf("R2_ACCESS_KEY_ID", k, "r2_access_key_id"),
		R2SecretAccessKey: getEnvOrKoanf("R2_SECRET_ACCESS_KEY", k, "r2_secret_access_key"),
		R2Endpoint:        getEnvOrKoanf("R2_ENDPOINT", k, "r2_endpoint"),
		R2URLExpiry:       l.duration("R2_URL_EXPIRY", "r2_url_expiry", DefaultR2URLExpiry),

		TracingEnabled:      l.bool("TRACING_ENABLED", "tracing_enabled", false),
		TracingExporter:     getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		TracingEndpoint:     getEnvOrDefaultMulti([]string{"TRACING_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, k.String("tracing_endpoint"), ""),
		TracingInsecure:     l.bool("TRACING_INSECURE", "tracing_insecure", false),
		TracingSamplingRate: l.float("TRACING_SAMPLING_RATE", "tracing_sampling_rate", DefaultTracingSamplingRate),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(l.errs, errs...)

	return cfg, errs
}

// loader reads typed values, collecting parse errors instead of stopping at
// the first one.
type loader struct {
	k    *koanf.Koanf
	errs []error
}

func (l *loader) port(envKeys []string, koanfKey string, defaultVal int) int {
	v, err := getEnvIntOrDefaultMulti(envKeys, l.k.Int(koanfKey), defaultVal)
	if err != nil {
		l.errs = append(l.errs, err)
	}
	return v
}

func (l *loader) int(envKey, koanfKey string, defaultVal int) int {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidValue))
			return defaultVal
		}
		return i
	}
	if l.k.Exists(koanfKey) {
		return l.k.Int(koanfKey)
	}
	return defaultVal
}

func (l *loader) float(envKey, koanfKey string, defaultVal float64) float64 {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s must be a valid float: %w", envKey, ErrInvalidValue))
			return defaultVal
		}
		return f
	}
	if l.k.Exists(koanfKey) {
		return l.k.Float64(koanfKey)
	}
	return defaultVal
}

// duration accepts Go duration strings such as "30m" or "1h30m".
func (l *loader) duration(envKey, koanfKey string, defaultVal time.Duration) time.Duration {
	raw := os.Getenv(envKey)
	name := envKey
	if raw == "" && l.k.Exists(koanfKey) {
		raw, name = l.k.String(koanfKey), koanfKey
	}
	if raw == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		l.errs = append(l.errs, fmt.Errorf("%s must be a non-negative duration: %w", name, ErrInvalidValue))
		return defaultVal
	}
	return d
}

// list reads a comma-separated env var or a YAML list (or comma-separated
// string) from the file. Blank entries are dropped.
func (l *loader) list(envKey, koanfKey string) []string {
	var raw []string
	if val := os.Getenv(envKey); val != "" {
		raw = strings.Split(val, ",")
	} else if l.k.Exists(koanfKey) {
		raw = l.k.Strings(koanfKey)
		if len(raw) == 0 {
			raw = strings.Split(l.k.String(koanfKey), ",")
		}
	}
	var out []string
	for _, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (l *loader) bool(envKey, koanfKey string, defaultVal bool) bool {
	v := defaultVal
	if l.k.Exists(koanfKey) {
		v = l.k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		// Env var takes precedence over file config
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			v = true
		case "false", "0", "no", "off":
			v = false
		}
	}
	return v
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidTimezone, c.ReportTimezone))
	}
	if c.MapMinZoom < 0 || c.MapMinZoom > c.MapDefaultZoom || c.MapDefaultZoom > c.MapMaxZoom {
		errs = append(errs, ErrInvalidMapZoom)
	}
	if c.TracingSamplingRate < 0 || c.TracingSamplingRate > 1 {
		errs = append(errs, ErrInvalidSamplingRate)
	}

	// R2 configuration is optional. Only validate fields if any R2 value is set.
	if c.ArchiveEnabled() || c.R2AccessKeyID != "" || c.R2SecretAccessKey != "" || c.R2Endpoint != "" {
		if c.R2BucketName == "" {
			errs = append(errs, ErrMissingR2BucketName)
		}
		if c.R2AccessKeyID == "" {
			errs = append(errs, ErrMissingR2AccessKeyID)
		}
		if c.R2SecretAccessKey == "" {
			errs = append(errs, ErrMissingR2SecretAccessKey)
		}
		if c.R2Endpoint == "" {
			errs = append(errs, ErrMissingR2Endpoint)
		}
	}

	return errs
}

// ArchiveEnabled reports whether report archiving to R2 is configured.
func (c *Config) ArchiveEnabled() bool { return c.R2BucketName != "" }

// CacheEnabled reports whether the Redis report cache is configured.
func (c *Config) CacheEnabled() bool { return c.RedisURL != "" && c.ReportCacheTTL > 0 }

// Location returns the report timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                  strconv.Itoa(c.Port),
		"env":                   c.Env,
		"cors_allowed_origins":  strings.Join(c.CORSAllowedOrigins, ","),
		"database_url":          maskDatabaseURL(c.DatabaseURL),
		"db_max_open_conns":     strconv.Itoa(c.DBMaxOpenConns),
		"db_max_idle_conns":     strconv.Itoa(c.DBMaxIdleConns),
		"db_conn_max_lifetime":  c.DBConnMaxLifetime.String(),
		"report_timezone":       c.ReportTimezone,
		"redis_url":             maskDatabaseURL(c.RedisURL),
		"report_cache_ttl":      c.ReportCacheTTL.String(),
		"map_default_center":    strconv.FormatFloat(c.MapDefaultLat, 'f', -1, 64) + "," + strconv.FormatFloat(c.MapDefaultLng, 'f', -1, 64),
		"map_zoom":              fmt.Sprintf("%d [%d-%d]", c.MapDefaultZoom, c.MapMinZoom, c.MapMaxZoom),
		"audit_ip_retention":    c.AuditIPRetention.String(),
		"r2_bucket_name":        c.R2BucketName,
		"r2_access_key_id":      maskSecret(c.R2AccessKeyID),
		"r2_secret_access_key":  maskSecret(c.R2SecretAccessKey),
		"r2_endpoint":           c.R2Endpoint,
		"r2_url_expiry":         c.R2URLExpiry.String(),
		"tracing_enabled":       strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":      c.TracingExporter,
		"tracing_endpoint":      c.TracingEndpoint,
		"tracing_sampling_rate": strconv.FormatFloat(c.TracingSamplingRate, 'f', -1, 64),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Supports postgres://, postgresql:// and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
