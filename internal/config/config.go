// Package config handles application configuration: an optional YAML file
// with ${ENV} expansion, an optional .env file, and environment overrides.
package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v3"

	"branchcheck/internal/domain"
)

// Storage catalog modes.
const (
	StorageModeAPI       = "api"
	StorageModeWarehouse = "warehouse"
)

// CatalogConfig locates the check catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig configures the storage catalog collaborator.
type StorageConfig struct {
	Mode           string        `yaml:"mode"` // "api" (default) or "warehouse"
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	Timeout        time.Duration `yaml:"timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
}

// WarehouseConfig configures the warehouse execution collaborator.
type WarehouseConfig struct {
	Driver       string        `yaml:"driver"` // "duckdb" (default) or "sqlite3"
	DSN          string        `yaml:"dsn"`
	InitSQL      []string      `yaml:"init_sql"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// ValidationConfig holds run-level validation settings.
type ValidationConfig struct {
	RequiredColumns []string `yaml:"required_columns"`
}

// HistoryConfig configures run persistence.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// S3Config holds S3-compatible object store credentials.
type S3Config struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	KeyID    string `yaml:"key_id"`
	Secret   string `yaml:"secret"`
}

// GCSConfig holds Google Cloud Storage credentials.
type GCSConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

// AzureConfig holds Azure Blob Storage credentials.
type AzureConfig struct {
	AccountName string `yaml:"account_name"`
	AccountKey  string `yaml:"account_key"`
	ServiceURL  string `yaml:"service_url"`
}

// ReportConfig configures where exported reports go.
type ReportConfig struct {
	Sink   string      `yaml:"sink"`   // directory, s3://, gs://, or az:// URI
	Format string      `yaml:"format"` // csv (default) or json
	S3     S3Config    `yaml:"s3"`
	GCS    GCSConfig   `yaml:"gcs"`
	Azure  AzureConfig `yaml:"azure"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr         string   `yaml:"listen_addr"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RateLimitRPS       float64  `yaml:"rate_limit_rps"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Config is threaded explicitly into every component that needs settings.
type Config struct {
	Catalog    CatalogConfig    `yaml:"catalog"`
	Storage    StorageConfig    `yaml:"storage"`
	Warehouse  WarehouseConfig  `yaml:"warehouse"`
	Validation ValidationConfig `yaml:"validation"`
	History    HistoryConfig    `yaml:"history"`
	Report     ReportConfig     `yaml:"report"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Catalog: CatalogConfig{Path: "data_test_parametrics.csv"},
		Storage: StorageConfig{
			Mode:           StorageModeAPI,
			URL:            "https://connection.keboola.com",
			Timeout:        30 * time.Second,
			RateLimitRPS:   10,
			RateLimitBurst: 5,
		},
		Warehouse:  WarehouseConfig{Driver: "duckdb"},
		Validation: ValidationConfig{RequiredColumns: append([]string(nil), domain.ResultColumns...)},
		History:    HistoryConfig{Enabled: true, Path: "branchcheck.sqlite"},
		Report:     ReportConfig{Format: "csv"},
		Server: ServerConfig{
			ListenAddr:         ":8080",
			CORSAllowedOrigins: []string{"*"},
			RateLimitRPS:       20,
			RateLimitBurst:     40,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds a Config from defaults and environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	expanded, err := ExpandEnv(string(data))
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ExpandEnv substitutes ${VAR} references from the environment. Any
// referenced variable that is not set is an error.
func ExpandEnv(s string) (string, error) {
	missing := map[string]bool{}
	out, err := envsubst.Eval(s, func(name string) string {
		v, ok := os.LookupEnv(name)
		if !ok {
			missing[name] = true
		}
		return v
	})
	if err != nil {
		return "", fmt.Errorf("expand environment: %w", err)
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("environment variable not set: %s", strings.Join(names, ", "))
	}
	return out, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Catalog.Path, "CATALOG_PATH")

	setString(&c.Storage.Mode, "STORAGE_MODE")
	setString(&c.Storage.URL, "KBC_URL", "STORAGE_API_URL")
	setString(&c.Storage.Token, "KBC_TOKEN", "STORAGE_API_TOKEN")
	if err := setDuration(&c.Storage.Timeout, "STORAGE_TIMEOUT"); err != nil {
		return err
	}
	if err := setFloat(&c.Storage.RateLimitRPS, "STORAGE_RATE_LIMIT_RPS"); err != nil {
		return err
	}
	if err := setInt(&c.Storage.RateLimitBurst, "STORAGE_RATE_LIMIT_BURST"); err != nil {
		return err
	}

	setString(&c.Warehouse.Driver, "WAREHOUSE_DRIVER")
	setString(&c.Warehouse.DSN, "WAREHOUSE_DSN")
	if err := setDuration(&c.Warehouse.QueryTimeout, "WAREHOUSE_QUERY_TIMEOUT"); err != nil {
		return err
	}
	if v := os.Getenv("REQUIRED_COLUMNS"); v != "" {
		c.Validation.RequiredColumns = splitList(v)
	}

	c.History.Enabled = parseBoolEnvDefault("HISTORY_ENABLED", c.History.Enabled)
	setString(&c.History.Path, "HISTORY_PATH")

	setString(&c.Report.Sink, "REPORT_SINK")
	setString(&c.Report.Format, "REPORT_FORMAT")
	setString(&c.Report.S3.Region, "REPORT_S3_REGION")
	setString(&c.Report.S3.Endpoint, "REPORT_S3_ENDPOINT")
	setString(&c.Report.S3.KeyID, "REPORT_S3_KEY_ID")
	setString(&c.Report.S3.Secret, "REPORT_S3_SECRET")
	setString(&c.Report.GCS.CredentialsFile, "REPORT_GCS_CREDENTIALS_FILE")
	setString(&c.Report.Azure.AccountName, "REPORT_AZURE_ACCOUNT_NAME")
	setString(&c.Report.Azure.AccountKey, "REPORT_AZURE_ACCOUNT_KEY")
	setString(&c.Report.Azure.ServiceURL, "REPORT_AZURE_SERVICE_URL")

	setString(&c.Server.ListenAddr, "LISTEN_ADDR")
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.CORSAllowedOrigins = splitList(v)
	}
	if err := setFloat(&c.Server.RateLimitRPS, "RATE_LIMIT_RPS"); err != nil {
		return err
	}
	if err := setInt(&c.Server.RateLimitBurst, "RATE_LIMIT_BURST"); err != nil {
		return err
	}

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
	return nil
}

// Validate checks that the configuration is internally consistent and
// records non-fatal warnings.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Catalog.Path) == "" {
		errs = append(errs, fmt.Errorf("catalog.path is required"))
	}
	switch c.Storage.Mode {
	case StorageModeAPI:
		if c.Storage.URL == "" {
			errs = append(errs, fmt.Errorf("storage.url is required in api mode"))
		}
		if c.Storage.Token == "" {
			errs = append(errs, fmt.Errorf("storage.token (KBC_TOKEN) is required in api mode"))
		}
	case StorageModeWarehouse:
	default:
		errs = append(errs, fmt.Errorf("storage.mode must be %q or %q, got %q", StorageModeAPI, StorageModeWarehouse, c.Storage.Mode))
	}
	switch c.Warehouse.Driver {
	case "duckdb", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("warehouse.driver must be duckdb or sqlite3, got %q", c.Warehouse.Driver))
	}
	if len(c.Validation.RequiredColumns) == 0 {
		errs = append(errs, fmt.Errorf("validation.required_columns must not be empty"))
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, fmt.Errorf("history.path is required when history is enabled"))
	}
	switch c.Report.Format {
	case "csv", "json":
	default:
		errs = append(errs, fmt.Errorf("report.format must be csv or json, got %q", c.Report.Format))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Warehouse.DSN == "" {
		c.Warnings = append(c.Warnings, "warehouse.dsn not set: using an empty in-memory database")
	}
	if len(c.Server.CORSAllowedOrigins) == 1 && c.Server.CORSAllowedOrigins[0] == "*" {
		c.Warnings = append(c.Warnings, "CORS allows any origin; set CORS_ALLOWED_ORIGINS to restrict it")
	}
	return nil
}

// SlogLevel maps the configured level string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger writing to w in the configured format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.Logging.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// setString overwrites dst with the first non-empty variable among keys.
// Later keys take precedence over earlier ones.
func setString(dst *string, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			*dst = v
		}
	}
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
