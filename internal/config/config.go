package config

import (
	"fmt"
	"os"
	"time"

	"ceph2swift/internal/storage"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration. Credentials are carried
// here, immutably, instead of being read from process-global state during
// the run.
type Config struct {
	Source    SourceConfig `yaml:"source"`
	Dest      DestConfig   `yaml:"destination"`
	Migration Migration    `yaml:"migration"`
	LogLevel  string       `yaml:"log_level"`
}

// SourceConfig describes the S3-compatible source endpoint and bucket.
type SourceConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// DestConfig describes the Swift-compatible destination endpoint and
// container.
type DestConfig struct {
	AuthURL     string `yaml:"auth_url"`
	Username    string `yaml:"username"`
	APIKey      string `yaml:"api_key"`
	Tenant      string `yaml:"tenant"`
	Domain      string `yaml:"domain"`
	Region      string `yaml:"region"`
	Container   string `yaml:"container"`
	AuthVersion int    `yaml:"auth_version"`
}

// Migration holds the pipeline tuning knobs.
type Migration struct {
	Concurrency     int    `yaml:"concurrency"`
	MaxAttempts     int    `yaml:"max_attempts"`
	RetryBackoffMs  int    `yaml:"retry_backoff_ms"`
	MaxBackoffMs    int    `yaml:"max_backoff_ms"`
	TransferTimeout int    `yaml:"transfer_timeout_sec"`
	ListTimeout     int    `yaml:"list_timeout_sec"`
	Exclude         string `yaml:"exclude"`
	Checkpoint      string `yaml:"checkpoint"`
	MetricsAddr     string `yaml:"metrics_addr"`
	DryRun          bool   `yaml:"dry_run"`
	Force           bool   `yaml:"force"`
	VerifyDone      bool   `yaml:"verify_done"`
	SkipExisting    bool   `yaml:"skip_existing"`
	FolderMarkers   bool   `yaml:"folder_markers"`
	ShowProgress    bool   `yaml:"show_progress"`
}

// TransferTimeoutDuration returns the per-object transfer timeout.
func (m Migration) TransferTimeoutDuration() time.Duration {
	return time.Duration(m.TransferTimeout) * time.Second
}

// ListTimeoutDuration returns the per-page listing timeout.
func (m Migration) ListTimeoutDuration() time.Duration {
	return time.Duration(m.ListTimeout) * time.Second
}

// Load builds the configuration from defaults, environment credentials, an
// optional YAML file, and command line flags, in increasing precedence.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Migration: Migration{
			Concurrency:     8,
			MaxAttempts:     3,
			RetryBackoffMs:  500,
			MaxBackoffMs:    30000,
			TransferTimeout: 900,
			ListTimeout:     60,
			Checkpoint:      "./migration.db",
			MetricsAddr:     ":8080",
			SkipExisting:    true,
			FolderMarkers:   true,
			ShowProgress:    true,
		},
	}

	loadFromEnv(cfg)

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromEnv picks up credentials the way the classic tools did, as
// defaults only; file and flags override.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("SRC_ACCESS_KEY"); v != "" {
		cfg.Source.AccessKey = v
	}
	if v := os.Getenv("SRC_SECRET_KEY"); v != "" {
		cfg.Source.SecretKey = v
	}
	if v := os.Getenv("SWIFT_AUTH_URL"); v != "" {
		cfg.Dest.AuthURL = v
	}
	if v := os.Getenv("SWIFT_USER"); v != "" {
		cfg.Dest.Username = v
	}
	if v := os.Getenv("SWIFT_PASSWORD"); v != "" {
		cfg.Dest.APIKey = v
	}
	if v := os.Getenv("SWIFT_TENANT_NAME"); v != "" {
		cfg.Dest.Tenant = v
	}
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("src-endpoint") {
		cfg.Source.Endpoint, _ = flags.GetString("src-endpoint")
	}
	if flags.Changed("src-access-key") {
		cfg.Source.AccessKey, _ = flags.GetString("src-access-key")
	}
	if flags.Changed("src-secret-key") {
		cfg.Source.SecretKey, _ = flags.GetString("src-secret-key")
	}
	if flags.Changed("src-region") {
		cfg.Source.Region, _ = flags.GetString("src-region")
	}
	if flags.Changed("src-bucket") {
		cfg.Source.Bucket, _ = flags.GetString("src-bucket")
	}
	if flags.Changed("src-secure") {
		cfg.Source.Secure, _ = flags.GetBool("src-secure")
	}

	if flags.Changed("dst-auth-url") {
		cfg.Dest.AuthURL, _ = flags.GetString("dst-auth-url")
	}
	if flags.Changed("dst-user") {
		cfg.Dest.Username, _ = flags.GetString("dst-user")
	}
	if flags.Changed("dst-key") {
		cfg.Dest.APIKey, _ = flags.GetString("dst-key")
	}
	if flags.Changed("dst-tenant") {
		cfg.Dest.Tenant, _ = flags.GetString("dst-tenant")
	}
	if flags.Changed("dst-domain") {
		cfg.Dest.Domain, _ = flags.GetString("dst-domain")
	}
	if flags.Changed("dst-region") {
		cfg.Dest.Region, _ = flags.GetString("dst-region")
	}
	if flags.Changed("dst-bucket") {
		cfg.Dest.Container, _ = flags.GetString("dst-bucket")
	}
	if flags.Changed("dst-auth-version") {
		cfg.Dest.AuthVersion, _ = flags.GetInt("dst-auth-version")
	}

	if flags.Changed("concurrency") {
		cfg.Migration.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("max-attempts") {
		cfg.Migration.MaxAttempts, _ = flags.GetInt("max-attempts")
	}
	if flags.Changed("retry-backoff-ms") {
		cfg.Migration.RetryBackoffMs, _ = flags.GetInt("retry-backoff-ms")
	}
	if flags.Changed("max-backoff-ms") {
		cfg.Migration.MaxBackoffMs, _ = flags.GetInt("max-backoff-ms")
	}
	if flags.Changed("transfer-timeout") {
		cfg.Migration.TransferTimeout, _ = flags.GetInt("transfer-timeout")
	}
	if flags.Changed("list-timeout") {
		cfg.Migration.ListTimeout, _ = flags.GetInt("list-timeout")
	}
	if flags.Changed("exclude") {
		cfg.Migration.Exclude, _ = flags.GetString("exclude")
	}
	if flags.Changed("checkpoint") {
		cfg.Migration.Checkpoint, _ = flags.GetString("checkpoint")
	}
	if flags.Changed("metrics-addr") {
		cfg.Migration.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("dry-run") {
		cfg.Migration.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("force") {
		cfg.Migration.Force, _ = flags.GetBool("force")
	}
	if flags.Changed("verify-done") {
		cfg.Migration.VerifyDone, _ = flags.GetBool("verify-done")
	}
	if flags.Changed("skip-existing") {
		cfg.Migration.SkipExisting, _ = flags.GetBool("skip-existing")
	}
	if flags.Changed("folder-markers") {
		cfg.Migration.FolderMarkers, _ = flags.GetBool("folder-markers")
	}
	if flags.Changed("show-progress") {
		cfg.Migration.ShowProgress, _ = flags.GetBool("show-progress")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	return nil
}

// invalid builds a config-classified error so validation failures map to the
// fatal exit code like any other configuration problem.
func invalid(msg string) error {
	return storage.NewError(storage.KindConfig, "config.validate", "", fmt.Errorf("%s", msg))
}

func (c *Config) validate() error {
	if c.Source.Endpoint == "" {
		return invalid("source endpoint is required")
	}
	if c.Source.AccessKey == "" {
		return invalid("source access key is required")
	}
	if c.Source.SecretKey == "" {
		return invalid("source secret key is required")
	}
	if c.Source.Bucket == "" {
		return invalid("source bucket is required")
	}

	if c.Dest.AuthURL == "" {
		return invalid("destination auth url is required")
	}
	if c.Dest.Username == "" {
		return invalid("destination user is required")
	}
	if c.Dest.APIKey == "" {
		return invalid("destination key is required")
	}
	if c.Dest.Container == "" {
		return invalid("destination container is required")
	}

	if c.Migration.Concurrency <= 0 {
		return invalid("concurrency must be positive")
	}
	if c.Migration.MaxAttempts <= 0 {
		return invalid("max attempts must be positive")
	}

	return nil
}
