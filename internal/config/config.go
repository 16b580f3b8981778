package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Defaults applied by ApplyDefaults when a field is left empty.
const (
	DefaultDatabasePath       = "files_data.db"
	DefaultReputationEndpoint = "https://hashlookup.circl.lu"
	DefaultTimeoutSeconds     = 3
	DefaultConcurrency        = 8
	DefaultMaxAttempts        = 3
	DefaultRetryDelayMS       = 50
	DefaultMemoSize           = 4096
	DefaultLowWater           = 128
	DefaultHighWater          = 128
	DefaultFlushSize          = 128
	DefaultLogLevel           = "info"
)

// Config represents the main configuration for fim.
type Config struct {
	HostID     string           `toml:"host_id" validate:"required"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Log        LogConfig        `toml:"log"`
	Scan       ScanConfig       `toml:"scan"`
	Database   DatabaseConfig   `toml:"database"`
	Reputation ReputationConfig `toml:"reputation"`
	Vaults     []VaultConfig    `toml:"vaults" validate:"max=1,dive"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// LogConfig controls the application logger.
type LogConfig struct {
	Level string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// ScanConfig holds the walk defaults used when no --path is given.
type ScanConfig struct {
	Paths      []string `toml:"paths"`
	Exclude    []string `toml:"exclude"`     // absolute paths never walked
	Ignore     []string `toml:"ignore"`      // glob patterns, see fs.IgnoreMatcher
	IgnoreFile string   `toml:"ignore_file"` // optional file with more patterns
	LowWater   int      `toml:"low_water" validate:"gte=0"`
	HighWater  int      `toml:"high_water" validate:"gte=0,gtefield=LowWater"`
	FlushSize  int      `toml:"flush_size" validate:"gte=0"`
}

// DatabaseConfig represents configuration for the snapshot store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type" validate:"omitempty,oneof=sqlite memory"` // "sqlite" (default) or "memory"
	Path string `toml:"path,omitempty"`                                // only used for type=sqlite
}

// ReputationConfig configures the hash lookup client and its cache.
type ReputationConfig struct {
	Endpoint       string `toml:"endpoint" validate:"omitempty,url"`
	CachePath      string `toml:"cache_path"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gte=0"`
	Concurrency    int    `toml:"concurrency" validate:"gte=0"`
	MaxAttempts    int    `toml:"max_attempts" validate:"gte=0"`
	RetryDelayMS   int    `toml:"retry_delay_ms" validate:"gte=0"`
	MemoSize       int    `toml:"memo_size" validate:"gte=0"`
}

// VaultConfig represents configuration for a baseline vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type" validate:"required,oneof=memory s3 filesystem"`
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty" validate:"required_if=Type s3"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty" validate:"required_if=Type filesystem"`
}

// EncryptionConfig holds paths to the age key pair used for baseline encryption.
type EncryptionConfig struct {
	Type           string `toml:"type" validate:"omitempty,oneof=age test none"` // "age" (default), "test" or "none"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(hostID, baseDir string) *Config {
	cfg := &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "fim.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "fim.key"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset tunable with its default.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Path == "" && c.Database.Type == "sqlite" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Scan.LowWater == 0 {
		c.Scan.LowWater = DefaultLowWater
	}
	if c.Scan.HighWater == 0 {
		c.Scan.HighWater = max(DefaultHighWater, c.Scan.LowWater)
	}
	if c.Scan.FlushSize == 0 {
		c.Scan.FlushSize = DefaultFlushSize
	}
	r := &c.Reputation
	if r.Endpoint == "" {
		r.Endpoint = DefaultReputationEndpoint
	}
	if r.CachePath == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			r.CachePath = filepath.Join(dir, "fim", "hashlookup")
		}
	}
	if r.TimeoutSeconds == 0 {
		r.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if r.Concurrency == 0 {
		r.Concurrency = DefaultConcurrency
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	if r.RetryDelayMS == 0 {
		r.RetryDelayMS = DefaultRetryDelayMS
	}
	if r.MemoSize == 0 {
		r.MemoSize = DefaultMemoSize
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of cfg and reports every violation.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			errs := make([]error, len(verrs))
			for i, fe := range verrs {
				errs[i] = fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
			}
			return fmt.Errorf("invalid config: %w", errors.Join(errs...))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path, fills defaults and validates it.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. It fails if the file exists.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
