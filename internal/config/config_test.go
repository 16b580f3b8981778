package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		HostID:  "test-host-abc",
		BaseDir: "/home/user/.local/share/fim",
		LogDir:  "/home/user/.local/share/fim/log",
		Log:     LogConfig{Level: "debug"},
		Scan: ScanConfig{
			Paths:     []string{"/etc", "/usr/bin"},
			Exclude:   []string{"/etc/mtab"},
			Ignore:    []string{"*.swp", "/var/cache/*"},
			LowWater:  64,
			HighWater: 256,
		},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: "/backup/vault"},
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/home/user/.local/share/fim/keys/fim.pub",
			PrivateKeyPath: "/home/user/.local/share/fim/keys/fim.key",
		},
		Database:   DatabaseConfig{Type: "sqlite", Path: "/var/lib/fim/files_data.db"},
		Reputation: ReputationConfig{Endpoint: "http://localhost:8080", Concurrency: 4},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.HostID != original.HostID {
		t.Errorf("HostID = %q, want %q", got.HostID, original.HostID)
	}
	if got.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", got.Log.Level, "debug")
	}
	if len(got.Scan.Paths) != 2 || got.Scan.Paths[1] != "/usr/bin" {
		t.Errorf("Scan.Paths = %v, want %v", got.Scan.Paths, original.Scan.Paths)
	}
	if got.Scan.HighWater != 256 {
		t.Errorf("Scan.HighWater = %d, want 256", got.Scan.HighWater)
	}
	if len(got.Vaults) != 1 {
		t.Fatalf("len(Vaults) = %d, want 1", len(got.Vaults))
	}
	if got.Vaults[0].FSVaultRoot != "/backup/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", got.Vaults[0].FSVaultRoot, "/backup/vault")
	}
	if got.Database.Path != original.Database.Path {
		t.Errorf("Database.Path = %q, want %q", got.Database.Path, original.Database.Path)
	}
	if got.Reputation.Endpoint != "http://localhost:8080" {
		t.Errorf("Reputation.Endpoint = %q, want %q", got.Reputation.Endpoint, "http://localhost:8080")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("host-1", "/data/fim")

	if cfg.LogDir != "/data/fim/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/fim/log")
	}
	if cfg.Encryption.PublicKeyPath != "/data/fim/keys/fim.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/fim/keys/fim.pub")
	}
	if cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, DefaultDatabasePath)
	}
	if cfg.Reputation.Concurrency != DefaultConcurrency {
		t.Errorf("Reputation.Concurrency = %d, want %d", cfg.Reputation.Concurrency, DefaultConcurrency)
	}
	if cfg.Scan.HighWater != DefaultHighWater {
		t.Errorf("Scan.HighWater = %d, want %d", cfg.Scan.HighWater, DefaultHighWater)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestApplyDefaults_KeepsHighWaterAboveLowWater(t *testing.T) {
	cfg := &Config{HostID: "h", Scan: ScanConfig{LowWater: 512}}
	cfg.ApplyDefaults()

	if cfg.Scan.HighWater != 512 {
		t.Errorf("Scan.HighWater = %d, want 512", cfg.Scan.HighWater)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing host id",
			mutate:  func(c *Config) { c.HostID = "" },
			wantErr: "HostID",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "Level",
		},
		{
			name:    "high water below low water",
			mutate:  func(c *Config) { c.Scan.LowWater, c.Scan.HighWater = 64, 8 },
			wantErr: "HighWater",
		},
		{
			name:    "unknown database type",
			mutate:  func(c *Config) { c.Database.Type = "postgres" },
			wantErr: "Database.Type",
		},
		{
			name:    "filesystem vault without root",
			mutate:  func(c *Config) { c.Vaults = []VaultConfig{{Type: "filesystem"}} },
			wantErr: "FSVaultRoot",
		},
		{
			name:    "s3 vault without bucket",
			mutate:  func(c *Config) { c.Vaults = []VaultConfig{{Type: "s3"}} },
			wantErr: "S3Bucket",
		},
		{
			name: "more than one vault",
			mutate: func(c *Config) {
				c.Vaults = []VaultConfig{{Type: "memory"}, {Type: "memory"}}
			},
			wantErr: "Vaults",
		},
		{
			name:    "malformed endpoint",
			mutate:  func(c *Config) { c.Reputation.Endpoint = "not a url" },
			wantErr: "Endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("host-1", "/data/fim")
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fim.toml")
		cfg := NewConfig("h1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fim.toml")
		cfg := NewConfig("h1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})

	t.Run("refuses invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fim.toml")
		cfg := NewConfig("", dir)

		if err := Init(path, cfg); err == nil {
			t.Fatal("Init() expected error for missing host id")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("config file should not have been written")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fim.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.HostID != "read-test" {
			t.Errorf("HostID = %q, want %q", got.HostID, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("fills defaults for sparse file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fim.toml")
		if err := os.WriteFile(path, []byte("host_id = \"sparse\"\n"), 0644); err != nil {
			t.Fatal(err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Reputation.Endpoint != DefaultReputationEndpoint {
			t.Errorf("Reputation.Endpoint = %q, want %q", got.Reputation.Endpoint, DefaultReputationEndpoint)
		}
		if got.Scan.FlushSize != DefaultFlushSize {
			t.Errorf("Scan.FlushSize = %d, want %d", got.Scan.FlushSize, DefaultFlushSize)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/fim.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
