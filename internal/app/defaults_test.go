package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("FIM_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("FIM_HOME", "/custom/fim")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}
		want := Defaults{ConfigPath: "/custom/config.toml", BaseDir: "/custom/fim", LogDir: "/custom/fim/log"}
		if d != want {
			t.Errorf("GetDefaults() = %+v, want %+v", d, want)
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("FIM_CONFIG_PATH", "")
		t.Setenv("FIM_HOME", "")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()
		want := Defaults{
			ConfigPath: filepath.Join(homeDir, ".config", "fim.toml"),
			BaseDir:    filepath.Join(homeDir, ".local", "share", "fim"),
			LogDir:     filepath.Join(homeDir, ".local", "share", "fim", "log"),
		}
		if d != want {
			t.Errorf("GetDefaults() = %+v, want %+v", d, want)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	d := Defaults{ConfigPath: filepath.Join(dir, "fim.toml"), BaseDir: dir, LogDir: filepath.Join(dir, "log")}

	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadConfig(d)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.HostID == "" {
			t.Error("HostID is empty")
		}
		if cfg.LogDir != d.LogDir {
			t.Errorf("LogDir = %q, want %q", cfg.LogDir, d.LogDir)
		}
		if cfg.Database.Path != "files_data.db" {
			t.Errorf("Database.Path = %q", cfg.Database.Path)
		}
	})

	t.Run("invalid file is an error", func(t *testing.T) {
		if err := os.WriteFile(d.ConfigPath, []byte("host_id = \"h\"\n[log]\nlevel = \"loud\"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(d); err == nil {
			t.Error("LoadConfig() error = nil, want validation error")
		}
	})
}
