package vault

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestMemoryVault_PutAndGetBaseline(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	tests := []struct {
		name    string
		host    string
		data    string
		version int64
	}{
		{name: "store and retrieve baseline", host: "host-a", data: "sqlite bytes", version: 3},
		{name: "store empty baseline", host: "host-b", data: "", version: 1},
		{name: "store large baseline", host: "host-c", data: strings.Repeat("x", 10000), version: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := vault.PutBaseline(tt.host, "baseline", strings.NewReader(tt.data), int64(len(tt.data)), tt.version)
			if err != nil {
				t.Fatalf("PutBaseline() error = %v", err)
			}

			var buf bytes.Buffer
			if err := vault.GetBaseline(tt.host, "baseline", &buf); err != nil {
				t.Fatalf("GetBaseline() error = %v", err)
			}
			if got := buf.String(); got != tt.data {
				t.Errorf("GetBaseline() = %d bytes, want %d", len(got), len(tt.data))
			}

			version, err := vault.GetBaselineVersion(tt.host, "baseline")
			if err != nil {
				t.Fatalf("GetBaselineVersion() error = %v", err)
			}
			if version != tt.version {
				t.Errorf("GetBaselineVersion() = %d, want %d", version, tt.version)
			}
		})
	}
}

func TestMemoryVault_Missing(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	var buf bytes.Buffer
	if err := vault.GetBaseline("nobody", "baseline", &buf); err == nil {
		t.Error("GetBaseline() expected error for missing baseline")
	}

	version, err := vault.GetBaselineVersion("nobody", "baseline")
	if err != nil {
		t.Fatalf("GetBaselineVersion() error = %v", err)
	}
	if version != 0 {
		t.Errorf("GetBaselineVersion() = %d, want 0", version)
	}
}

func TestMemoryVault_SizeMismatch(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	err := vault.PutBaseline("host", "baseline", strings.NewReader("short"), 100, 1)
	if err == nil {
		t.Fatal("PutBaseline() expected size mismatch error")
	}

	version, _ := vault.GetBaselineVersion("host", "baseline")
	if version != 0 {
		t.Errorf("failed put left version %d behind", version)
	}
}

func TestMemoryVault_ReplaceBaseline(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	if err := vault.PutBaseline("host", "baseline", strings.NewReader("v1"), 2, 1); err != nil {
		t.Fatal(err)
	}
	if err := vault.PutBaseline("host", "baseline", strings.NewReader("v2!"), 3, 2); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := vault.GetBaseline("host", "baseline", &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "v2!" {
		t.Errorf("GetBaseline() = %q, want %q", buf.String(), "v2!")
	}
}

func TestMemoryVault_Concurrent(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			host := string(rune('a' + i))
			if err := vault.PutBaseline(host, "baseline", strings.NewReader("x"), 1, int64(i)); err != nil {
				t.Errorf("PutBaseline() error = %v", err)
			}
			var buf bytes.Buffer
			if err := vault.GetBaseline(host, "baseline", &buf); err != nil {
				t.Errorf("GetBaseline() error = %v", err)
			}
		}()
	}
	wg.Wait()
}
