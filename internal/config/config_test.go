package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRejectsMissingFields(t *testing.T) {
	c := Default()
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing listen_addr/target_addr")
	}
	c.ListenAddr = "0.0.0.0:19132"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing target_addr")
	}
	c.TargetAddr = "127.0.0.1:19133"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadMTU(t *testing.T) {
	c := Default()
	c.ListenAddr = "0.0.0.0:19132"
	c.TargetAddr = "127.0.0.1:19133"
	c.InitialMTU = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for zero mtu")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"listen_addr":"0.0.0.0:19132","target_addr":"127.0.0.1:19133","initial_mtu":1400}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ListenAddr != "0.0.0.0:19132" || c.TargetAddr != "127.0.0.1:19133" || c.InitialMTU != 1400 {
		t.Fatalf("unexpected config: %+v", c)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/config.json"); err == nil {
		t.Fatal("expected error loading nonexistent config")
	}
}

func TestLoadRoundTripPreservesLiveReloadableFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"listen_addr":"0.0.0.0:19132","target_addr":"127.0.0.1:19133","initial_mtu":1400,"api_addr":":9090","log_level":"debug"}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.APIAddr != ":9090" || c.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", c)
	}
}
