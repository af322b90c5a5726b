package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresNodeHostname(t *testing.T) {
	t.Setenv("NODE_HOSTNAME", "")
	if _, err := Load(""); err == nil {
		t.Error("Load without NODE_HOSTNAME should fail")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("NODE_HOSTNAME", "a.example")
	t.Setenv("FEDERATION_INSECURE_MODE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NodeHostname != "a.example" {
		t.Errorf("NodeHostname = %q", cfg.NodeHostname)
	}
	if !cfg.InsecureFederation {
		t.Error("FEDERATION_INSECURE_MODE not picked up")
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("default listen addr = %q", cfg.ListenAddr)
	}
	if cfg.Federation.MaxDeliveryAttempts != 8 {
		t.Errorf("default max delivery attempts = %d", cfg.Federation.MaxDeliveryAttempts)
	}
	if cfg.Federation.PairingTokenTTL != 15*time.Minute {
		t.Errorf("default pairing token ttl = %v", cfg.Federation.PairingTokenTTL)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("NODE_HOSTNAME", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := []byte(`
nodehostname: b.example
listenaddr: ":9090"
federation:
  maxdeliveryattempts: 3
  retrybasedelay: 5s
database:
  user: nodeweave
  host: localhost
`)
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NodeHostname != "b.example" {
		t.Errorf("NodeHostname = %q", cfg.NodeHostname)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Federation.MaxDeliveryAttempts != 3 {
		t.Errorf("MaxDeliveryAttempts = %d", cfg.Federation.MaxDeliveryAttempts)
	}
	if cfg.Federation.RetryBaseDelay != 5*time.Second {
		t.Errorf("RetryBaseDelay = %v", cfg.Federation.RetryBaseDelay)
	}
	if cfg.Database.User != "nodeweave" {
		t.Errorf("Database.User = %q", cfg.Database.User)
	}
}
