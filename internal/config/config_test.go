package config

import (
	"testing"
	"time"
)

func TestDefaultConfigPopulatesPaths(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.SocketDir == "" || cfg.CacheDir == "" || cfg.DBPath == "" {
		t.Fatalf("path defaults missing: %+v", cfg)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Fatalf("unexpected default TTL: %s", cfg.CacheTTL)
	}
	if cfg.EstablishDeadline() != 30*time.Second {
		t.Fatalf("unexpected establish deadline: %s", cfg.EstablishDeadline())
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SSHMUX_SOCKET_DIR", "/tmp/sockets")
	t.Setenv("SSHMUX_CACHE_TTL", "2h")
	t.Setenv("SSHMUX_MAX_CONNECTIONS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SocketDir != "/tmp/sockets" {
		t.Fatalf("socket dir override ignored: %s", cfg.SocketDir)
	}
	if cfg.CacheTTL != 2*time.Hour {
		t.Fatalf("ttl override ignored: %s", cfg.CacheTTL)
	}
	if cfg.MaxConnections != 3 {
		t.Fatalf("max connections override ignored: %d", cfg.MaxConnections)
	}
	if cfg.CacheDir == "" || cfg.DBPath == "" {
		t.Fatal("unset paths must still default")
	}
}
