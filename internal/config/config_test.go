package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte("name: brokercore\nversion: dev\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.ID == "" {
		t.Error("expected a generated node id")
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("expected default redis addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Redis.PacketIDWindow != 65535 {
		t.Errorf("expected default packet id window, got %d", cfg.Redis.PacketIDWindow)
	}
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := "node:\n  id: node-a\nserver:\n  port: \"1884\"\nredis:\n  addr: redis-a:6379\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.ID != "node-a" {
		t.Errorf("expected explicit node id to survive, got %q", cfg.Node.ID)
	}
	if cfg.Server.Port != "1884" {
		t.Errorf("expected explicit port to survive, got %q", cfg.Server.Port)
	}
}
