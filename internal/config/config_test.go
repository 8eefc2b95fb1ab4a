package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9090"
assistant:
  topK: 4
  disableAutoNarrow: true
databases:
  milvus:
    address: "milvus:19530"
    dim: 1536
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("Expected address :9090, but got %s", cfg.Server.Address)
	}
	if cfg.Assistant.TopK != 4 {
		t.Errorf("Expected topK 4, but got %d", cfg.Assistant.TopK)
	}
	if !cfg.Assistant.DisableAutoNarrow {
		t.Error("Expected disableAutoNarrow to be set")
	}
	if cfg.Databases.Milvus.Dim != 1536 {
		t.Errorf("Expected dim 1536, but got %d", cfg.Databases.Milvus.Dim)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("Expected default address :8080, but got %s", cfg.Server.Address)
	}
	if cfg.Databases.Milvus.CollectionName != "policy_chunks" {
		t.Errorf("Expected default collection name, but got %s", cfg.Databases.Milvus.CollectionName)
	}
	if cfg.Databases.Milvus.Dim != 768 {
		t.Errorf("Expected default dim 768, but got %d", cfg.Databases.Milvus.Dim)
	}
	if cfg.Assistant.TopK != 10 || cfg.Assistant.FallbackLimit != 5 {
		t.Errorf("Expected default retrieval knobs, but got topK=%d fallbackLimit=%d",
			cfg.Assistant.TopK, cfg.Assistant.FallbackLimit)
	}
	if cfg.Assistant.ChunkSize != 1000 {
		t.Errorf("Expected default chunk size 1000, but got %d", cfg.Assistant.ChunkSize)
	}
	if cfg.Assistant.DisableAutoNarrow {
		t.Error("Expected auto-narrowing enabled by default")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected an error for a missing config file")
	}
}
