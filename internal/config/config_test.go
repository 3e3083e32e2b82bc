package config

import (
	"os"
	"testing"
	"time"
)

func unsetCatalogEnv() {
	for _, k := range []string{
		"CATALOG_SEARCH_STORE_DRIVER",
		"CATALOG_SEARCH_INDEX_SPACE",
		"CATALOG_SEARCH_INDEX_COOLDOWN",
		"CATALOG_SEARCH_VOYAGE_API_KEY",
		"CATALOG_SEARCH_LABEL_LOCALE",
		"VOYAGE_API_KEY",
	} {
		_ = os.Unsetenv(k)
	}
}

func TestConfigLoad_Defaults(t *testing.T) {
	unsetCatalogEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.StoreDriver != "mongo" || cfg.MongoDatabase != "mercasmart" || cfg.MongoCollection != "products" {
		t.Fatalf("unexpected store defaults: %+v", cfg)
	}
	if cfg.TextBatchSize != 100 || cfg.ImageBatchSize != 10 || cfg.IndexCooldown != 400*time.Millisecond {
		t.Fatalf("unexpected indexer defaults: %d %d %s", cfg.TextBatchSize, cfg.ImageBatchSize, cfg.IndexCooldown)
	}
	if cfg.ProviderTimeout != 10*time.Second || cfg.ProviderMaxRetries != 3 {
		t.Fatalf("unexpected provider defaults: %s %d", cfg.ProviderTimeout, cfg.ProviderMaxRetries)
	}
	if cfg.VoyageTextModel != "voyage-3-large" || cfg.VoyageTextDimension != 1024 {
		t.Fatalf("unexpected voyage defaults: %s %d", cfg.VoyageTextModel, cfg.VoyageTextDimension)
	}
	if cfg.HTTPPort != 9080 {
		t.Fatalf("unexpected port %d", cfg.HTTPPort)
	}
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	unsetCatalogEnv()
	_ = os.Setenv("CATALOG_SEARCH_STORE_DRIVER", "sqlite")
	_ = os.Setenv("CATALOG_SEARCH_INDEX_COOLDOWN", "1s")
	defer unsetCatalogEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.StoreDriver != "sqlite" {
		t.Fatalf("store driver override failed, got %s", cfg.StoreDriver)
	}
	if cfg.IndexCooldown != time.Second {
		t.Fatalf("cooldown override failed, got %s", cfg.IndexCooldown)
	}
}

func TestConfigLoad_BareCredentialFallback(t *testing.T) {
	unsetCatalogEnv()
	_ = os.Setenv("VOYAGE_API_KEY", "pa-test")
	defer unsetCatalogEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.VoyageAPIKey != "pa-test" {
		t.Fatalf("expected bare VOYAGE_API_KEY to be read, got %q", cfg.VoyageAPIKey)
	}
}

func TestConfigLoad_RejectsUnknownDriver(t *testing.T) {
	unsetCatalogEnv()
	_ = os.Setenv("CATALOG_SEARCH_STORE_DRIVER", "cassandra")
	defer unsetCatalogEnv()

	if _, err := New(); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestResolveDefaults_RejectsUnknownSpace(t *testing.T) {
	cfg := NewForTesting()
	cfg.IndexSpace = "audio-voyage"
	if err := cfg.ResolveDefaults(); err == nil {
		t.Fatalf("expected error for unsupported index space")
	}
}

func TestNewForTesting_IsValid(t *testing.T) {
	cfg := NewForTesting()
	if err := cfg.ResolveDefaults(); err != nil {
		t.Fatalf("testing config invalid: %v", err)
	}
	if !cfg.IsTesting() || cfg.IsProduction() {
		t.Fatalf("unexpected environment %s", cfg.Environment)
	}
	if cfg.GetHTTPAddr() != ":9080" {
		t.Fatalf("unexpected addr %s", cfg.GetHTTPAddr())
	}
}
