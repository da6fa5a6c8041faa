package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MAX_WORKERS", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("BUILTIN_CONVERTERS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxWorkers != 4 || cfg.HTTPAddr() != ":8000" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.BuiltinConverters) != 3 {
		t.Fatalf("builtin converters = %v", cfg.BuiltinConverters)
	}
	if cfg.RedisEnabled() || cfg.S3Enabled() {
		t.Fatal("optional integrations enabled by default")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MAX_WORKERS", "8")
	t.Setenv("QUEUE_SIZE", "not-a-number")
	t.Setenv("FFMPEG_CANDIDATES", " /opt/ffmpeg , ,/usr/local/bin/ffmpeg")
	t.Setenv("RATE_LIMIT_RPS", "0.5")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("BLOB_RETENTION_MIN", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxWorkers != 8 || cfg.QueueSize != 64 {
		t.Fatalf("workers=%d queue=%d", cfg.MaxWorkers, cfg.QueueSize)
	}
	if len(cfg.FFmpegCandidates) != 2 || cfg.FFmpegCandidates[0] != "/opt/ffmpeg" {
		t.Fatalf("candidates = %v", cfg.FFmpegCandidates)
	}
	if cfg.RateLimitRPS != 0.5 || !cfg.S3UsePathStyle {
		t.Fatalf("rps=%v path style=%v", cfg.RateLimitRPS, cfg.S3UsePathStyle)
	}
	if cfg.BlobRetention() != 15*time.Minute {
		t.Fatalf("retention = %s", cfg.BlobRetention())
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convertbot.yaml")
	yml := "http_port: 9090\nredis_addr: localhost:6379\nbuiltin_converters:\n  - image\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_PORT", "7000")
	t.Setenv("MAX_WORKERS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPPort != 9090 {
		t.Fatalf("file did not override env: %d", cfg.HTTPPort)
	}
	if cfg.MaxWorkers != 3 {
		t.Fatalf("env value lost: %d", cfg.MaxWorkers)
	}
	if !cfg.RedisEnabled() || len(cfg.BuiltinConverters) != 1 {
		t.Fatalf("overlay incomplete: %+v", cfg)
	}
}

func TestLoadYAMLErrors(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("http_port: [1, 2"), 0o644)
	t.Setenv("CONFIG_FILE", bad)
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}
