package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	HTTPPort   int    `yaml:"http_port"`
	DBPath     string `yaml:"db_path"`
	MaxWorkers int    `yaml:"max_workers"`
	QueueSize  int    `yaml:"queue_size"`
	TempDir    string `yaml:"temp_dir"`

	BlobDir              string `yaml:"blob_dir"`
	BlobRetentionMin     int    `yaml:"blob_retention_min"`
	ResultRetentionMin   int    `yaml:"result_retention_min"`
	HistoryRetentionDays int    `yaml:"history_retention_days"`
	JanitorIntervalSec   int    `yaml:"janitor_interval_sec"`
	MaxEvents            int    `yaml:"max_events"`

	FFmpegPath        string   `yaml:"ffmpeg_path"`
	FFmpegCandidates  []string `yaml:"ffmpeg_candidates"`
	WatchFFmpeg       bool     `yaml:"watch_ffmpeg"`
	BuiltinConverters []string `yaml:"builtin_converters"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`

	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`

	MD5ChunkSize int `yaml:"md5_chunk_size"`
}

// Load reads the environment, then applies the YAML file named by
// CONFIG_FILE on top of it. Keys present in the file win.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTPPort = getEnvInt("HTTP_PORT", 8000)
	cfg.DBPath = getEnv("DB_PATH", "/data/convertbot.db")
	cfg.MaxWorkers = getEnvInt("MAX_WORKERS", 4)
	cfg.QueueSize = getEnvInt("QUEUE_SIZE", 64)
	cfg.TempDir = getEnv("TEMP_DIR", os.TempDir())
	cfg.BlobDir = getEnv("BLOB_DIR", "/data/blobs")
	cfg.BlobRetentionMin = getEnvInt("BLOB_RETENTION_MIN", 60)
	cfg.ResultRetentionMin = getEnvInt("RESULT_RETENTION_MIN", 30)
	cfg.HistoryRetentionDays = getEnvInt("HISTORY_RETENTION_DAYS", 30)
	cfg.JanitorIntervalSec = getEnvInt("JANITOR_INTERVAL_SEC", 300)
	cfg.MaxEvents = getEnvInt("MAX_EVENTS", 1000)
	cfg.FFmpegPath = getEnv("FFMPEG_PATH", "")
	cfg.FFmpegCandidates = splitAndTrim(os.Getenv("FFMPEG_CANDIDATES"))
	cfg.WatchFFmpeg = getEnvBool("WATCH_FFMPEG", true)
	cfg.BuiltinConverters = splitAndTrim(getEnv("BUILTIN_CONVERTERS", "image,document,media"))
	cfg.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", 5)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RedisChannel = getEnv("REDIS_CHANNEL", "convertbot:events")
	cfg.S3Bucket = getEnv("S3_BUCKET", "")
	cfg.S3Region = getEnv("S3_REGION", "us-east-1")
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", "")
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", "")
	cfg.S3UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", false)
	cfg.MD5ChunkSize = getEnvInt("MD5_CHUNK_SIZE", 64*1024)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) overlay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) HTTPAddr() string { return fmt.Sprintf(":%d", c.HTTPPort) }

func (c *Config) BlobRetention() time.Duration {
	return time.Duration(c.BlobRetentionMin) * time.Minute
}

func (c *Config) ResultRetention() time.Duration {
	return time.Duration(c.ResultRetentionMin) * time.Minute
}

func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

func (c *Config) JanitorInterval() time.Duration {
	if c.JanitorIntervalSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.JanitorIntervalSec) * time.Second
}

// RedisEnabled reports whether events are also published to Redis.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// S3Enabled reports whether users can opt in to cloud copies.
func (c *Config) S3Enabled() bool { return c.S3Bucket != "" }

func splitAndTrim(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
