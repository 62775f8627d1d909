package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Pipeline  PipelineConfig
	Retention RetentionConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port     string
	LogLevel string
}

type StorageConfig struct {
	BaseDir   string
	UploadDir string
	OutputDir string
}

type PipelineConfig struct {
	SpleeterBin   string
	BasicPitchBin string
}

type RetentionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	UploadPerHour int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("storage.base_dir", defaultBaseDir())
	viper.SetDefault("pipeline.spleeter_bin", "spleeter")
	viper.SetDefault("pipeline.basic_pitch_bin", "basic-pitch")
	viper.SetDefault("retention.ttl", time.Hour)
	viper.SetDefault("retention.sweep_interval", time.Hour)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.upload_per_hour", 50)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	baseDir := viper.GetString("storage.base_dir")

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Storage: StorageConfig{
			BaseDir:   baseDir,
			UploadDir: filepath.Join(baseDir, "uploads"),
			OutputDir: filepath.Join(baseDir, "outputs"),
		},
		Pipeline: PipelineConfig{
			SpleeterBin:   viper.GetString("pipeline.spleeter_bin"),
			BasicPitchBin: viper.GetString("pipeline.basic_pitch_bin"),
		},
		Retention: RetentionConfig{
			TTL:           viper.GetDuration("retention.ttl"),
			SweepInterval: viper.GetDuration("retention.sweep_interval"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			UploadPerHour: viper.GetInt("ratelimit.upload_per_hour"),
		},
	}

	return cfg, nil
}

// defaultBaseDir prefers the persistent volume mount when present.
func defaultBaseDir() string {
	if info, err := os.Stat("/data"); err == nil && info.IsDir() {
		return "/data/drumextract"
	}
	return filepath.Join(os.TempDir(), "drumextract")
}
