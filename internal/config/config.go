package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the results service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	DBMaxOpenConns         int
	DBMaxIdleConns         int
	DBConnMaxLifetime      time.Duration
	CORSOrigins            string
	AccessLog              bool
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	InternalToken          string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	ViewCacheTTL           time.Duration
	PDFWorkers             int
	PDFOutputDir           string
	PDFStaleAfter          time.Duration
	PDFSweepSchedule       string
	PDFRateLimit           int
	PDFWatchInterval       time.Duration
	PDFFontPath            string
	GradingEventSubject    string
	PDFJobSubject          string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

func parseDuration(v *viper.Viper, key, fallback string) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		raw = fallback
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}

	return value, nil
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RESULTS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Results API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("http.access_log", true)
	v.SetDefault("cloudinary.folder", "gema/wrong-notes")
	v.SetDefault("cache.ttl", "2m")
	v.SetDefault("pdf.workers", 2)
	v.SetDefault("pdf.output_dir", "./var/pdf")
	v.SetDefault("pdf.stale_after", "15m")
	v.SetDefault("pdf.sweep_schedule", "@every 1m")
	v.SetDefault("pdf.rate_limit", 10)
	v.SetDefault("pdf.watch_interval", "2s")
	v.SetDefault("pdf.font_path", "")
	v.SetDefault("nats.grading_subject", "results.grading.events")
	v.SetDefault("nats.pdf_subject", "results.pdf.jobs")

	cacheTTL, err := parseDuration(v, "cache.ttl", "2m")
	if err != nil {
		return Config{}, err
	}

	staleAfter, err := parseDuration(v, "pdf.stale_after", "15m")
	if err != nil {
		return Config{}, err
	}

	watchInterval, err := parseDuration(v, "pdf.watch_interval", "2s")
	if err != nil {
		return Config{}, err
	}

	connLifetime, err := parseDuration(v, "database.conn_max_lifetime", "30m")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		DBMaxOpenConns:         v.GetInt("database.max_open_conns"),
		DBMaxIdleConns:         v.GetInt("database.max_idle_conns"),
		DBConnMaxLifetime:      connLifetime,
		CORSOrigins:            v.GetString("cors.origins"),
		AccessLog:              v.GetBool("http.access_log"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		InternalToken:          v.GetString("internal.token"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		ViewCacheTTL:           cacheTTL,
		PDFWorkers:             v.GetInt("pdf.workers"),
		PDFOutputDir:           v.GetString("pdf.output_dir"),
		PDFStaleAfter:          staleAfter,
		PDFSweepSchedule:       v.GetString("pdf.sweep_schedule"),
		PDFRateLimit:           v.GetInt("pdf.rate_limit"),
		PDFWatchInterval:       watchInterval,
		PDFFontPath:            v.GetString("pdf.font_path"),
		GradingEventSubject:    v.GetString("nats.grading_subject"),
		PDFJobSubject:          v.GetString("nats.pdf_subject"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.PDFWorkers <= 0 {
		cfg.PDFWorkers = 2
	}

	if cfg.PDFRateLimit <= 0 {
		cfg.PDFRateLimit = 10
	}

	return cfg, nil
}
