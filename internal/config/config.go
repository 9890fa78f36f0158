// Package config loads service settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

// Signed URLs never live longer than this.
const MaxSignedURLTTL = time.Hour

type Config struct {
	Port      string
	JWTSecret string
	LogLevel  string
	LogFormat string

	Database Database
	Storage  Storage

	TxTimeout time.Duration
}

type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN is the gorm/postgres connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type Storage struct {
	Bucket          string
	PublicBaseURL   string
	SignerEmail     string
	TempPrefix      string
	PermanentPrefix string
	Timeout         time.Duration
	Concurrency     int
	SignedURLTTL    time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("GCS_PUBLIC_BASE_URL", "https://storage.googleapis.com")
	v.SetDefault("ASSET_TEMP_PREFIX", "temp")
	v.SetDefault("ASSET_PERMANENT_PREFIX", "posts")
	v.SetDefault("STORAGE_TIMEOUT", "30s")
	v.SetDefault("STORAGE_CONCURRENCY", 4)
	v.SetDefault("TX_TIMEOUT", "10s")
	v.SetDefault("SIGNED_URL_TTL", "1h")
}

// Load reads the configuration. It does not check that the settings needed
// to serve traffic are present; call Validate for that.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	defaults(v)

	cfg := &Config{
		Port:      v.GetString("PORT"),
		JWTSecret: v.GetString("JWT_SECRET"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
		Database: Database{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Storage: Storage{
			Bucket:          strings.TrimSpace(v.GetString("GCS_BUCKET")),
			PublicBaseURL:   v.GetString("GCS_PUBLIC_BASE_URL"),
			SignerEmail:     strings.TrimSpace(v.GetString("GCS_SIGNER_EMAIL")),
			TempPrefix:      strings.Trim(v.GetString("ASSET_TEMP_PREFIX"), "/"),
			PermanentPrefix: strings.Trim(v.GetString("ASSET_PERMANENT_PREFIX"), "/"),
			Timeout:         v.GetDuration("STORAGE_TIMEOUT"),
			Concurrency:     v.GetInt("STORAGE_CONCURRENCY"),
			SignedURLTTL:    v.GetDuration("SIGNED_URL_TTL"),
		},
		TxTimeout: v.GetDuration("TX_TIMEOUT"),
	}

	if cfg.Storage.SignedURLTTL <= 0 || cfg.Storage.SignedURLTTL > MaxSignedURLTTL {
		cfg.Storage.SignedURLTTL = MaxSignedURLTTL
	}
	if cfg.Storage.Concurrency < 1 {
		cfg.Storage.Concurrency = 1
	}
	if cfg.Storage.Timeout <= 0 {
		return nil, fmt.Errorf("STORAGE_TIMEOUT must be positive")
	}
	if cfg.TxTimeout <= 0 {
		return nil, fmt.Errorf("TX_TIMEOUT must be positive")
	}
	if cfg.Storage.TempPrefix == "" || cfg.Storage.TempPrefix == cfg.Storage.PermanentPrefix {
		return nil, fmt.Errorf("ASSET_TEMP_PREFIX must be non-empty and differ from ASSET_PERMANENT_PREFIX")
	}
	return cfg, nil
}

// Validate checks the settings required by the HTTP server.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("GCS_BUCKET is required"))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	return errors.Join(errs...)
}
