package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Environment
	Environment string `envconfig:"ENV" default:"development"`

	// Station
	AdminName string `envconfig:"ADMIN_NAME" required:"true"`
	SpoolDir  string `envconfig:"SPOOL_DIR" default:"./data/spool"`
	PhotosDir string `envconfig:"PHOTOS_DIR" default:"./data/photos"`

	// Logs and records
	AttendanceLog string `envconfig:"ATTENDANCE_LOG" default:"./data/attendance_log.txt"`
	AnomalyLog    string `envconfig:"ANOMALY_LOG" default:"./data/anomaly_attendance_log.txt"`
	RosterFile    string `envconfig:"ROSTER_FILE" default:"./data/roster.txt"`
	EmbeddingFile string `envconfig:"EMBEDDING_FILE" default:"./data/embeddings.txt"`

	// Provider
	FaceProvider   string  `envconfig:"FACE_PROVIDER" default:"mock"`
	AWSRegion      string  `envconfig:"AWS_REGION" default:"us-east-1"`
	MatchThreshold float64 `envconfig:"MATCH_THRESHOLD" default:"0.8"`

	// Verification policy
	LockoutThreshold int           `envconfig:"LOCKOUT_THRESHOLD" default:"3"`
	PinTimeout       time.Duration `envconfig:"PIN_TIMEOUT" default:"0"`

	// Security
	SessionSecret string `envconfig:"SESSION_SECRET" required:"true"`
	SessionFile   string `envconfig:"SESSION_FILE" default:"./data/admin_session.txt"`

	// Bootstrap identities, comma-separated. Each name NAME must have
	// NAME_PIN and NAME_PHOTO keys alongside it.
	BootstrapIdentities []string `envconfig:"BOOTSTRAP_IDENTITIES"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.LockoutThreshold < 1 {
		return nil, fmt.Errorf("load config: LOCKOUT_THRESHOLD must be at least 1, got %d", cfg.LockoutThreshold)
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// BootstrapKey derives the env key prefix for a bootstrap identity,
// e.g. "ada lovelace" -> "ADA_LOVELACE" (read as ADA_LOVELACE_PIN, ADA_LOVELACE_PHOTO).
func BootstrapKey(name string) string {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}
