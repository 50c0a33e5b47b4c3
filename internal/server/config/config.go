// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the evomint server.
//
// Fields:
//   - EndpointAddr: bind address for the public HTTP endpoint.
//   - DatabaseDSN: SQLite path/URI, or a postgres:// DSN (pgx).
//   - AdminSecretKey: HMAC secret for signing admin JWTs (HS256). Do not use test defaults in prod.
//   - AdminTokenValidityDuration: admin token lifetime.
//   - EncryptionSecret / EncryptionSalt: key material for sealing platform tokens.
//   - Ledger*: remote ledger integration; LedgerEnabled false runs local-only.
//   - ImageAPIKey / ImageAPIEndpoint: text-to-image rendering backend.
//   - ImagesDir: local artifact directory, used when S3 is not configured.
//   - S3RootUser / S3RootPassword: credentials for the S3-compatible backend.
//   - S3Bucket / S3Region / S3BaseEndpoint: object storage settings.
//   - EvolutionSweepInterval / RetrySweepInterval: background pass cadence, non-positive disables.
//   - DefaultEvolutionPeriodDays: evolution interval for items that do not set one.
//   - DefaultCombinationLimit: quota for combinations absent from the seed file.
//   - MaxLedgerAttempts: remote attempts before an item is abandoned.
//   - QuotaSeedFile: YAML file of per-combination limits applied at boot.
//   - SocialFeedEndpoint: X-compatible API for evolution signals, empty disables.
type Config struct {
	EndpointAddr               string
	DatabaseDSN                string
	AdminSecretKey             string
	AdminTokenValidityDuration time.Duration
	EncryptionSecret           string
	EncryptionSalt             string

	LedgerEnabled        bool
	LedgerEndpoint       string
	LedgerTimeout        time.Duration
	LedgerMaxRetries     int
	LedgerRetryBaseDelay time.Duration
	LedgerRateLimit      float64
	LedgerRateBurst      int

	ImageAPIKey      string
	ImageAPIEndpoint string
	ImagesDir        string

	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string

	EvolutionSweepInterval     time.Duration
	RetrySweepInterval         time.Duration
	DefaultEvolutionPeriodDays int64
	DefaultCombinationLimit    int64
	MaxLedgerAttempts          int64
	QuotaSeedFile              string
	SocialFeedEndpoint         string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":8080"
	c.DatabaseDSN = "evomint.db"
	c.AdminSecretKey = "secretKey"
	c.AdminTokenValidityDuration = 15 * time.Minute
	c.EncryptionSecret = "encryptionSecret"
	c.EncryptionSalt = "encryptionSalt"

	c.LedgerEnabled = true
	c.LedgerEndpoint = "http://127.0.0.1:9090"
	c.LedgerTimeout = 30 * time.Second
	c.LedgerMaxRetries = 3
	c.LedgerRetryBaseDelay = 1 * time.Second
	c.LedgerRateLimit = 10
	c.LedgerRateBurst = 1

	c.ImageAPIEndpoint = "https://api.stability.ai"
	c.ImagesDir = "images"

	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "artifacts"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = ""

	c.EvolutionSweepInterval = 1 * time.Hour
	c.RetrySweepInterval = 5 * time.Minute
	c.DefaultEvolutionPeriodDays = 7
	c.DefaultCombinationLimit = 100
	c.MaxLedgerAttempts = 5
	c.QuotaSeedFile = ""
	c.SocialFeedEndpoint = ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
