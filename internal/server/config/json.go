package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/andrejs2008/evomint/internal/flagx"
	"github.com/andrejs2008/evomint/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr               string         `json:"endpoint_addr"`
	DatabaseDSN                string         `json:"database_dsn"`
	AdminSecretKey             string         `json:"admin_secret_key"`
	AdminTokenValidityDuration timex.Duration `json:"admin_token_validity_duration"`
	EncryptionSecret           string         `json:"encryption_secret"`
	EncryptionSalt             string         `json:"encryption_salt"`

	LedgerEnabled        bool           `json:"ledger_enabled"`
	LedgerEndpoint       string         `json:"ledger_endpoint"`
	LedgerTimeout        timex.Duration `json:"ledger_timeout"`
	LedgerMaxRetries     int            `json:"ledger_max_retries"`
	LedgerRetryBaseDelay timex.Duration `json:"ledger_retry_base_delay"`
	LedgerRateLimit      float64        `json:"ledger_rate_limit"`
	LedgerRateBurst      int            `json:"ledger_rate_burst"`

	ImageAPIKey      string `json:"image_api_key"`
	ImageAPIEndpoint string `json:"image_api_endpoint"`
	ImagesDir        string `json:"images_dir"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	EvolutionSweepInterval     timex.Duration `json:"evolution_sweep_interval"`
	RetrySweepInterval         timex.Duration `json:"retry_sweep_interval"`
	DefaultEvolutionPeriodDays int64          `json:"default_evolution_period_days"`
	DefaultCombinationLimit    int64          `json:"default_combination_limit"`
	MaxLedgerAttempts          int64          `json:"max_ledger_attempts"`
	QuotaSeedFile              string         `json:"quota_seed_file"`
	SocialFeedEndpoint         string         `json:"social_feed_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is:
//
//	The -c or -config command-line flags.
//	If it is not set, no JSON file is loaded.
//
// The DTO is pre-filled from the current Config, so keys absent from the
// file keep their already-applied values and the file can stay partial.
// If the file cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{
		EndpointAddr:               config.EndpointAddr,
		DatabaseDSN:                config.DatabaseDSN,
		AdminSecretKey:             config.AdminSecretKey,
		AdminTokenValidityDuration: timex.Duration{Duration: config.AdminTokenValidityDuration},
		EncryptionSecret:           config.EncryptionSecret,
		EncryptionSalt:             config.EncryptionSalt,
		LedgerEnabled:              config.LedgerEnabled,
		LedgerEndpoint:             config.LedgerEndpoint,
		LedgerTimeout:              timex.Duration{Duration: config.LedgerTimeout},
		LedgerMaxRetries:           config.LedgerMaxRetries,
		LedgerRetryBaseDelay:       timex.Duration{Duration: config.LedgerRetryBaseDelay},
		LedgerRateLimit:            config.LedgerRateLimit,
		LedgerRateBurst:            config.LedgerRateBurst,
		ImageAPIKey:                config.ImageAPIKey,
		ImageAPIEndpoint:           config.ImageAPIEndpoint,
		ImagesDir:                  config.ImagesDir,
		S3RootUser:                 config.S3RootUser,
		S3RootPassword:             config.S3RootPassword,
		S3Bucket:                   config.S3Bucket,
		S3Region:                   config.S3Region,
		S3BaseEndpoint:             config.S3BaseEndpoint,
		EvolutionSweepInterval:     timex.Duration{Duration: config.EvolutionSweepInterval},
		RetrySweepInterval:         timex.Duration{Duration: config.RetrySweepInterval},
		DefaultEvolutionPeriodDays: config.DefaultEvolutionPeriodDays,
		DefaultCombinationLimit:    config.DefaultCombinationLimit,
		MaxLedgerAttempts:          config.MaxLedgerAttempts,
		QuotaSeedFile:              config.QuotaSeedFile,
		SocialFeedEndpoint:         config.SocialFeedEndpoint,
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.AdminSecretKey = c.AdminSecretKey
	config.AdminTokenValidityDuration = time.Duration(c.AdminTokenValidityDuration.Duration)
	config.EncryptionSecret = c.EncryptionSecret
	config.EncryptionSalt = c.EncryptionSalt
	config.LedgerEnabled = c.LedgerEnabled
	config.LedgerEndpoint = c.LedgerEndpoint
	config.LedgerTimeout = time.Duration(c.LedgerTimeout.Duration)
	config.LedgerMaxRetries = c.LedgerMaxRetries
	config.LedgerRetryBaseDelay = time.Duration(c.LedgerRetryBaseDelay.Duration)
	config.LedgerRateLimit = c.LedgerRateLimit
	config.LedgerRateBurst = c.LedgerRateBurst
	config.ImageAPIKey = c.ImageAPIKey
	config.ImageAPIEndpoint = c.ImageAPIEndpoint
	config.ImagesDir = c.ImagesDir
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.EvolutionSweepInterval = time.Duration(c.EvolutionSweepInterval.Duration)
	config.RetrySweepInterval = time.Duration(c.RetrySweepInterval.Duration)
	config.DefaultEvolutionPeriodDays = c.DefaultEvolutionPeriodDays
	config.DefaultCombinationLimit = c.DefaultCombinationLimit
	config.MaxLedgerAttempts = c.MaxLedgerAttempts
	config.QuotaSeedFile = c.QuotaSeedFile
	config.SocialFeedEndpoint = c.SocialFeedEndpoint
}
