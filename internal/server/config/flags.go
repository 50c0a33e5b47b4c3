package config

import (
	"flag"
	"os"
	"time"

	"github.com/andrejs2008/evomint/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   database DSN (SQLite path or postgres:// URL)
//	-s string   admin JWT HMAC secret key
//	-t int      admin token validity, minutes
//	-k string   credential encryption secret
//	-l string   ledger base endpoint (e.g., "http://127.0.0.1:9090")
//	-i string   local images directory
//	-q string   quota seed file (YAML)
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// The remaining fields are tunable only through the JSON file.
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-k", "-l", "-i", "-q", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AdminSecretKey, "s", config.AdminSecretKey, "admin secret key")

	adminTokenValidityDuration := fs.Int("t", int(config.AdminTokenValidityDuration.Minutes()), "admin_token_validity_duration (in minutes)")

	fs.StringVar(&config.EncryptionSecret, "k", config.EncryptionSecret, "credential encryption secret")
	fs.StringVar(&config.LedgerEndpoint, "l", config.LedgerEndpoint, "ledger base endpoint")
	fs.StringVar(&config.ImagesDir, "i", config.ImagesDir, "local images directory")
	fs.StringVar(&config.QuotaSeedFile, "q", config.QuotaSeedFile, "quota seed file")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AdminTokenValidityDuration = time.Duration(*adminTokenValidityDuration) * time.Minute
}
