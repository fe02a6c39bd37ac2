package config

import (
	"flag"
	"os"
	"time"

	"github.com/blobvault/blobvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-l string   public base URL for public objects
//	-m int      max file size, bytes
//	-q int      default tenant quota, bytes
//	-w int      reservation window, minutes
//	-k int      cleanup batch size
//	-n int      batch delete concurrency
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - The reservation window is accepted as an integer in minutes and then
//     converted to a time.Duration.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-u", "-p", "-b", "-g", "-e", "-l", "-m", "-q", "-w", "-k", "-n"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.PublicBaseURL, "l", config.PublicBaseURL, "public base URL")

	fs.Int64Var(&config.MaxFileSizeBytes, "m", config.MaxFileSizeBytes, "max file size (bytes)")
	fs.Int64Var(&config.DefaultQuotaBytes, "q", config.DefaultQuotaBytes, "default tenant quota (bytes)")

	reservationWindow := fs.Int("w", int(config.ReservationWindow.Minutes()), "reservation window (in minutes)")

	fs.IntVar(&config.CleanupBatchSize, "k", config.CleanupBatchSize, "cleanup batch size")
	fs.IntVar(&config.DeleteConcurrency, "n", config.DeleteConcurrency, "batch delete concurrency")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ReservationWindow = time.Duration(*reservationWindow) * time.Minute
}
