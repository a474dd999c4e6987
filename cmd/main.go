package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ceph2swift/internal/app"
	"ceph2swift/internal/config"
	"ceph2swift/internal/logger"
	"ceph2swift/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Exit codes: 0 all objects done, 1 run finished with terminal failures (or
// was interrupted), 2 fatal configuration or auth error.
const (
	exitOK       = 0
	exitDegraded = 1
	exitFatal    = 2
)

var (
	configFile string
	exitCode   int
)

var rootCmd = &cobra.Command{
	Use:   "ceph2swift",
	Short: "Migrate a bucket from an S3-compatible gateway to a Swift endpoint",
	Long:  `A concurrent, resumable bucket migration tool from Ceph/S3 to OpenStack Swift with checkpointing, retry, and integrity verification.`,
	RunE:  runMigration,

	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")

	// Source (S3-compatible) flags
	rootCmd.Flags().String("src-endpoint", "", "S3 endpoint host:port")
	rootCmd.Flags().String("src-access-key", "", "S3 access key")
	rootCmd.Flags().String("src-secret-key", "", "S3 secret key")
	rootCmd.Flags().String("src-region", "", "S3 region")
	rootCmd.Flags().String("src-bucket", "", "Source bucket name (required)")
	rootCmd.Flags().Bool("src-secure", true, "Use HTTPS for source")

	// Destination (Swift) flags
	rootCmd.Flags().String("dst-auth-url", "", "Swift auth URL")
	rootCmd.Flags().String("dst-user", "", "Swift user")
	rootCmd.Flags().String("dst-key", "", "Swift password or API key")
	rootCmd.Flags().String("dst-tenant", "", "Swift tenant/project name")
	rootCmd.Flags().String("dst-domain", "", "Swift domain (v3 auth)")
	rootCmd.Flags().String("dst-region", "", "Swift region")
	rootCmd.Flags().String("dst-bucket", "", "Destination container name (required)")
	rootCmd.Flags().Int("dst-auth-version", 0, "Swift auth version (0 = detect)")

	// Migration flags
	rootCmd.Flags().Int("concurrency", 8, "Number of concurrent workers")
	rootCmd.Flags().Int("max-attempts", 3, "Attempts per object before terminal failure")
	rootCmd.Flags().Int("retry-backoff-ms", 500, "Initial retry backoff in milliseconds")
	rootCmd.Flags().Int("max-backoff-ms", 30000, "Maximum retry backoff in milliseconds")
	rootCmd.Flags().Int("transfer-timeout", 900, "Per-object transfer timeout in seconds")
	rootCmd.Flags().Int("list-timeout", 60, "Per-page listing timeout in seconds")
	rootCmd.Flags().String("exclude", "", "Skip keys containing this substring")
	rootCmd.Flags().String("checkpoint", "./migration.db", "Progress database file")
	rootCmd.Flags().String("metrics-addr", ":8080", "Prometheus metrics listen address (empty to disable)")
	rootCmd.Flags().Bool("dry-run", false, "List and plan without transferring")
	rootCmd.Flags().Bool("force", false, "Ignore existing done records and re-transfer everything")
	rootCmd.Flags().Bool("verify-done", false, "Re-verify destination content of done records instead of skipping")
	rootCmd.Flags().Bool("skip-existing", true, "Skip objects already present in destination with matching checksum")
	rootCmd.Flags().Bool("folder-markers", true, "Create application/directory marker objects for key path prefixes")
	rootCmd.Flags().Bool("show-progress", true, "Log periodic progress")
	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")
}

func runMigration(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		exitCode = exitFatal
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		exitCode = exitFatal
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, stopping admission; in-flight transfers will settle")
		cancel()
	}()

	runner, err := app.New(ctx, cfg, log)
	if err != nil {
		exitCode = exitFatal
		return err
	}
	defer func() {
		if closeErr := runner.Close(); closeErr != nil {
			log.Error("Error closing runner", zap.Error(closeErr))
		}
	}()

	summary, err := runner.Run(ctx)
	switch {
	case err != nil && storage.IsFatal(err):
		exitCode = exitFatal
		return err
	case err != nil && errors.Is(err, context.Canceled):
		exitCode = exitDegraded
		log.Warn("Run interrupted; progress recorded, re-run to resume")
		return nil
	case err != nil:
		exitCode = exitDegraded
		return err
	case summary.Degraded():
		exitCode = exitDegraded
		return nil
	default:
		exitCode = exitOK
		return nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if exitCode == exitOK {
			exitCode = exitDegraded
		}
	}
	os.Exit(exitCode)
}
