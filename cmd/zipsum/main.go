package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/valyala/fasttemplate"

	"github.com/zipsum/zipsum/internal/archive"
	"github.com/zipsum/zipsum/internal/config"
	"github.com/zipsum/zipsum/internal/manifest"
)

// defaultConfigFile is picked up from the working directory when no
// --config flag is given. It is optional.
const defaultConfigFile = "zipsum.yaml"

// progressInterval throttles progress log lines on long runs.
const progressInterval = 2 * time.Second

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	logFile   string

	// Archive command flags
	outputDir     string
	nameTemplate  string
	chunkSizeFlag string
	symlinksFlag  string
	excludeFlags  []string
	verifyAfter   bool
	dryRun        bool

	// Verify command flags
	jsonOut bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zipsum",
	Short: "Archive directories with verifiable content digests",
	Long: `zipsum packs a directory tree into an uncompressed zip container and writes
a sidecar manifest holding a SHA-256 digest for every stored file.

The manifest makes the archive verifiable end to end at any later time
without extracting it.`,
	SilenceUsage: true,
}

var archiveCmd = &cobra.Command{
	Use:   "archive <source-dir>",
	Short: "Pack a directory into a zip archive plus digest manifest",
	Long: `Archive walks the source directory, stores every regular file uncompressed
in a zip container, and records each file's SHA-256 digest in a manifest
written next to the archive.

Unreadable files are skipped with a warning and reported in the summary;
the run only fails when the container itself cannot be written.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <archive> [manifest]",
	Short: "Verify an archive against its digest manifest",
	Long: `Verify re-computes the SHA-256 digest of every file stored in the archive
and compares the results against the manifest. When the manifest argument
is omitted, the sidecar next to the archive is used.

The exit code is non-zero if any entry mismatches, is missing from the
archive, or is missing from the manifest.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runVerify,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("zipsum %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./zipsum.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also append logs to this file")

	// Archive command flags
	archiveCmd.Flags().StringVar(&outputDir, "output", "", "directory to write the archive into (default next to the source)")
	archiveCmd.Flags().StringVar(&nameTemplate, "name", "", "archive name template, placeholders {source}, {date}, {time}")
	archiveCmd.Flags().StringVar(&chunkSizeFlag, "chunk-size", "", "streaming chunk size, e.g. 8MiB (default from config)")
	archiveCmd.Flags().StringVar(&symlinksFlag, "symlinks", "", "symlink policy: skip or follow (default from config)")
	archiveCmd.Flags().StringArrayVar(&excludeFlags, "exclude", nil, "glob pattern to exclude, repeatable (overrides config)")
	archiveCmd.Flags().BoolVar(&verifyAfter, "verify", false, "verify the archive after writing it")
	archiveCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be archived without writing anything")

	// Verify command flags
	verifyCmd.Flags().StringVar(&chunkSizeFlag, "chunk-size", "", "streaming chunk size, e.g. 8MiB (default from config)")
	verifyCmd.Flags().BoolVar(&jsonOut, "json", false, "print the verification report as JSON on stdout")

	// Add commands
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger, err := setupLogger()
	if err != nil {
		return err
	}

	// Load configuration
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	source := args[0]

	// Resolve settings: flags override config
	chunkBytes, err := resolveChunkSize(cfg)
	if err != nil {
		return err
	}

	policy := cfg.Archive.Symlinks
	if symlinksFlag != "" {
		policy = config.SymlinkPolicy(symlinksFlag)
	}
	switch policy {
	case config.SymlinkSkip, config.SymlinkFollow:
		// valid
	default:
		return fmt.Errorf("invalid symlink policy: %s (must be skip or follow)", policy)
	}

	exclude := cfg.Archive.Exclude
	if len(excludeFlags) > 0 {
		exclude = excludeFlags
	}

	archivePath, manifestPath, err := resolveOutput(cfg, source)
	if err != nil {
		return err
	}

	archiver := archive.NewArchiver(archive.Options{
		Source:         source,
		Archive:        archivePath,
		Manifest:       manifestPath,
		ChunkSize:      chunkBytes,
		FollowSymlinks: policy == config.SymlinkFollow,
		Exclude:        exclude,
		DryRun:         dryRun,
	}, logger, archive.LogProgress(logger, progressInterval))

	summary, err := archiver.Run(ctx)
	if err != nil {
		logger.Error("archive failed", "error", err)
		return err
	}

	if summary.DryRun {
		return nil
	}

	if verifyAfter || cfg.Archive.VerifyAfterWrite {
		verifier := archive.NewVerifier(archive.VerifyOptions{
			Archive:   archivePath,
			Manifest:  manifestPath,
			ChunkSize: chunkBytes,
		}, logger, archive.LogProgress(logger, progressInterval))

		report, err := verifier.Run(ctx)
		if err != nil {
			logger.Error("verification failed", "error", err)
			return err
		}
		if !report.Ok() {
			return fmt.Errorf("verification failed for %s", archivePath)
		}
		logger.Info("archive verified", "archive", archivePath)
	}

	if n := len(summary.Skipped); n > 0 {
		return fmt.Errorf("archive completed with %d skipped file(s)", n)
	}

	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger, err := setupLogger()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	archivePath := args[0]
	manifestPath := manifest.DefaultPath(archivePath)
	if len(args) == 2 {
		manifestPath = args[1]
	}

	chunkBytes, err := resolveChunkSize(cfg)
	if err != nil {
		return err
	}

	verifier := archive.NewVerifier(archive.VerifyOptions{
		Archive:   archivePath,
		Manifest:  manifestPath,
		ChunkSize: chunkBytes,
	}, logger, archive.LogProgress(logger, progressInterval))

	report, err := verifier.Run(ctx)
	if err != nil {
		logger.Error("verify failed", "error", err)
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Printf("%s: %d matched, %d mismatched, %d missing from archive, %d missing from manifest\n",
			report.Archive, report.Matches, report.Mismatches,
			report.MissingFromArchive, report.MissingFromManifest)
	}

	if !report.Ok() {
		return fmt.Errorf("verification failed for %s", archivePath)
	}

	return nil
}

// resolveChunkSize picks the chunk size from the flag or the config and
// parses it into bytes.
func resolveChunkSize(cfg *config.Config) (int64, error) {
	size := cfg.Archive.ChunkSize
	if chunkSizeFlag != "" {
		size = chunkSizeFlag
	}

	n, err := config.ParseSize(size)
	if err != nil {
		return 0, fmt.Errorf("invalid chunk size: %w", err)
	}
	return n, nil
}

// resolveOutput renders the archive name template and returns the
// archive path and its sidecar manifest path.
func resolveOutput(cfg *config.Config, source string) (string, string, error) {
	dir := cfg.Output.Dir
	if outputDir != "" {
		dir = outputDir
	}

	tpl := cfg.Output.Name
	if nameTemplate != "" {
		tpl = nameTemplate
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve source path: %w", err)
	}

	// No configured directory places the outputs next to the source
	if dir == "" {
		dir = filepath.Dir(abs)
	}

	now := time.Now()
	name := fasttemplate.ExecuteStringStd(tpl, "{", "}", map[string]interface{}{
		"source": filepath.Base(abs),
		"date":   now.Format("20060102"),
		"time":   now.Format("150405"),
	})

	archivePath := filepath.Join(dir, name)
	return archivePath, manifest.DefaultPath(archivePath), nil
}

func setupLogger() (*slog.Logger, error) {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Logs go to stderr so stdout stays clean for report output
	var out io.Writer = os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), nil
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// An explicit config file must exist
	if cfgFile != "" {
		logger.Info("loading configuration", "path", cfgFile)
		return config.Load(cfgFile)
	}

	// The default location is optional
	if _, err := os.Stat(defaultConfigFile); err == nil {
		logger.Info("loading configuration", "path", defaultConfigFile)
		return config.Load(defaultConfigFile)
	}

	logger.Debug("no config file found, using defaults")
	return config.Default(), nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
