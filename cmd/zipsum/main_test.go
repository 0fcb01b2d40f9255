package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zipsum/zipsum/internal/config"
)

func TestSetupLogger(t *testing.T) {
	// Save original globals.
	origLevel := logLevel
	origFormat := logFormat
	origFile := logFile
	t.Cleanup(func() {
		logLevel = origLevel
		logFormat = origFormat
		logFile = origFile
	})

	for _, tc := range []struct {
		name      string
		logLevel  string
		logFormat string
	}{
		{name: "debug/text", logLevel: "debug", logFormat: "text"},
		{name: "info/json", logLevel: "info", logFormat: "json"},
		{name: "warn/text", logLevel: "warn", logFormat: "text"},
		{name: "error/text", logLevel: "error", logFormat: "text"},
		{name: "unknown/text", logLevel: "unknown", logFormat: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logLevel = tc.logLevel
			logFormat = tc.logFormat
			logFile = ""

			logger, err := setupLogger()
			if err != nil {
				t.Fatalf("setupLogger returned error: %v", err)
			}
			if logger == nil {
				t.Fatal("setupLogger returned nil")
			}
		})
	}

	t.Run("with log file", func(t *testing.T) {
		logLevel = "info"
		logFormat = "text"
		logFile = filepath.Join(t.TempDir(), "run.log")

		logger, err := setupLogger()
		if err != nil {
			t.Fatalf("setupLogger returned error: %v", err)
		}

		logger.Info("hello")
		data, err := os.ReadFile(logFile)
		if err != nil {
			t.Fatalf("log file not written: %v", err)
		}
		if !strings.Contains(string(data), "hello") {
			t.Errorf("log file missing entry: %q", data)
		}
	})

	t.Run("unwritable log file", func(t *testing.T) {
		logLevel = "info"
		logFormat = "text"
		logFile = filepath.Join(t.TempDir(), "missing-dir", "run.log")

		if _, err := setupLogger(); err == nil {
			t.Fatal("expected error for unwritable log file")
		}
	})
}

func TestLoadConfig_WithExplicitPath(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	configContent := []byte(`archive:
  chunk_size: "8MiB"
  symlinks: "follow"
output:
  name: "{source}-backup.zip"
`)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, configContent, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfgFile = cfgPath
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg, err := loadConfig(logger)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Archive.ChunkSize != "8MiB" {
		t.Errorf("expected chunk size 8MiB, got %s", cfg.Archive.ChunkSize)
	}
	if cfg.Archive.Symlinks != config.SymlinkFollow {
		t.Errorf("expected symlink policy follow, got %s", cfg.Archive.Symlinks)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgFile = filepath.Join(t.TempDir(), "nonexistent.yaml")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	_, err := loadConfig(logger)
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })
	cfgFile = ""

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg, err := loadConfig(logger)
	if err != nil {
		t.Fatalf("loadConfig without a config file should fall back to defaults: %v", err)
	}
	if cfg.Archive.ChunkSize != config.DefaultChunkSize {
		t.Errorf("expected default chunk size, got %s", cfg.Archive.ChunkSize)
	}
}

func TestResolveChunkSize(t *testing.T) {
	origFlag := chunkSizeFlag
	t.Cleanup(func() { chunkSizeFlag = origFlag })

	cfg := config.Default()

	chunkSizeFlag = ""
	n, err := resolveChunkSize(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if n != 64<<20 {
		t.Errorf("config chunk size = %d, want %d", n, 64<<20)
	}

	chunkSizeFlag = "8KiB"
	n, err = resolveChunkSize(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if n != 8<<10 {
		t.Errorf("flag chunk size = %d, want %d", n, 8<<10)
	}

	chunkSizeFlag = "lots"
	if _, err := resolveChunkSize(cfg); err == nil {
		t.Error("expected error for invalid chunk size flag")
	}
}

func TestResolveOutput(t *testing.T) {
	origDir := outputDir
	origName := nameTemplate
	t.Cleanup(func() {
		outputDir = origDir
		nameTemplate = origName
	})

	cfg := config.Default()

	t.Run("defaults land next to the source", func(t *testing.T) {
		outputDir = ""
		nameTemplate = ""

		archivePath, manifestPath, err := resolveOutput(cfg, filepath.Join("some", "data"))
		if err != nil {
			t.Fatal(err)
		}

		wd, err := os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(wd, "some", "data.zip"); archivePath != want {
			t.Errorf("archive path = %s, want %s", archivePath, want)
		}
		if want := filepath.Join(wd, "some", "data.hash"); manifestPath != want {
			t.Errorf("manifest path = %s, want %s", manifestPath, want)
		}
	})

	t.Run("flags override config", func(t *testing.T) {
		outputDir = "/backups"
		nameTemplate = "snap-{source}.zip"

		archivePath, manifestPath, err := resolveOutput(cfg, "data")
		if err != nil {
			t.Fatal(err)
		}
		if archivePath != filepath.Join("/backups", "snap-data.zip") {
			t.Errorf("archive path = %s", archivePath)
		}
		if manifestPath != filepath.Join("/backups", "snap-data.hash") {
			t.Errorf("manifest path = %s", manifestPath)
		}
	})

	t.Run("date placeholder", func(t *testing.T) {
		outputDir = ""
		nameTemplate = "{source}-{date}.zip"

		archivePath, _, err := resolveOutput(cfg, "data")
		if err != nil {
			t.Fatal(err)
		}
		name := filepath.Base(archivePath)
		if !strings.HasPrefix(name, "data-") || !strings.HasSuffix(name, ".zip") {
			t.Errorf("archive name = %s, want data-<date>.zip", name)
		}
		if strings.Contains(name, "{date}") {
			t.Errorf("date placeholder not rendered: %s", name)
		}
	})

	t.Run("unknown placeholder left as-is", func(t *testing.T) {
		outputDir = ""
		nameTemplate = "{nope}.zip"

		archivePath, _, err := resolveOutput(cfg, "data")
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Base(archivePath) != "{nope}.zip" {
			t.Errorf("archive name = %s, want {nope}.zip", filepath.Base(archivePath))
		}
	})
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := setupSignalHandler()
	if ctx == nil {
		t.Fatal("setupSignalHandler returned nil context")
	}

	cancel()

	<-ctx.Done()
	if err := ctx.Err(); err == nil {
		t.Fatal("expected context error after cancel, got nil")
	}
}

func TestVersionCmd(t *testing.T) {
	t.Helper()
	// versionCmd.Run simply prints version info; should not panic.
	versionCmd.Run(versionCmd, []string{})
}
