//go:build e2e_largefile

package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/zipsum/zipsum/internal/config"
	"github.com/zipsum/zipsum/internal/testutil"
)

const (
	binaryName = "zipsum"

	// defaultFileSize is past the Zip64 threshold so the container
	// format's large-file path is exercised. The work dir needs about
	// twice this much free disk.
	defaultFileSize  = int64(5) << 30
	defaultChunkSize = "64MiB"
	defaultTimeout   = 30 * time.Minute
)

// Suite orchestrates E2E tests that push a large file through the
// archive and verify pipeline
type Suite struct {
	// immutable config
	Name        string
	FileSize    int64
	ChunkSize   string
	Timeout     time.Duration
	KeepWorkDir bool

	// runtime state
	WorkDir string
	BinPath string

	// optional logger hook
	Logf func(format string, args ...any)

	// test reference
	t *testing.T
}

// SuiteOption configures a Suite
type SuiteOption func(*Suite)

// WithFileSize sets the size of the generated source file
func WithFileSize(n int64) SuiteOption {
	return func(s *Suite) { s.FileSize = n }
}

// WithChunkSize sets the chunk size passed to the binary
func WithChunkSize(size string) SuiteOption {
	return func(s *Suite) { s.ChunkSize = size }
}

// WithTimeout sets a custom suite timeout
func WithTimeout(d time.Duration) SuiteOption {
	return func(s *Suite) { s.Timeout = d }
}

// WithKeepWorkDir sets whether to keep the work dir on failure
func WithKeepWorkDir(v bool) SuiteOption {
	return func(s *Suite) { s.KeepWorkDir = v }
}

// WithLogf sets a custom logger
func WithLogf(logf func(string, ...any)) SuiteOption {
	return func(s *Suite) { s.Logf = logf }
}

// NewSuite creates a new E2E test suite
func NewSuite(name string, t *testing.T, opts ...SuiteOption) *Suite {
	s := &Suite{
		Name:        name,
		FileSize:    defaultFileSize,
		ChunkSize:   defaultChunkSize,
		Timeout:     defaultTimeout,
		KeepWorkDir: os.Getenv("E2E_KEEP_WORKDIR") == "1",
		t:           t,
		Logf:        t.Logf,
	}

	for _, opt := range opts {
		opt(s)
	}

	// Check for env overrides
	if size := os.Getenv("E2E_FILE_SIZE"); size != "" {
		if n, err := config.ParseSize(size); err == nil {
			s.FileSize = n
		}
	}
	if timeout := os.Getenv("E2E_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			s.Timeout = d
		}
	}

	return s
}

// Provision builds the binary and lays out the source tree. The large
// source file is created sparse, so only the archive output consumes
// real disk.
func (s *Suite) Provision(ctx context.Context) error {
	projectRoot, err := testutil.FindProjectRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	workDir, err := os.MkdirTemp("", "zipsum-e2e-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	s.WorkDir = workDir
	s.BinPath = filepath.Join(workDir, binaryName)

	s.Logf("Building %s from %s", binaryName, projectRoot)
	build := exec.CommandContext(ctx, "go", "build", "-o", s.BinPath, "./cmd/"+binaryName)
	build.Dir = projectRoot
	if out, err := build.CombinedOutput(); err != nil {
		return fmt.Errorf("go build: %w\n%s", err, out)
	}

	// Source tree: one sparse large file plus a small companion
	src := filepath.Join(workDir, "data")
	if err := os.MkdirAll(src, 0755); err != nil {
		return fmt.Errorf("create source dir: %w", err)
	}

	f, err := os.Create(filepath.Join(src, "big.bin"))
	if err != nil {
		return fmt.Errorf("create large file: %w", err)
	}
	if err := f.Truncate(s.FileSize); err != nil {
		_ = f.Close()
		return fmt.Errorf("grow large file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close large file: %w", err)
	}

	if err := os.WriteFile(filepath.Join(src, "small.txt"), []byte("hello"), 0644); err != nil {
		return fmt.Errorf("write companion file: %w", err)
	}

	s.Logf("Provisioned %s (source file %d bytes)", workDir, s.FileSize)
	return nil
}

// Cleanup removes the work dir unless it should be kept for inspection
func (s *Suite) Cleanup() {
	if s.WorkDir == "" {
		return
	}

	if s.KeepWorkDir && s.t.Failed() {
		s.Logf("Test failed and E2E_KEEP_WORKDIR=1, keeping work dir %s", s.WorkDir)
		return
	}

	s.Logf("Removing work dir %s", s.WorkDir)
	if err := os.RemoveAll(s.WorkDir); err != nil {
		s.Logf("Warning: failed to remove work dir: %v", err)
	}
}

// ExecResult represents the result of a command execution
type ExecResult struct {
	Cmd      []string
	ExitCode int
	Stdout   string
	Stderr   string
}

// Run executes the built binary with the given arguments in the work dir
func (s *Suite) Run(ctx context.Context, args ...string) (ExecResult, error) {
	if s.BinPath == "" {
		return ExecResult{}, fmt.Errorf("suite not provisioned")
	}

	cmd := exec.CommandContext(ctx, s.BinPath, args...)
	cmd.Dir = s.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return ExecResult{}, fmt.Errorf("exec failed: %w", err)
		}
	}

	return ExecResult{
		Cmd:      append([]string{binaryName}, args...),
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// MustRun executes the binary and fails the test on non-zero exit
func (s *Suite) MustRun(ctx context.Context, args ...string) ExecResult {
	s.t.Helper()

	res, err := s.Run(ctx, args...)
	if err != nil {
		s.t.Fatalf("exec failed: %v", err)
	}
	if res.ExitCode != 0 {
		s.DumpDiagnostics(ctx)
		s.t.Fatalf("command failed with exit %d: %v\nstdout: %s\nstderr: %s",
			res.ExitCode, res.Cmd, res.Stdout, res.Stderr)
	}
	return res
}

// Path returns an absolute path inside the work dir
func (s *Suite) Path(rel string) string {
	return filepath.Join(s.WorkDir, rel)
}
