//go:build e2e_largefile

package harness

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Diagnostics represents collected diagnostic information
type Diagnostics struct {
	CollectedAt time.Time
	Items       []DiagItem
}

// DiagItem represents a single diagnostic command output
type DiagItem struct {
	Name     string
	Cmd      []string
	ExitCode int
	Output   string
}

// CollectDiagnostics gathers filesystem state around the work dir
func (s *Suite) CollectDiagnostics(ctx context.Context) (*Diagnostics, error) {
	diag := &Diagnostics{
		CollectedAt: time.Now(),
		Items:       []DiagItem{},
	}

	commands := []struct {
		name string
		cmd  []string
	}{
		{"ls-workdir", []string{"ls", "-la", s.WorkDir}},
		{"du-workdir", []string{"du", "-d", "1", "-h", s.WorkDir}},
		{"df-workdir", []string{"df", "-h", s.WorkDir}},
	}

	for _, item := range commands {
		output, exitCode := runLocal(ctx, item.cmd)
		diag.Items = append(diag.Items, DiagItem{
			Name:     item.name,
			Cmd:      item.cmd,
			ExitCode: exitCode,
			Output:   output,
		})
	}

	return diag, nil
}

// runLocal executes a diagnostic command on the host
func runLocal(ctx context.Context, cmd []string) (string, int) {
	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	output, err := c.CombinedOutput()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	return string(output), exitCode
}

// DumpDiagnostics collects and logs diagnostic information
func (s *Suite) DumpDiagnostics(ctx context.Context) {
	s.Logf("=== Collecting diagnostics ===")

	diag, err := s.CollectDiagnostics(ctx)
	if err != nil {
		s.Logf("Failed to collect diagnostics: %v", err)
		return
	}

	for _, item := range diag.Items {
		s.Logf("--- %s (exit %d) ---", item.Name, item.ExitCode)
		s.Logf("Command: %s", strings.Join(item.Cmd, " "))
		if item.Output != "" {
			s.Logf("%s", item.Output)
		} else {
			s.Logf("(no output)")
		}
	}

	s.Logf("=== End diagnostics ===")
}
