package deploy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeScript creates an executable shell script in a temp directory.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	if err := os.Chmod(path, 0755); err != nil {
		t.Fatalf("Failed to chmod script: %v", err)
	}
	return path
}

func TestRunner_Success(t *testing.T) {
	script := writeScript(t, "echo deploying; exit 0")
	runner := NewRunner([]string{script}, "", 10*time.Second, nil, testLogger())

	result, err := runner.Run(context.Background(), Request{Ref: "refs/heads/main"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if !strings.Contains(string(result.Output), "deploying") {
		t.Errorf("Output = %q, want script output", result.Output)
	}
	if result.RunID == "" {
		t.Error("Expected a run ID")
	}
}

func TestRunner_NonZeroExit(t *testing.T) {
	script := writeScript(t, "echo broken >&2; exit 7")
	runner := NewRunner([]string{script}, "", 10*time.Second, nil, testLogger())

	result, err := runner.Run(context.Background(), Request{})
	if err == nil {
		t.Fatal("Run() should fail for non-zero exit")
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %T %v, want *ExitError", err, err)
	}
	if exitErr.Code != 7 || err.Error() != "exit status 7" {
		t.Errorf("error = %v, want exit status 7", err)
	}
	if result == nil || result.ExitCode != 7 {
		t.Errorf("result = %+v, want exit code 7", result)
	}
	if !strings.Contains(string(result.Output), "broken") {
		t.Errorf("Output = %q, want stderr captured", result.Output)
	}
}

func TestRunner_LaunchFailure(t *testing.T) {
	runner := NewRunner([]string{"/nonexistent/deploy.sh"}, "", 10*time.Second, nil, testLogger())

	result, err := runner.Run(context.Background(), Request{})

	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("error = %T %v, want *LaunchError", err, err)
	}
	if !strings.HasPrefix(err.Error(), "failed to start: ") {
		t.Errorf("error = %q, want 'failed to start' prefix", err.Error())
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should wrap os.ErrNotExist, got %v", err)
	}
	if result == nil || result.ExitCode != -1 {
		t.Errorf("result = %+v, want exit code -1", result)
	}
}

func TestRunner_Timeout(t *testing.T) {
	script := writeScript(t, "exec sleep 10")
	runner := NewRunner([]string{script}, "", 200*time.Millisecond, nil, testLogger())

	start := time.Now()
	_, err := runner.Run(context.Background(), Request{})

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %T %v, want *TimeoutError", err, err)
	}
	if err.Error() != "timed out after 200ms" {
		t.Errorf("error = %q", err.Error())
	}
	if elapsed := time.Since(start); elapsed > 8*time.Second {
		t.Errorf("Run() took %s, the process should have been killed", elapsed)
	}
}

func TestRunner_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker"), []byte("here"), 0644); err != nil {
		t.Fatal(err)
	}
	script := writeScript(t, "cat marker")
	runner := NewRunner([]string{script}, dir, 10*time.Second, nil, testLogger())

	result, err := runner.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(result.Output) != "here" {
		t.Errorf("Output = %q, want marker content", result.Output)
	}
}

func TestRunner_Environment(t *testing.T) {
	script := writeScript(t, `echo "ref=$DEPLOY_REF commit=$DEPLOY_COMMIT delivery=$DEPLOY_DELIVERY run=$DEPLOY_RUN_ID secret=$DEPLOYHOOK_SECRET keep=$KEEP_ME"`)
	runner := NewRunner([]string{script}, "", 10*time.Second, []string{"DEPLOYHOOK_SECRET"}, testLogger())
	runner.environ = func() []string {
		return []string{"PATH=/usr/bin:/bin", "DEPLOYHOOK_SECRET=abc123", "KEEP_ME=yes"}
	}

	result, err := runner.Run(context.Background(), Request{
		Ref:        "refs/heads/main",
		Commit:     "0123abcd",
		DeliveryID: "delivery-1",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := strings.TrimSpace(string(result.Output))
	for _, want := range []string{"ref=refs/heads/main", "commit=0123abcd", "delivery=delivery-1", "run=" + result.RunID, "keep=yes"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output %q missing %q", out, want)
		}
	}
	if !strings.Contains(out, "secret= ") {
		t.Errorf("secret leaked into the deploy environment: %q", out)
	}
}

func TestRunner_Arguments(t *testing.T) {
	script := writeScript(t, `printf '%s|' "$@"`)
	runner := NewRunner([]string{script, "--env", "prod eu"}, "", 10*time.Second, nil, testLogger())

	result, err := runner.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(result.Output) != "--env|prod eu|" {
		t.Errorf("Output = %q, want arguments passed verbatim", result.Output)
	}
}
