package subprocess

import (
	"context"
	"testing"
	"time"
)

func TestRun_Success(t *testing.T) {
	res, err := Run(context.Background(), "echo", []string{"hello"}, FastTimeout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Success {
		t.Fatalf("expected Success, got %v", res.Outcome)
	}
	if res.Stdout != "hello\n" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
}

func TestRun_Failed(t *testing.T) {
	res, err := Run(context.Background(), "sh", []string{"-c", "exit 3"}, FastTimeout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Failed || res.ExitCode != 3 {
		t.Fatalf("expected Failed/3, got %v/%d", res.Outcome, res.ExitCode)
	}
}

func TestRun_NotFound(t *testing.T) {
	res, err := Run(context.Background(), "nanoagent-definitely-missing-binary", nil, FastTimeout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != NotFound {
		t.Fatalf("expected NotFound, got %v", res.Outcome)
	}
}

func TestRun_TimeoutNoOutput(t *testing.T) {
	res, err := Run(context.Background(), "sleep", []string{"2"}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Timeout {
		t.Fatalf("expected Timeout, got %v", res.Outcome)
	}
}

func TestRun_TimeoutWithPartialOutput(t *testing.T) {
	// Emits one line then sleeps well past the timeout -- simulates a
	// streaming tool like `intel_gpu_top -J` that never exits on its own.
	res, err := Run(context.Background(), "sh", []string{"-c", "echo partial; sleep 5"}, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Success {
		t.Fatalf("expected Success with partial output, got %v", res.Outcome)
	}
	if res.Stdout != "partial\n" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
}
