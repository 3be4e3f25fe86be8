package run

import (
	"strings"
	"testing"
)

func TestExecRunnerSuccess(t *testing.T) {
	result := ExecRunner{}.Run("echo", "hello")

	if !result.Ok() {
		t.Fatalf("Expected success, got %v", result.Err)
	}
	if result.Output != "hello\n" {
		t.Errorf("Output = %q, want %q", result.Output, "hello\n")
	}
	if result.Error() != nil {
		t.Errorf("Error() = %v, want nil", result.Error())
	}
}

func TestExecRunnerFailureCapturesOutput(t *testing.T) {
	result := ExecRunner{}.Run("sh", "-c", "echo boom >&2; exit 7")

	if result.Ok() {
		t.Fatal("Expected failure")
	}

	err := result.Error()
	if err == nil {
		t.Fatal("Error() = nil for failed command")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Error %q is missing the captured output", err.Error())
	}
	if !strings.Contains(result.Command, "sh -c") {
		t.Errorf("Command = %q", result.Command)
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	result := ExecRunner{}.Run("definitely-not-a-real-binary-xyz")

	if result.Ok() {
		t.Fatal("Expected failure for missing binary")
	}
}
