// Package run executes external commands and captures their combined
// output, so that failures of privileged operations (mount, umount) can be
// reported with full diagnostics instead of being silently discarded.
package run

import (
	"fmt"
	"os/exec"
	"strings"
)

// Result captures the outcome of a single external command invocation.
type Result struct {
	Command string
	Output  string
	Err     error
}

// Ok returns true if the command exited successfully.
func (r *Result) Ok() bool {
	return r.Err == nil
}

// Error returns an error describing the failure including the captured
// command output, or nil if the command succeeded.
func (r *Result) Error() error {
	if r.Err == nil {
		return nil
	}

	out := strings.TrimSpace(r.Output)
	if out == "" {
		return fmt.Errorf("%s: %v", r.Command, r.Err)
	}

	return fmt.Errorf("%s: %v: %s", r.Command, r.Err, out)
}

// Runner executes external commands. Tests substitute a recording fake so
// no real mounts are performed.
type Runner interface {
	Run(name string, args ...string) *Result
}

// ExecRunner runs commands on the host using os/exec.
type ExecRunner struct{}

// Run executes the command and captures stdout and stderr together.
func (ExecRunner) Run(name string, args ...string) *Result {
	cmd := exec.Command(name, args...)
	output, err := cmd.CombinedOutput()

	return &Result{
		Command: strings.Join(append([]string{name}, args...), " "),
		Output:  string(output),
		Err:     err,
	}
}
