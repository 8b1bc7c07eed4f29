package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
)

// Request is written as JSON to the interpreter's stdin.
type Request struct {
	Code  string         `json:"code"`
	Entry string         `json:"entry"`
	Args  map[string]any `json:"args"`
}

// Response is read as JSON from the interpreter's stdout. A non-empty
// Error marks a failed call.
type Response struct {
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Process runs each call in a fresh interpreter process, for example a
// small Python runner that execs Code and calls Entry(**Args).
type Process struct {
	Command string
	Args    []string
	Env     []string
	// Timeout bounds one call; zero means only ctx bounds it.
	Timeout time.Duration
}

var _ core.Sandbox = (*Process)(nil)

// NewProcess creates a process sandbox for command.
func NewProcess(command string, args ...string) *Process {
	return &Process{Command: command, Args: args, Timeout: 30 * time.Second}
}

func (p *Process) Run(ctx context.Context, code, entry string, args map[string]any) (any, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	input, err := json.Marshal(Request{Code: code, Entry: entry, Args: args})
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to marshal sandbox request"),
			errors.Fields{"entry": entry})
	}

	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	if p.Env != nil {
		cmd.Env = p.Env
	}
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ExecutionFailed, "sandbox process failed"),
			errors.Fields{"entry": entry, "stderr": truncate(stderr.String(), 500)})
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ExecutionFailed, "failed to decode sandbox response"),
			errors.Fields{"entry": entry, "stdout": truncate(stdout.String(), 200)})
	}
	if resp.Error != "" {
		return nil, errors.WithFields(
			errors.New(errors.ExecutionFailed, resp.Error),
			errors.Fields{"entry": entry})
	}
	return resp.Result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
