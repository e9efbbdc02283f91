package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ylongwang2782/embedded-review/internal/review"
)

// Exit codes reported for commands that never produced a status of their own.
const (
	ExitTimeout  = 124
	ExitNotFound = 127
)

// waitDelay bounds how long Invoke waits for pipes after the process is
// killed.
var waitDelay = 2 * time.Second

const stderrTail = 512

// Stdin payloads.
const (
	InputPrompt = "prompt"
	InputJSON   = "json"
)

// Command is a source backed by an external analysis program. The program
// reads one review input from stdin and writes its findings to stdout.
type Command struct {
	Path string
	Args []string
	// Input selects the stdin payload: InputPrompt (default) writes the
	// rendered system and user prompts, InputJSON the input package.
	Input string
	Env   map[string]string
	Dir   string
}

// Result holds one execution's captured output.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
	ExitCode int
}

// ExitError reports a command that ran but did not exit cleanly.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Invoke runs the command once for in.
func (c *Command) Invoke(ctx context.Context, in review.Input) (string, error) {
	stdin, err := c.payload(in)
	if err != nil {
		return "", err
	}
	res, err := c.Run(ctx, stdin)
	if err == nil {
		return res.Stdout, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if res.ExitCode == ExitNotFound {
		return "", fmt.Errorf("%s: %w", c.Path, err)
	}
	return "", &ExitError{Command: c.Path, ExitCode: res.ExitCode, Stderr: tail(res.Stderr)}
}

func (c *Command) payload(in review.Input) ([]byte, error) {
	switch c.Input {
	case "", InputPrompt:
		system, user := review.BuildPrompt(in)
		return []byte(system + "\n\n" + user), nil
	case InputJSON:
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding input package: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown command input %q", c.Input)
	}
}

// Run executes the command with stdin, capturing output and duration.
// ExitCode is ExitTimeout when ctx's deadline passed and ExitNotFound when
// the program does not exist.
func (c *Command) Run(ctx context.Context, stdin []byte) (Result, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay
	cmd.Stdin = bytes.NewReader(stdin)
	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = ExitTimeout
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		res.ExitCode = ExitNotFound
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = 1
	}
	return res, err
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTail {
		return s
	}
	return "..." + s[len(s)-stderrTail:]
}
