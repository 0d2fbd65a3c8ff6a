package providers

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/exploopio/sbomkit/pkg/core"
	"github.com/exploopio/sbomkit/pkg/errors"
)

// TargetPlaceholder in an argument is replaced by the scanned path.
const TargetPlaceholder = "{target}"

// Command runs an external provider binary.
type Command struct {
	// Binary is the executable name or path.
	Binary string

	// Args are passed to the binary; TargetPlaceholder is substituted. When
	// no argument carries the placeholder the target is appended.
	Args []string

	// Timeout bounds one run; zero means no limit beyond the caller's context.
	Timeout time.Duration

	// OKExitCodes are treated as success (default: 0).
	OKExitCodes []int

	Logger core.Logger
}

// Output is the captured result of one run.
type Output struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// BuildArgs returns the argument list for target.
func (c *Command) BuildArgs(target string) []string {
	args := make([]string, 0, len(c.Args)+1)
	substituted := false
	for _, a := range c.Args {
		if strings.Contains(a, TargetPlaceholder) {
			substituted = true
			a = strings.ReplaceAll(a, TargetPlaceholder, target)
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, target)
	}
	return args
}

// Run executes the binary against target. A missing binary is reported as
// errors.ErrUnavailable; an exit code outside OKExitCodes is an internal
// error carrying stderr.
func (c *Command) Run(ctx context.Context, target string) (*Output, error) {
	const op = "providers.Run"
	if c.Binary == "" {
		return nil, errors.E(errors.KindUnavailable, op, "no binary configured", errors.ErrUnavailable)
	}

	execCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := c.BuildArgs(target)
	core.LoggerOrDefault(c.Logger).Debug("running: %s %s", c.Binary, strings.Join(args, " "))

	cmd := exec.CommandContext(execCtx, c.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	out := &Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
				return nil, errors.E(errors.KindUnavailable, op, c.Binary+" not found", errors.ErrUnavailable)
			}
			return nil, errors.E(errors.KindInternal, op, err)
		}
		out.ExitCode = exitErr.ExitCode()
	}

	if execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return out, errors.E(errors.KindTimeout, op, fmt.Sprintf("%s timed out after %s", c.Binary, c.Timeout))
	}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	if !c.isOKExitCode(out.ExitCode) {
		return out, errors.E(errors.KindInternal, op,
			fmt.Sprintf("%s failed (exit %d): %s", c.Binary, out.ExitCode, strings.TrimSpace(out.Stderr)))
	}
	return out, nil
}

func (c *Command) isOKExitCode(code int) bool {
	if len(c.OKExitCodes) == 0 {
		return code == 0
	}
	return slices.Contains(c.OKExitCodes, code)
}

// IsInstalled runs the binary with --version.
func (c *Command) IsInstalled(ctx context.Context) (bool, string, error) {
	cmd := exec.CommandContext(ctx, c.Binary, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return false, "", fmt.Errorf("%s not found: %w", c.Binary, err)
	}
	version := strings.TrimSpace(string(output))
	if i := strings.IndexByte(version, '\n'); i >= 0 {
		version = version[:i]
	}
	return true, version, nil
}
