package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sokinpui/docexec/model"
)

// waitDelay bounds how long output pipes are drained after a kill.
const waitDelay = 2 * time.Second

// runProcess invokes argv and returns its stdout, plus stderr when captured.
func (d *Dispatcher) runProcess(ctx context.Context, argv []string, env []string, dir string) (string, error) {
	command := strings.Join(argv, " ")
	runCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if d.cfg.CaptureStderr {
		cmd.Stderr = &stdout
	} else {
		cmd.Stderr = &stderr
	}

	d.logger.DebugContext(ctx, "running process", "command", command, "dir", dir)
	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	output := stdout.String() + stderr.String()
	switch {
	case ctx.Err() != nil:
		return stdout.String(), &model.ExecutionError{Command: command, ExitStatus: -1, Output: output, Err: ctx.Err()}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return stdout.String(), &model.ExecutionError{
			Command:    command,
			ExitStatus: -1,
			Output:     output,
			Err:        fmt.Errorf("timed out after %s", d.cfg.Timeout),
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), &model.ExecutionError{Command: command, ExitStatus: exitErr.ExitCode(), Output: output}
	}
	return stdout.String(), &model.ExecutionError{Command: command, ExitStatus: -1, Output: output, Err: err}
}
