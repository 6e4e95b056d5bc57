package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sokinpui/docexec/model"
)

// Echo prints its arguments separated by spaces.
func Echo(_ context.Context, args []string, out io.Writer) error {
	_, err := fmt.Fprintln(out, strings.Join(args, " "))
	return err
}

// cat prints the content of files. Relative paths are resolved against the
// search directories.
func (d *Dispatcher) cat(_ context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("cat: missing file operand")
	}
	for _, arg := range args {
		path := arg
		if !filepath.IsAbs(path) {
			resolved, err := d.resolver.Lookup(arg)
			if err != nil {
				return fmt.Errorf("cat: %w", err)
			}
			path = resolved
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cat: %w", err)
		}
		if _, err := fmt.Fprintln(out, string(data)); err != nil {
			return err
		}
	}
	return nil
}

// runHandler runs a handler in the slot. The timeout is delivered through
// ctx, so a handler stops early only when it watches ctx.
func (d *Dispatcher) runHandler(ctx context.Context, name, handler string, args []string) (string, error) {
	h := d.handlers[handler]
	d.logger.DebugContext(ctx, "running handler", "command", name, "handler", handler, "args", args)

	runCtx, cancel := d.withTimeout(ctx)
	defer cancel()
	out, err := d.slot.Do(name, func(out *bytes.Buffer) error {
		return h(runCtx, args, out)
	})
	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return out, &model.ExecutionError{
			Command:    name,
			ExitStatus: -1,
			Output:     out,
			Err:        fmt.Errorf("timed out after %s", d.cfg.Timeout),
		}
	}
	return out, err
}
