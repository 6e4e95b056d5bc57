package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/sokinpui/docexec/model"
)

const exitStatusKey = "docexec.exit"

var errExit = errors.New("exit")

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// runStarlark executes the snippet in process. print writes to the captured
// output, exit(status) ends the execution and getenv reads the unit
// environment first.
func (d *Dispatcher) runStarlark(ctx context.Context, unit *model.Unit) (string, error) {
	lookup := lookupEnv(unit.Env)
	return d.slot.Do("starlark", func(out *bytes.Buffer) error {
		runCtx, cancel := d.withTimeout(ctx)
		defer cancel()

		thread := &starlark.Thread{
			Name: fmt.Sprintf("unit-%d", unit.Index+1),
			Print: func(_ *starlark.Thread, msg string) {
				out.WriteString(msg)
				out.WriteByte('\n')
			},
		}
		stop := context.AfterFunc(runCtx, func() {
			thread.Cancel(runCtx.Err().Error())
		})
		defer stop()

		predeclared := starlark.StringDict{
			"exit":   starlark.NewBuiltin("exit", exitBuiltin),
			"getenv": starlark.NewBuiltin("getenv", getenvBuiltin(lookup)),
		}
		_, err := starlark.ExecFileOptions(fileOptions, thread, "unit.star", unit.CodeText(), predeclared)

		if status, ok := thread.Local(exitStatusKey).(int); ok {
			model.Exit(status)
		}
		if err == nil {
			return nil
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return &model.ExecutionError{
				Command:    "starlark",
				ExitStatus: -1,
				Output:     out.String(),
				Err:        fmt.Errorf("timed out after %s", d.cfg.Timeout),
			}
		}
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return &model.ExecutionError{
				Command:    "starlark",
				ExitStatus: 1,
				Output:     out.String() + evalErr.Backtrace(),
				Err:        errors.New(evalErr.Msg),
			}
		}
		return err
	})
}

func exitBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	status := 0
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &status); err != nil {
		return nil, err
	}
	thread.SetLocal(exitStatusKey, status)
	return nil, errExit
}

func getenvBuiltin(lookup func(string) (string, bool)) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		var def starlark.Value = starlark.None
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
			return nil, err
		}
		if value, ok := lookup(name); ok {
			return starlark.String(value), nil
		}
		return def, nil
	}
}
