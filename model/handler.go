package model

import (
	"context"
	"io"
)

// Handler is an in-process implementation of a shell command. It receives
// the arguments after the command name and writes its output to out.
type Handler func(ctx context.Context, args []string, out io.Writer) error

// ExitRequest is the value carried by the panic raised by Exit.
type ExitRequest struct {
	Status int
}

// Exit asks the running in-process execution to terminate with status.
// Status 0 ends the execution early without error.
func Exit(status int) {
	panic(ExitRequest{Status: status})
}
