package executor

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/sokinpui/docexec/model"
)

// Slot runs one in-process execution at a time. Output is buffered, and an
// exit request raised with model.Exit ends the execution: status 0 returns
// the output produced so far, any other status is an execution error.
type Slot struct {
	mu sync.Mutex
}

// Do runs fn while holding the slot. fn writes its output to the buffer
// it receives.
func (s *Slot) Do(command string, fn func(out *bytes.Buffer) error) (output string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out bytes.Buffer
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		output = out.String()
		if req, ok := r.(model.ExitRequest); ok {
			if req.Status == 0 {
				err = nil
				return
			}
			err = &model.ExecutionError{
				Command:    command,
				ExitStatus: req.Status,
				Output:     output,
			}
			return
		}
		err = &model.ExecutionError{
			Command:    command,
			ExitStatus: -1,
			Output:     output,
			Err:        fmt.Errorf("uncaught fault: %v", r),
		}
	}()

	if ferr := fn(&out); ferr != nil {
		var execErr *model.ExecutionError
		if errors.As(ferr, &execErr) {
			return out.String(), ferr
		}
		return out.String(), &model.ExecutionError{
			Command:    command,
			ExitStatus: 1,
			Output:     out.String(),
			Err:        ferr,
		}
	}
	return out.String(), nil
}
