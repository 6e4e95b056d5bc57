//go:build windows

package executor

import "os/exec"

// setProcessGroup keeps the default cancellation, which kills the process.
func setProcessGroup(cmd *exec.Cmd) {}
