//go:build !linux

package logs

import (
	"errors"
	"log/slog"
)

func newJournalHandler(slog.Level) (slog.Handler, error) {
	return nil, errors.New("the systemd journal is only available on linux")
}
