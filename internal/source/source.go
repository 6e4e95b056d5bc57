package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
)

// Origin names where a document was read from.
type Origin string

const (
	OriginStdin     Origin = "stdin"
	OriginClipboard Origin = "clipboard"
)

// Provider reads a single document when no document paths are given.
type Provider struct {
	stdin *os.File
}

// New creates a Provider reading from stdin when it is piped.
func New(stdin *os.File) *Provider {
	return &Provider{stdin: stdin}
}

// piped reports whether stdin is a pipe or a file rather than a terminal.
func (p *Provider) piped() bool {
	if p.stdin == nil {
		return false
	}
	stat, err := p.stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// GetContent retrieves content from stdin (if piped) or the clipboard. Empty
// content is returned as an empty string without error.
func (p *Provider) GetContent() (string, Origin, error) {
	if p.piped() {
		content, err := io.ReadAll(p.stdin)
		if err != nil {
			return "", OriginStdin, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), OriginStdin, nil
	}

	content, err := clipboard.ReadAll()
	if err != nil {
		return "", OriginClipboard, fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return "", OriginClipboard, nil
	}
	return content, OriginClipboard, nil
}

// Copy puts content on the clipboard.
func Copy(content string) error {
	if err := clipboard.WriteAll(content); err != nil {
		return fmt.Errorf("failed to write to clipboard: %w", err)
	}
	return nil
}
