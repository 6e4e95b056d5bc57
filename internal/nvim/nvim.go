package nvim

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/neovim/go-client/nvim"
)

const (
	undoDir = "~/.local/state/nvim/undo/"
)

// Manager writes rewritten documents through a Neovim instance so that open
// buffers and their undo history follow the change.
type Manager struct {
	nvim          *nvim.Nvim
	isSelfStarted bool
	cmd           *exec.Cmd
	socketPath    string
}

// New creates a new Neovim manager, connecting to the instance named by
// NVIM or NVIM_LISTEN_ADDRESS, or starting a new headless one.
func New() (*Manager, error) {
	for _, env := range []string{"NVIM", "NVIM_LISTEN_ADDRESS"} {
		if addr := os.Getenv(env); addr != "" {
			v, err := nvim.Dial(addr)
			if err == nil {
				return &Manager{nvim: v}, nil
			}
		}
	}

	tmpDir, err := os.MkdirTemp("", "docexec-nvim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for nvim: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "nvim.sock")

	cmd := exec.Command("nvim", "--headless", "--clean", "--listen", socketPath)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start headless nvim: %w. Is 'nvim' in your PATH?", err)
	}

	// Wait for the socket file to appear.
	for i := 0; i < 20; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	v, err := nvim.Dial(socketPath)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to connect to headless nvim: %w", err)
	}

	m := &Manager{
		nvim:          v,
		isSelfStarted: true,
		cmd:           cmd,
		socketPath:    socketPath,
	}
	if err := m.configureTempInstance(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// configureTempInstance sets up undofile for persistent history.
func (m *Manager) configureTempInstance() error {
	home, _ := os.UserHomeDir()
	expandedUndoDir := strings.Replace(undoDir, "~", home, 1)
	if err := os.MkdirAll(expandedUndoDir, 0755); err != nil {
		return fmt.Errorf("failed to create nvim undo dir: %w", err)
	}

	b := m.nvim.NewBatch()
	b.Command("set undofile")
	b.Command(fmt.Sprintf("set undodir=%s", expandedUndoDir))
	b.Command("set noswapfile")
	b.Command("set nofixendofline")
	if err := b.Execute(); err != nil {
		return fmt.Errorf("failed to configure nvim: %w", err)
	}
	return nil
}

// Close disconnects from Neovim and cleans up if it was self-started.
func (m *Manager) Close() error {
	var err error
	if m.nvim != nil {
		err = m.nvim.Close()
	}
	if m.isSelfStarted && m.cmd != nil && m.cmd.Process != nil {
		if kerr := m.cmd.Process.Kill(); kerr == nil {
			m.cmd.Wait()
			os.RemoveAll(filepath.Dir(m.socketPath))
		}
	}
	return err
}

// Write replaces the buffer of path with content and saves it.
func (m *Manager) Write(path, content string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	lines, fileFormat, endOfLine := Lines(content)
	b := m.nvim.NewBatch()
	b.Command(fmt.Sprintf("edit %s", fnameEscape(absPath)))
	b.Command("setlocal fileformat=" + fileFormat)
	if endOfLine {
		b.Command("setlocal endofline")
	} else {
		b.Command("setlocal noendofline")
	}
	b.SetBufferLines(0, 0, -1, true, lines)
	b.Command("write!")
	if err := b.Execute(); err != nil {
		return fmt.Errorf("failed to write %s through nvim: %w", path, err)
	}
	return nil
}

// Lines splits content into buffer lines. It also returns the Vim fileformat
// and whether the content ends with a line break.
func Lines(content string) ([][]byte, string, bool) {
	fileFormat := "unix"
	eol := "\n"
	if strings.Contains(content, "\r\n") {
		fileFormat = "dos"
		eol = "\r\n"
	}
	endOfLine := strings.HasSuffix(content, eol)
	content = strings.TrimSuffix(content, eol)

	parts := strings.Split(content, eol)
	lines := make([][]byte, len(parts))
	for i, s := range parts {
		lines[i] = []byte(s)
	}
	return lines, fileFormat, endOfLine
}

func fnameEscape(path string) string {
	r := strings.NewReplacer(" ", `\ `, "%", `\%`, "#", `\#`, "|", `\|`)
	return r.Replace(path)
}
