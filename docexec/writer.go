package docexec

import (
	"io"

	"github.com/sokinpui/docexec/internal/fs"
	"github.com/sokinpui/docexec/internal/nvim"
)

// Writer replaces the content of a document.
type Writer interface {
	Write(path, content string) error
}

// FileWriter replaces documents on disk with a temporary file and a rename.
type FileWriter struct{}

// Write implements Writer.
func (FileWriter) Write(path, content string) error {
	return fs.WriteFileAtomic(path, []byte(content), fs.FileMode(path))
}

// nvimWriter connects to Neovim on the first write only, so that runs
// without changes never start an instance.
type nvimWriter struct {
	manager *nvim.Manager
}

func (w *nvimWriter) Write(path, content string) error {
	if w.manager == nil {
		m, err := nvim.New()
		if err != nil {
			return err
		}
		w.manager = m
	}
	return w.manager.Write(path, content)
}

func (w *nvimWriter) Close() error {
	if w.manager == nil {
		return nil
	}
	return w.manager.Close()
}

var _ io.Closer = (*nvimWriter)(nil)
