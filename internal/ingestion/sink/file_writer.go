// Package sink writes formatted records to the output file.
package sink

import (
	"io"
	"os"

	"github.com/zsiec/udplog/internal/errors"
)

// Writer is where records end up.
type Writer interface {
	Write(p []byte) error
	Close() error
}

// FileWriter writes to a file that is created or truncated when opened.
type FileWriter struct {
	path string
	f    io.WriteCloser
}

// OpenFile opens path write-only, creating it with mode 0644 or truncating
// existing content.
func OpenFile(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.WrapResourceError(err, "failed to open output file "+path)
	}
	return &FileWriter{path: path, f: f}, nil
}

// Write keeps writing until all of p is on disk or the file reports an error.
func (w *FileWriter) Write(p []byte) error {
	for len(p) > 0 {
		n, err := w.f.Write(p)
		if err != nil {
			return errors.WrapIOError(err, "failed to write output file "+w.path)
		}
		if n == 0 {
			return errors.WrapIOError(io.ErrShortWrite, "failed to write output file "+w.path)
		}
		p = p[n:]
	}
	return nil
}

func (w *FileWriter) Close() error {
	if err := w.f.Close(); err != nil {
		return errors.WrapIOError(err, "failed to close output file "+w.path)
	}
	return nil
}

func (w *FileWriter) Path() string {
	return w.path
}
