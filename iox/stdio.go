package iox

import (
	"io"
	"os"
)

// Stdio is the path that selects stdin or stdout.
const Stdio = "-"

// OpenInput opens path for reading. An empty path or "-" yields os.Stdin
// wrapped so that closing it is a no-op.
func OpenInput(path string) (io.ReadCloser, error) {
	if path == "" || path == Stdio {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// OpenOutput creates or truncates path for writing. An empty path or "-"
// yields os.Stdout wrapped so that closing it is a no-op.
func OpenOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == Stdio {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

// IsStdio reports whether path selects a standard stream.
func IsStdio(path string) bool {
	return path == "" || path == Stdio
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
