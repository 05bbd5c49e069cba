package rest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// File is an attachment uploaded alongside a request.
type File struct {
	Reader      io.ReadSeeker
	Name        string
	ContentType string
	Spoiler     bool
}

func NewFile(name string, reader io.ReadSeeker) *File {
	return &File{
		Reader: reader,
		Name:   name,
	}
}

// OpenFile opens path for upload. The caller closes the file when done.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return NewFile(filepath.Base(path), f), nil
}

// Filename returns the name the platform will display.
func (f *File) Filename() string {
	if f.Spoiler && !strings.HasPrefix(f.Name, "SPOILER_") {
		return "SPOILER_" + f.Name
	}

	return f.Name
}

// Reset seeks back to the start so a retried request sends the full content.
func (f *File) Reset() error {
	if _, err := f.Reader.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to reset file %s: %w", f.Name, err)
	}

	return nil
}

func (f *File) Close() error {
	if closer, ok := f.Reader.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}
