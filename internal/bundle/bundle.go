// Package bundle packs a submission's program and input into the tar stream
// that is copied into a sandbox.
package bundle

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"
)

const (
	ProgramFile = "main.py"
	InputFile   = "input.txt"
)

var ErrInvalidEncoding = errors.New("text is not valid utf-8")

type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

type Bundle struct {
	entries []Entry
	data    []byte
}

// Build writes code and stdin as ProgramFile and InputFile.
func Build(code, stdin string, mtime time.Time) (*Bundle, error) {
	if !utf8.ValidString(code) {
		return nil, fmt.Errorf("program: %w", ErrInvalidEncoding)
	}
	if !utf8.ValidString(stdin) {
		return nil, fmt.Errorf("input: %w", ErrInvalidEncoding)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	b := &Bundle{}

	files := []struct {
		name    string
		content []byte
	}{
		{ProgramFile, []byte(code)},
		{InputFile, []byte(stdin)},
	}
	for _, f := range files {
		hdr := &tar.Header{
			Name:     f.name,
			Mode:     0644,
			Size:     int64(len(f.content)),
			ModTime:  mtime,
			Typeflag: tar.TypeReg,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("writing %s header: %w", f.name, err)
		}
		if _, err := tw.Write(f.content); err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.name, err)
		}
		b.entries = append(b.entries, Entry{Name: f.name, Size: hdr.Size, ModTime: mtime})
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	b.data = buf.Bytes()
	return b, nil
}

func (b *Bundle) Entries() []Entry {
	return append([]Entry(nil), b.entries...)
}

// Reader returns a fresh reader over the archive, so a bundle can be sent
// more than once.
func (b *Bundle) Reader() io.Reader {
	return bytes.NewReader(b.data)
}

func (b *Bundle) Len() int {
	return len(b.data)
}
