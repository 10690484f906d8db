// Copyright 2019 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package source provides random access to the bytes of reference files,
// whether stored plainly, memory mapped or BGZF compressed.
package source

import (
	"io"
	"os"

	"github.com/googlegenomics/refget/bgzf"
	"github.com/googlegenomics/refget/gzi"
	"github.com/googlegenomics/refget/reference"
	"github.com/pkg/errors"
)

// ByteSource reads bytes at arbitrary offsets of the uncompressed content of
// a file.  ReadAt follows the io.ReaderAt contract: a short read at the end
// of the content returns io.EOF, any other failure satisfies
// errors.Is(err, reference.ErrIO).  Implementations in this package are safe
// for concurrent ReadAt calls unless noted otherwise.
type ByteSource interface {
	io.ReaderAt
	io.Closer
	// Name identifies the source in errors.
	Name() string
}

var gzipMagic = []byte{0x1f, 0x8b}

// Open opens the named file as a ByteSource.  BGZF files are detected from
// their first bytes and need an index at path + ".gzi".  Other gzip files
// cannot be read at random and are rejected with reference.ErrFormat.
func Open(path string) (ByteSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, openError(path, err)
	}
	header := make([]byte, 18)
	n, err := f.ReadAt(header, 0)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, reference.IOError("reading header", path, err)
	}
	header = header[:n]

	switch {
	case bgzf.IsBGZF(header):
		index, err := gzi.ReadFile(path + gzi.Extension)
		if err != nil {
			f.Close()
			return nil, err
		}
		c, err := NewCompressed(path, f, index)
		if err != nil {
			f.Close()
			return nil, err
		}
		return c, nil
	case len(header) >= len(gzipMagic) && header[0] == gzipMagic[0] && header[1] == gzipMagic[1]:
		f.Close()
		return nil, &reference.Error{Kind: reference.ErrFormat, Op: "opening", Source: path, Err: errors.New("gzip file is not BGZF compressed")}
	}
	return NewFile(path, f), nil
}

func openError(path string, err error) error {
	if os.IsNotExist(err) {
		return &reference.Error{Kind: reference.ErrNotFound, Op: "opening", Source: path, Err: err}
	}
	return reference.IOError("opening", path, err)
}

// File reads from an io.ReaderAt such as an *os.File.
type File struct {
	r    io.ReaderAt
	name string
}

// NewFile returns a File named name reading from r.  Close closes r if it
// implements io.Closer.
func NewFile(name string, r io.ReaderAt) *File {
	return &File{r: r, name: name}
}

// OpenFile opens the named file for positional reads.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, openError(path, err)
	}
	return NewFile(path, f), nil
}

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.r.ReadAt(p, off)
	if err != nil && err != io.EOF {
		err = reference.IOError("reading", f.name, err)
	}
	return n, err
}

// Name returns the name given to NewFile.
func (f *File) Name() string {
	return f.name
}

// Close closes the underlying reader.
func (f *File) Close() error {
	if c, ok := f.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
