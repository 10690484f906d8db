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

package source

import (
	"io"

	"github.com/googlegenomics/refget/bgzf"
	"github.com/googlegenomics/refget/gzi"
	"github.com/googlegenomics/refget/reference"
	"github.com/pkg/errors"
)

// Compressed reads the uncompressed content of a BGZF file using its .gzi
// index.  Each ReadAt seeks the decompressor to the requested offset and
// seeks it back to where it was before returning, so calls at different
// offsets can be interleaved freely.  Compressed is not safe for concurrent
// use.
type Compressed struct {
	data   io.ReaderAt
	index  *gzi.Index
	reader *bgzf.Reader
	name   string
}

// NewCompressed returns a Compressed reading the BGZF data in r.  It returns
// reference.ErrFormat if r does not start with a BGZF block.  Close closes r
// if it implements io.Closer.
func NewCompressed(name string, r io.ReaderAt, index *gzi.Index) (*Compressed, error) {
	reader, err := bgzf.NewReader(r)
	if err != nil {
		return nil, &reference.Error{Kind: reference.ErrFormat, Op: "opening", Source: name, Err: err}
	}
	return &Compressed{data: r, index: index, reader: reader, name: name}, nil
}

// ReadAt implements io.ReaderAt over the uncompressed stream.
func (c *Compressed) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, reference.IOError("reading", c.name, errors.Errorf("negative offset %d", off))
	}
	address, err := c.index.VirtualOffset(uint64(off))
	if err != nil {
		return 0, reference.IOError("reading", c.name, err)
	}

	saved := c.reader.Tell()
	defer func() {
		if restoreErr := c.reader.Seek(saved); restoreErr != nil && err == nil {
			err = reference.IOError("restoring position", c.name, restoreErr)
		}
	}()

	if err := c.reader.Seek(address); err != nil {
		return 0, c.readError(err)
	}
	n, err = io.ReadFull(c.reader, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err != nil && err != io.EOF {
		err = c.readError(err)
	}
	return n, err
}

func (c *Compressed) readError(err error) error {
	if err == io.EOF {
		return io.EOF
	}
	return reference.IOError("reading", c.name, err)
}

// Index returns the block index.
func (c *Compressed) Index() *gzi.Index {
	return c.index
}

// Name returns the name given to NewCompressed.
func (c *Compressed) Name() string {
	return c.name
}

// Close closes the underlying reader.
func (c *Compressed) Close() error {
	if closer, ok := c.data.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
