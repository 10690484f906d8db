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

package bgzf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Reader provides sequential reads of the uncompressed stream of a BGZF file
// together with seeking to virtual addresses.  A Reader is not safe for
// concurrent use.
type Reader struct {
	r io.ReaderAt

	// block is the compressed offset of the loaded block and next the
	// compressed offset of the block following it.
	block, next uint64
	data        []byte
	pos         int
	loaded      bool
}

// NewReader returns a Reader over the BGZF data in r.  It returns an error if
// r does not start with a BGZF block.
func NewReader(r io.ReaderAt) (*Reader, error) {
	header := make([]byte, headerSize)
	if _, err := r.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("reading block header: %v", err)
	}
	if !IsBGZF(header) {
		return nil, fmt.Errorf("not a BGZF file: header %x", header)
	}
	return &Reader{r: r}, nil
}

// Tell returns the virtual address of the next byte returned by Read.
func (r *Reader) Tell() Address {
	return NewAddress(r.block, uint16(r.pos))
}

// Seek positions the reader at the virtual address a.  The data offset must
// not be past the end of the addressed block.
func (r *Reader) Seek(a Address) error {
	if !r.loaded || r.block != a.BlockOffset() {
		if err := r.load(a.BlockOffset()); err != nil {
			return err
		}
	}
	if int(a.DataOffset()) > len(r.data) {
		return fmt.Errorf("data offset %d beyond block of %d bytes at %d", a.DataOffset(), len(r.data), r.block)
	}
	r.pos = int(a.DataOffset())
	return nil
}

// Read reads uncompressed bytes into p, crossing block boundaries as needed.
// Empty blocks (including the EOF marker) are skipped.
func (r *Reader) Read(p []byte) (int, error) {
	if !r.loaded {
		if err := r.load(0); err != nil {
			return 0, err
		}
	}
	var n int
	for n < len(p) {
		if r.pos == len(r.data) {
			if err := r.load(r.next); err != nil {
				if err == io.EOF && n > 0 {
					return n, nil
				}
				return n, err
			}
			continue
		}
		c := copy(p[n:], r.data[r.pos:])
		r.pos += c
		n += c
	}
	return n, nil
}

// load decodes the block starting at the compressed offset.
func (r *Reader) load(offset uint64) error {
	header := make([]byte, headerSize)
	n, err := r.r.ReadAt(header, int64(offset))
	if n == 0 && err == io.EOF {
		return io.EOF
	}
	if n < headerSize {
		return fmt.Errorf("reading block header at %d: %v", offset, io.ErrUnexpectedEOF)
	}
	if !IsBGZF(header) {
		return fmt.Errorf("invalid block header at %d: %x", offset, header)
	}
	size := int(binary.LittleEndian.Uint16(header[16:])) + 1
	block := make([]byte, size)
	if n, err := r.r.ReadAt(block, int64(offset)); n < size {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("reading block at %d: %v", offset, err)
	}
	data, _, err := DecodeBlock(bytes.NewReader(block))
	if err != nil {
		return fmt.Errorf("decoding block at %d: %v", offset, err)
	}
	r.block, r.next = offset, offset+uint64(size)
	r.data, r.pos, r.loaded = data, 0, true
	return nil
}
