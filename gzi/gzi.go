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

// Package gzi reads, writes and builds the .gzi index of a BGZF file, which
// maps uncompressed offsets to the blocks containing them.
package gzi

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/googlegenomics/refget/bgzf"
	ibinary "github.com/googlegenomics/refget/internal/binary"
	"github.com/googlegenomics/refget/reference"
	"github.com/pkg/errors"
)

// Extension is appended to the name of a BGZF file to locate its index.
const Extension = ".gzi"

// Entry locates the start of a block in both the compressed and the
// uncompressed stream.
type Entry struct {
	Compressed, Uncompressed uint64
}

// Index lists every block of a BGZF file except the first, which always
// starts at offset zero in both streams.
type Index struct {
	entries []Entry
}

// New returns an index over entries.  The entries must be strictly
// increasing in both offsets and must not include the first block.
func New(entries []Entry) (*Index, error) {
	for i, entry := range entries {
		if i == 0 {
			if entry == (Entry{}) {
				return nil, errors.New("first block index entry should not be present")
			}
			continue
		}
		previous := entries[i-1]
		if previous.Compressed >= entry.Compressed || previous.Uncompressed >= entry.Uncompressed {
			return nil, errors.Errorf("index entries out of order: %+v then %+v", previous, entry)
		}
	}
	return &Index{entries: append([]Entry(nil), entries...)}, nil
}

// FromBlocks returns the index of the blocks reported by a bgzf.Writer.
func FromBlocks(blocks []bgzf.BlockOffset) (*Index, error) {
	var entries []Entry
	for _, block := range blocks {
		if block == (bgzf.BlockOffset{}) {
			continue
		}
		entries = append(entries, Entry{block.Compressed, block.Uncompressed})
	}
	return New(entries)
}

// Read parses an index from r.
func Read(r io.Reader) (*Index, error) {
	var count uint64
	if err := ibinary.Read(r, &count); err != nil {
		return nil, corrupt(errors.Wrap(err, "reading entry count"))
	}
	var entries []Entry
	for i := uint64(0); i < count; i++ {
		var entry Entry
		if err := ibinary.Read(r, &entry); err != nil {
			return nil, corrupt(errors.Wrapf(err, "reading entry %d of %d", i, count))
		}
		entries = append(entries, entry)
	}
	index, err := New(entries)
	if err != nil {
		return nil, corrupt(err)
	}
	return index, nil
}

func corrupt(err error) error {
	return &reference.Error{Kind: reference.ErrFormat, Op: "reading gzi index", Err: err}
}

// ReadFile parses the index stored in the named file.  A missing file is
// reported as reference.ErrNotFound.
func ReadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &reference.Error{Kind: reference.ErrNotFound, Op: "opening gzi index", Source: path, Err: err}
		}
		return nil, reference.IOError("opening gzi index", path, err)
	}
	defer f.Close()

	index, err := Read(f)
	if err != nil {
		if e, ok := err.(*reference.Error); ok {
			e.Source = path
		}
		return nil, err
	}
	return index, nil
}

// Write writes the index to w in the .gzi format.
func (x *Index) Write(w io.Writer) error {
	if err := ibinary.Write(w, uint64(len(x.entries))); err != nil {
		return fmt.Errorf("writing entry count: %v", err)
	}
	for _, entry := range x.entries {
		if err := ibinary.Write(w, entry); err != nil {
			return fmt.Errorf("writing entry: %v", err)
		}
	}
	return nil
}

// WriteFile writes the index to the named file.
func (x *Index) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return reference.IOError("creating gzi index", path, err)
	}
	if err := x.Write(f); err != nil {
		f.Close()
		return reference.IOError("writing gzi index", path, err)
	}
	return reference.IOError("closing gzi index", path, f.Close())
}

// Entries returns a copy of the index entries.
func (x *Index) Entries() []Entry {
	return append([]Entry(nil), x.entries...)
}

// Blocks returns the number of blocks described by the index, including the
// implicit first block.
func (x *Index) Blocks() int {
	return len(x.entries) + 1
}

// VirtualOffset returns the BGZF address of the byte at the uncompressed
// offset u.
func (x *Index) VirtualOffset(u uint64) (bgzf.Address, error) {
	// Position of the first block starting after u.
	i := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Uncompressed > u
	})
	var block Entry
	if i > 0 {
		block = x.entries[i-1]
	}
	offset := u - block.Uncompressed
	if offset >= bgzf.MaximumBlockSize {
		return 0, errors.Errorf("offset %d is %d bytes into the block at %d", u, offset, block.Compressed)
	}
	return bgzf.NewAddress(block.Compressed, uint16(offset)), nil
}

// Build scans the BGZF stream in r and returns its index.  Empty blocks,
// such as the EOF marker, are not indexed.
func Build(r io.Reader) (*Index, error) {
	var (
		entries                  []Entry
		compressed, uncompressed uint64
		header                   = make([]byte, 18)
		trailer                  = make([]byte, 8)
	)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF {
				break
			}
			return nil, corrupt(errors.Wrapf(err, "reading block header at %d", compressed))
		}
		if !bgzf.IsBGZF(header) {
			return nil, corrupt(errors.Errorf("invalid block header at %d", compressed))
		}
		size := uint64(binary.LittleEndian.Uint16(header[16:])) + 1
		if size < uint64(len(header)+len(trailer)) {
			return nil, corrupt(errors.Errorf("block at %d too small: %d bytes", compressed, size))
		}
		skip := int64(size) - int64(len(header)+len(trailer))
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, corrupt(errors.Wrapf(err, "skipping block data at %d", compressed))
		}
		if _, err := io.ReadFull(r, trailer); err != nil {
			return nil, corrupt(errors.Wrapf(err, "reading block trailer at %d", compressed))
		}
		isize := uint64(binary.LittleEndian.Uint32(trailer[4:]))
		if isize > 0 && (compressed != 0 || uncompressed != 0) {
			entries = append(entries, Entry{compressed, uncompressed})
		}
		compressed += size
		uncompressed += isize
	}
	index, err := New(entries)
	if err != nil {
		return nil, corrupt(err)
	}
	return index, nil
}
