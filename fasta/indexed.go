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

package fasta

import (
	"io"

	"github.com/cznic/mathutil"
	"github.com/googlegenomics/refget/fai"
	"github.com/googlegenomics/refget/reference"
	"github.com/googlegenomics/refget/source"
	"github.com/pkg/errors"
)

// IndexedReader retrieves sequences from a FASTA file through its .fai
// index.  It is not safe for concurrent use; open one reader, each with its
// own ByteSource, per goroutine.
type IndexedReader struct {
	src        source.ByteSource
	index      *fai.Index
	dictionary *reference.Dictionary
	name       string
	bufferSize int
	// next is the position in the index of the sequence returned by Next.
	next   int
	closed bool
}

// NewIndexedReader returns a reader over src laid out as described by index.
// The reader owns src: it is closed by Close, and also when the reader
// cannot be created because the dictionary given by WithDictionary disagrees
// with the index.
func NewIndexedReader(src source.ByteSource, index *fai.Index, opts ...Option) (*IndexedReader, error) {
	o := newOptions(opts)
	name := o.name
	if name == "" {
		name = src.Name()
	}
	if o.dictionary != nil {
		if err := index.Validate(name, o.dictionary); err != nil {
			src.Close()
			return nil, err
		}
	}
	return &IndexedReader{
		src:        src,
		index:      index,
		dictionary: o.dictionary,
		name:       name,
		bufferSize: o.bufferSize,
	}, nil
}

// Index returns the index used by the reader.
func (r *IndexedReader) Index() *fai.Index {
	return r.index
}

// Dictionary returns the dictionary given to NewIndexedReader or, if there
// was none, the names and lengths listed in the index.
func (r *IndexedReader) Dictionary() (*reference.Dictionary, error) {
	if r.dictionary != nil {
		return r.dictionary, nil
	}
	return r.index.Dictionary(), nil
}

// IsIndexed returns true.
func (r *IndexedReader) IsIndexed() bool {
	return true
}

// Sequence returns all the bases of the named sequence.
func (r *IndexedReader) Sequence(name string) (*reference.Sequence, error) {
	entry, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return r.read(entry, 1, entry.Length)
}

// Subsequence returns bases start to stop of the named sequence, counting
// from 1 and including both ends.  A query with start equal to stop+1 is
// empty; any other query with start > stop, or with start < 1, fails with
// reference.ErrMalformedQuery.  Queries past the end of the sequence fail
// with reference.ErrOutOfRange.
func (r *IndexedReader) Subsequence(name string, start, stop uint64) (*reference.Sequence, error) {
	entry, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return r.read(entry, start, stop)
}

func (r *IndexedReader) lookup(name string) (fai.Entry, error) {
	if r.closed {
		return fai.Entry{}, &reference.Error{Kind: reference.ErrIO, Op: "query", Source: r.name, Contig: name, Err: errors.New("reader is closed")}
	}
	entry, err := r.index.Get(name)
	if e, ok := err.(*reference.Error); ok {
		e.Op, e.Source = "query", r.name
	}
	return entry, err
}

func (r *IndexedReader) queryError(kind error, entry fai.Entry, start, stop uint64, err error) error {
	return &reference.Error{Kind: kind, Op: "query", Source: r.name, Contig: entry.Name, Start: start, Stop: stop, Err: err}
}

// read extracts bases [start, stop] of entry, skipping the line terminators
// found between them.
func (r *IndexedReader) read(entry fai.Entry, start, stop uint64) (*reference.Sequence, error) {
	if start < 1 || start > stop+1 {
		return nil, r.queryError(reference.ErrMalformedQuery, entry, start, stop, errors.Errorf("start %d, stop %d", start, stop))
	}
	if stop > entry.Length {
		return nil, r.queryError(reference.ErrOutOfRange, entry, start, stop, errors.Errorf("sequence has %d bases", entry.Length))
	}

	length := stop - start + 1
	sequence := &reference.Sequence{Name: entry.Name, Index: int(entry.Ordinal), Bases: make([]byte, 0, length)}
	if length == 0 {
		return sequence, nil
	}

	var (
		basesPerLine = int(entry.BasesPerLine)
		bytesPerLine = int(entry.BytesPerLine)
		// column is the position of the next byte within its line,
		// terminator included.
		column = int((start - 1) % uint64(entry.BasesPerLine))
		offset = int64(entry.Position(start - 1))
		size   = mathutil.MinInt64(int64(r.bufferSize), int64(length/uint64(basesPerLine)+2)*int64(bytesPerLine))
		buffer = make([]byte, size)
	)
	for uint64(len(sequence.Bases)) < length {
		n, err := r.src.ReadAt(buffer, offset)
		if err != nil && err != io.EOF {
			return nil, r.queryError(reference.ErrIO, entry, start, stop, err)
		}
		if n == 0 {
			return nil, r.queryError(reference.ErrIO, entry, start, stop, io.ErrUnexpectedEOF)
		}
		offset += int64(n)

		chunk := buffer[:n]
		for len(chunk) > 0 && uint64(len(sequence.Bases)) < length {
			if column < basesPerLine {
				need := int(mathutil.MinInt64(int64(length)-int64(len(sequence.Bases)), int64(basesPerLine-column)))
				take := mathutil.Min(need, len(chunk))
				sequence.Bases = append(sequence.Bases, chunk[:take]...)
				chunk = chunk[take:]
				column += take
			} else {
				skip := mathutil.Min(bytesPerLine-column, len(chunk))
				chunk = chunk[skip:]
				column += skip
			}
			if column == bytesPerLine {
				column = 0
			}
		}
	}
	return sequence, nil
}

// Next returns the sequences in index order, then io.EOF.
func (r *IndexedReader) Next() (*reference.Sequence, error) {
	if r.next >= r.index.Len() {
		return nil, io.EOF
	}
	sequence, err := r.Sequence(r.index.At(r.next).Name)
	if err != nil {
		return nil, err
	}
	r.next++
	return sequence, nil
}

// Reset makes Next start again from the first sequence.  It does not affect
// other queries.
func (r *IndexedReader) Reset() error {
	r.next = 0
	return nil
}

// Close closes the byte source.  Calling Close more than once has no effect.
func (r *IndexedReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.Close()
}
