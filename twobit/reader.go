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

// Package twobit reads and writes the UCSC 2-bit format, which packs four
// bases into each byte and stores runs of unknown (N) and soft-masked bases
// separately.
package twobit

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/cznic/mathutil"
	"github.com/googlegenomics/refget/reference"
	"github.com/pkg/errors"
)

// Extension is the conventional file name extension of 2-bit files.
const Extension = ".2bit"

// signature is the first word of every 2-bit file, in the byte order used
// by the rest of the file.
const signature = 0x1A412743

// Decoded bases for each 2-bit code.
var bases = [4]byte{'t', 'c', 'a', 'g'}

// runList holds the starts and sizes of sorted, non-overlapping runs.
type runList struct {
	starts, sizes []uint32
}

// findGreatestLowerBound returns the index of the last start that is less
// than or equal to val.  When val precedes every start it returns 0, so a
// scan for runs overlapping val can always begin at the returned index.
func findGreatestLowerBound(starts []uint32, val uint32) int {
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > val })
	if i == 0 {
		return 0
	}
	return i - 1
}

// apply calls f with the part of every run overlapping [from, to), relative
// to from.
func (l runList) apply(from, to uint32, f func(s, e uint32)) {
	if len(l.starts) == 0 {
		return
	}
	for i := findGreatestLowerBound(l.starts, from); i < len(l.starts); i++ {
		if l.starts[i] >= to {
			break
		}
		s := mathutil.MaxUint32(l.starts[i], from)
		e := mathutil.MinUint32(l.starts[i]+l.sizes[i], to)
		if s < e {
			f(s-from, e-from)
		}
	}
}

// contigHeader is the decoded metadata preceding the packed bases of a
// contig.
type contigHeader struct {
	name       string
	size       uint32
	nBlocks    runList
	maskBlocks runList
	// dataOffset is the file offset of the packed bases.
	dataOffset int64
}

// headerCache holds the header of the most recently queried contig.
type headerCache struct {
	last *contigHeader
}

func (c *headerCache) get(name string) (*contigHeader, bool) {
	if c.last == nil || c.last.name != name {
		return nil, false
	}
	return c.last, true
}

func (c *headerCache) put(h *contigHeader) {
	c.last = h
}

// Reader provides random access to the contigs of a 2-bit file.  It is not
// safe for concurrent use.
type Reader struct {
	r       io.ReadSeeker
	closer  io.Closer
	source  string
	order   binary.ByteOrder
	names   []string
	offsets map[string]uint32
	// dictionary is built on first use.
	dictionary *reference.Dictionary
	cache      headerCache
}

// NewReader reads the header and index of the 2-bit file in r.  The caller
// keeps ownership of r.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	return newReader(r, "")
}

// Open opens the named 2-bit file.  The file is closed by Close.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &reference.Error{Kind: reference.ErrNotFound, Op: "opening", Source: path, Err: err}
		}
		return nil, reference.IOError("opening", path, err)
	}
	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

func newReader(rs io.ReadSeeker, name string) (*Reader, error) {
	r := &Reader{r: rs, source: name, offsets: make(map[string]uint32)}

	header := make([]byte, 16)
	if _, err := io.ReadFull(rs, header); err != nil {
		return nil, r.formatError("reading header", err)
	}
	switch {
	case binary.BigEndian.Uint32(header) == signature:
		r.order = binary.BigEndian
	case binary.LittleEndian.Uint32(header) == signature:
		r.order = binary.LittleEndian
	default:
		return nil, r.formatError("reading header", errors.Errorf("bad signature %x", header[:4]))
	}
	if version := r.order.Uint32(header[4:]); version != 0 {
		return nil, &reference.Error{Kind: reference.ErrUnsupportedVersion, Op: "reading header", Source: name, Err: errors.Errorf("version %d", version)}
	}

	count := r.order.Uint32(header[8:])
	br := &byteReader{r: rs}
	for i := uint32(0); i < count; i++ {
		length, err := br.ReadByte()
		if err != nil {
			return nil, r.formatError("reading index", err)
		}
		contig := make([]byte, int(length)+4)
		if _, err := io.ReadFull(rs, contig); err != nil {
			return nil, r.formatError("reading index", err)
		}
		contigName := string(contig[:length])
		if _, ok := r.offsets[contigName]; ok {
			return nil, r.formatError("reading index", errors.Errorf("duplicate contig %q", contigName))
		}
		r.names = append(r.names, contigName)
		r.offsets[contigName] = r.order.Uint32(contig[length:])
	}
	return r, nil
}

// byteReader reads single bytes without buffering past them.
type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	_, err := io.ReadFull(b.r, b.buf[:])
	return b.buf[0], err
}

func (r *Reader) formatError(op string, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &reference.Error{Kind: reference.ErrFormat, Op: op, Source: r.source, Err: err}
}

// Names returns the contig names in file order.
func (r *Reader) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *Reader) uint32At(offset int64) (uint32, error) {
	if _, err := r.r.Seek(offset, io.SeekStart); err != nil {
		return 0, reference.IOError("seeking", r.source, err)
	}
	var v uint32
	if err := binary.Read(r.r, r.order, &v); err != nil {
		return 0, r.formatError("reading", err)
	}
	return v, nil
}

// Dictionary returns the names and lengths of the contigs in file order.
// Only the size of each contig is read; the result is cached.
func (r *Reader) Dictionary() (*reference.Dictionary, error) {
	if r.dictionary != nil {
		return r.dictionary, nil
	}
	d := &reference.Dictionary{}
	for _, name := range r.names {
		size, err := r.uint32At(int64(r.offsets[name]))
		if err != nil {
			return nil, err
		}
		d.Add(reference.SequenceRecord{Name: name, Length: uint64(size)})
	}
	r.dictionary = d
	return d, nil
}

// Length returns the number of bases in the named contig.
func (r *Reader) Length(name string) (uint64, error) {
	h, err := r.header(name)
	if err != nil {
		return 0, err
	}
	return uint64(h.size), nil
}

// header returns the decoded header of the named contig, reading it unless
// it is cached.
func (r *Reader) header(name string) (*contigHeader, error) {
	if h, ok := r.cache.get(name); ok {
		return h, nil
	}
	offset, ok := r.offsets[name]
	if !ok {
		return nil, &reference.Error{Kind: reference.ErrNotFound, Op: "looking up contig", Source: r.source, Contig: name}
	}
	if _, err := r.r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, reference.IOError("seeking", r.source, err)
	}

	h := &contigHeader{name: name}
	if err := binary.Read(r.r, r.order, &h.size); err != nil {
		return nil, r.formatError("reading contig header", err)
	}
	var err error
	if h.nBlocks, err = r.readRunList(); err != nil {
		return nil, err
	}
	if h.maskBlocks, err = r.readRunList(); err != nil {
		return nil, err
	}
	var reserved uint32
	if err := binary.Read(r.r, r.order, &reserved); err != nil {
		return nil, r.formatError("reading contig header", err)
	}
	position, err := r.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, reference.IOError("seeking", r.source, err)
	}
	h.dataOffset = position
	r.cache.put(h)
	return h, nil
}

func (r *Reader) readRunList() (runList, error) {
	var count uint32
	if err := binary.Read(r.r, r.order, &count); err != nil {
		return runList{}, r.formatError("reading runs", err)
	}
	if count == 0 {
		return runList{}, nil
	}
	l := runList{starts: make([]uint32, count), sizes: make([]uint32, count)}
	if err := binary.Read(r.r, r.order, l.starts); err != nil {
		return runList{}, r.formatError("reading run starts", err)
	}
	if err := binary.Read(r.r, r.order, l.sizes); err != nil {
		return runList{}, r.formatError("reading run sizes", err)
	}
	return l, nil
}

// Query returns bases start to stop (1-based, inclusive) of the named
// contig.  Bases decode in lower case with unknown bases as 'n'.  When mask
// is set, bases are upper-cased except those in soft-masked runs; unknown
// bases stay 'n' either way.
func (r *Reader) Query(name string, start, stop uint64, mask bool) ([]byte, error) {
	h, err := r.header(name)
	if err != nil {
		return nil, err
	}
	queryError := func(kind error, err error) error {
		return &reference.Error{Kind: kind, Op: "query", Source: r.source, Contig: name, Start: start, Stop: stop, Err: err}
	}
	if stop > uint64(h.size) {
		return nil, queryError(reference.ErrOutOfRange, errors.Errorf("contig has %d bases", h.size))
	}
	if start < 1 || stop < start {
		return nil, queryError(reference.ErrMalformedQuery, errors.Errorf("start %d, stop %d", start, stop))
	}

	fragStart, fragEnd := uint32(start-1), uint32(stop)
	packedStart, packedEnd := fragStart>>2, (fragEnd+3)>>2
	packed := make([]byte, packedEnd-packedStart)
	if _, err := r.r.Seek(h.dataOffset+int64(packedStart), io.SeekStart); err != nil {
		return nil, queryError(reference.ErrIO, err)
	}
	if _, err := io.ReadFull(r.r, packed); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, queryError(reference.ErrIO, err)
	}

	dna := unpack(packed, fragStart, fragEnd)
	if mask {
		copy(dna, bytes.ToUpper(dna))
		h.maskBlocks.apply(fragStart, fragEnd, func(s, e uint32) {
			copy(dna[s:e], bytes.ToLower(dna[s:e]))
		})
	}
	h.nBlocks.apply(fragStart, fragEnd, func(s, e uint32) {
		for i := s; i < e; i++ {
			dna[i] = 'n'
		}
	})
	return dna, nil
}

// unpack decodes bases [fragStart, fragEnd) from packed, whose first byte
// holds base fragStart&^3.  Whole bytes in the middle are decoded four bases
// at a time; the partial bytes at either end base by base.
func unpack(packed []byte, fragStart, fragEnd uint32) []byte {
	dna := make([]byte, 0, fragEnd-fragStart)
	first := fragStart &^ 3
	decode := func(pos uint32) byte {
		b := packed[(pos-first)>>2]
		return bases[(b>>(6-2*(pos&3)))&3]
	}

	pos := fragStart
	// Leading partial byte, which may also be the last.
	for ; pos < fragEnd && pos&3 != 0; pos++ {
		dna = append(dna, decode(pos))
	}
	for ; pos+4 <= fragEnd; pos += 4 {
		b := packed[(pos-first)>>2]
		dna = append(dna, bases[b>>6], bases[(b>>4)&3], bases[(b>>2)&3], bases[b&3])
	}
	for ; pos < fragEnd; pos++ {
		dna = append(dna, decode(pos))
	}
	return dna
}

// Sequence returns the whole of the named contig as a reference.Sequence.
func (r *Reader) Sequence(name string, mask bool) (*reference.Sequence, error) {
	length, err := r.Length(name)
	if err != nil {
		return nil, err
	}
	index := -1
	for i, n := range r.names {
		if n == name {
			index = i
			break
		}
	}
	s := &reference.Sequence{Name: name, Index: index}
	if length == 0 {
		return s, nil
	}
	s.Bases, err = r.Query(name, 1, length, mask)
	return s, err
}

// Close closes the file opened by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// packedSize returns the number of bytes holding n packed bases.
func packedSize(n uint32) uint32 {
	return uint32((uint64(n) + 3) >> 2)
}
