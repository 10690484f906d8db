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
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/googlegenomics/refget/reference"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

type scannerState int

const (
	awaitingHeader scannerState = iota
	readingSequence
	exhausted
)

// Scanner reads the records of a FASTA stream in order without an index.
type Scanner struct {
	opts options
	br   *bufio.Reader
	r    io.Reader
	// closers are released once the input is exhausted or the scanner is
	// closed.  They are only set for input the scanner opened itself.
	closers []io.Closer
	reopen  func() (io.Reader, []io.Closer, error)
	state   scannerState
	// name is the header of the record being read.
	name    string
	ordinal int
	closed  bool
}

// NewScanner returns a Scanner over r.  The caller keeps ownership of r.
// Reset is supported when r implements io.Seeker.
func NewScanner(r io.Reader, opts ...Option) *Scanner {
	return &Scanner{opts: newOptions(opts), r: r, br: bufio.NewReader(r)}
}

// OpenScanner returns a Scanner over the named file, decompressing it if it
// is gzip or BGZF compressed.  The Scanner owns the file and reopens it on
// Reset.
func OpenScanner(path string, opts ...Option) (*Scanner, error) {
	reopen := func() (io.Reader, []io.Closer, error) {
		return openDecompressed(path)
	}
	r, closers, err := reopen()
	if err != nil {
		return nil, err
	}
	s := NewScanner(r, append([]Option{WithName(path)}, opts...)...)
	s.closers, s.reopen = closers, reopen
	return s, nil
}

// openDecompressed opens path and, if it starts with the gzip magic number,
// wraps it in a decompressor.
func openDecompressed(path string) (io.Reader, []io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &reference.Error{Kind: reference.ErrNotFound, Op: "opening", Source: path, Err: err}
		}
		return nil, nil, reference.IOError("opening", path, err)
	}
	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, nil, reference.IOError("reading", path, err)
	}
	if !bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		return br, []io.Closer{f}, nil
	}
	gzr, err := gzip.NewReader(br)
	if err != nil {
		f.Close()
		return nil, nil, &reference.Error{Kind: reference.ErrFormat, Op: "opening", Source: path, Err: err}
	}
	return gzr, []io.Closer{gzr, f}, nil
}

func (s *Scanner) formatError(err error) error {
	return &reference.Error{Kind: reference.ErrFormat, Op: "scanning", Source: s.opts.name, Contig: s.name, Err: err}
}

// readLine returns the next line without its terminator.  At the end of the
// input it returns io.EOF and no data.
func (s *Scanner) readLine() ([]byte, error) {
	line, err := s.br.ReadBytes('\n')
	if err == io.EOF {
		if len(line) == 0 {
			return nil, io.EOF
		}
		err = nil
	}
	if err != nil {
		return nil, reference.IOError("scanning", s.opts.name, err)
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// atHeader reports whether the next line is a header line.
func (s *Scanner) atHeader() (bool, error) {
	b, err := s.br.Peek(1)
	if err == io.EOF {
		return false, io.EOF
	}
	if err != nil {
		return false, reference.IOError("scanning", s.opts.name, err)
	}
	return b[0] == '>', nil
}

// Next returns the next record, or io.EOF once the input is exhausted.
// Blank lines before a header are skipped; any other line outside a record
// fails with reference.ErrFormat.
func (s *Scanner) Next() (*reference.Sequence, error) {
	if s.closed {
		return nil, &reference.Error{Kind: reference.ErrIO, Op: "scanning", Source: s.opts.name, Err: errors.New("scanner is closed")}
	}
	if s.state == exhausted {
		return nil, io.EOF
	}

	var header []byte
	for {
		line, err := s.readLine()
		if err == io.EOF {
			s.state = exhausted
			s.release()
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if line[0] != '>' {
			return nil, s.formatError(errors.Errorf("expected a '>' header, found %q", truncate(line)))
		}
		header = line[1:]
		break
	}

	s.name = string(bytes.TrimSpace(header))
	if s.opts.truncateNames {
		if fields := bytes.Fields(header); len(fields) > 0 {
			s.name = string(fields[0])
		}
	}
	if s.name == "" {
		return nil, s.formatError(errors.New("empty sequence name"))
	}
	s.state = readingSequence

	sequence := &reference.Sequence{Name: s.name, Index: s.ordinal}
	var err error
	if record, ok := s.declared(); ok {
		sequence.Bases, err = s.readDeclared(record)
	} else {
		sequence.Bases, err = s.readBody(nil)
	}
	if err != nil {
		return nil, err
	}
	s.state = awaitingHeader
	s.ordinal++
	return sequence, nil
}

// declared returns the dictionary record of the current sequence.
func (s *Scanner) declared() (reference.SequenceRecord, bool) {
	if s.opts.dictionary == nil {
		return reference.SequenceRecord{}, false
	}
	record, _, ok := s.opts.dictionary.Get(s.name)
	return record, ok
}

// readBody appends the bases of every line up to the next header to bases.
func (s *Scanner) readBody(bases []byte) ([]byte, error) {
	for {
		header, err := s.atHeader()
		if err == io.EOF || header {
			return bases, nil
		}
		if err != nil {
			return nil, err
		}
		line, err := s.readLine()
		if err != nil {
			return nil, err
		}
		bases = append(bases, bytes.TrimRight(line, " \t\r\v\f")...)
	}
}

// readDeclared reads a record whose length is known from the dictionary.
func (s *Scanner) readDeclared(record reference.SequenceRecord) ([]byte, error) {
	bases, err := s.readBody(make([]byte, 0, record.Length))
	if err != nil {
		return nil, err
	}
	if uint64(len(bases)) < record.Length {
		return nil, s.formatError(errors.Errorf("found %d bases, dictionary declares %d", len(bases), record.Length))
	}
	if trailing := bytes.TrimSpace(bases[record.Length:]); len(trailing) > 0 {
		return nil, s.formatError(errors.Errorf("found more bases than the %d declared by the dictionary", record.Length))
	}
	return bases[:record.Length], nil
}

func truncate(line []byte) []byte {
	if len(line) > 20 {
		return line[:20]
	}
	return line
}

// Reset returns to the start of the input.  Scanners created by OpenScanner
// reopen their file; otherwise the input must implement io.Seeker or
// reference.ErrUnsupportedOperation is returned.
func (s *Scanner) Reset() error {
	if s.closed {
		return &reference.Error{Kind: reference.ErrIO, Op: "resetting", Source: s.opts.name, Err: errors.New("scanner is closed")}
	}
	switch {
	case s.reopen != nil:
		s.release()
		r, closers, err := s.reopen()
		if err != nil {
			return err
		}
		s.r, s.closers = r, closers
	default:
		seeker, ok := s.r.(io.Seeker)
		if !ok {
			return &reference.Error{Kind: reference.ErrUnsupportedOperation, Op: "resetting", Source: s.opts.name, Err: errors.New("input is not seekable")}
		}
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return reference.IOError("resetting", s.opts.name, err)
		}
	}
	s.br.Reset(s.r)
	s.state, s.ordinal, s.name = awaitingHeader, 0, ""
	return nil
}

// IsIndexed returns false.
func (s *Scanner) IsIndexed() bool {
	return false
}

// Sequence is not supported by Scanner.
func (s *Scanner) Sequence(name string) (*reference.Sequence, error) {
	return nil, &reference.Error{Kind: reference.ErrUnsupportedOperation, Op: "query", Source: s.opts.name, Contig: name, Err: errors.New("FASTA input is not indexed")}
}

// Subsequence is not supported by Scanner.
func (s *Scanner) Subsequence(name string, start, stop uint64) (*reference.Sequence, error) {
	return nil, &reference.Error{Kind: reference.ErrUnsupportedOperation, Op: "query", Source: s.opts.name, Contig: name, Start: start, Stop: stop, Err: errors.New("FASTA input is not indexed")}
}

// Dictionary returns the dictionary given with WithDictionary.
func (s *Scanner) Dictionary() (*reference.Dictionary, error) {
	if s.opts.dictionary == nil {
		return nil, &reference.Error{Kind: reference.ErrUnsupportedOperation, Op: "dictionary", Source: s.opts.name, Err: errors.New("no dictionary available")}
	}
	return s.opts.dictionary, nil
}

func (s *Scanner) release() {
	for _, c := range s.closers {
		c.Close()
	}
	s.closers = nil
}

// Close releases any file opened by OpenScanner.  Calling Close more than
// once has no effect.
func (s *Scanner) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
