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

// Package fasta reads and writes FASTA reference files.  IndexedReader
// answers random range queries using a .fai index, Scanner iterates over the
// records of any FASTA stream and Writer produces FASTA files together with
// their index and dictionary.
package fasta

import (
	"github.com/googlegenomics/refget/reference"
)

// Reader is implemented by IndexedReader and Scanner.
type Reader interface {
	// Next returns the next sequence in file order, or io.EOF once every
	// sequence has been returned.
	Next() (*reference.Sequence, error)
	// Reset restarts iteration from the first sequence.
	Reset() error
	// IsIndexed reports whether Sequence and Subsequence are supported.
	IsIndexed() bool
	// Sequence returns the whole of the named sequence.
	Sequence(name string) (*reference.Sequence, error)
	// Subsequence returns bases start to stop (1-based, inclusive) of the
	// named sequence.
	Subsequence(name string, start, stop uint64) (*reference.Sequence, error)
	// Dictionary lists the sequences of the reference, if known.
	Dictionary() (*reference.Dictionary, error)
	Close() error
}

var (
	_ Reader = (*IndexedReader)(nil)
	_ Reader = (*Scanner)(nil)
)

// Option configures the readers returned by NewIndexedReader, NewScanner
// and Open.
type Option func(*options)

type options struct {
	dictionary    *reference.Dictionary
	bufferSize    int
	name          string
	truncateNames bool
	mmap          bool
}

func newOptions(opts []Option) options {
	o := options{bufferSize: reference.DefaultBufferSize, truncateNames: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithDictionary supplies the sequence dictionary of the reference.  An
// IndexedReader checks it against its index; a Scanner uses the declared
// lengths to size buffers and to detect truncated records.
func WithDictionary(d *reference.Dictionary) Option {
	return func(o *options) {
		o.dictionary = d
	}
}

// WithBufferSize bounds the size of a single read from the byte source.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithName sets the identifier used in errors.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// TruncateNames controls whether a Scanner truncates header lines at the
// first whitespace character to form the sequence name.  The default is
// true.
func TruncateNames(truncate bool) Option {
	return func(o *options) {
		o.truncateNames = truncate
	}
}

// WithMmap makes Open memory map uncompressed indexed files.
func WithMmap() Option {
	return func(o *options) {
		o.mmap = true
	}
}
