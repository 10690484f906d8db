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
	"io"
	"math"
	"os"

	"github.com/googlegenomics/refget/bgzf"
	"github.com/googlegenomics/refget/fai"
	"github.com/googlegenomics/refget/gzi"
	"github.com/googlegenomics/refget/reference"
	"github.com/googlegenomics/refget/source"
	"github.com/pkg/errors"
)

// BuildIndex scans the FASTA file at path and returns its .fai index and,
// for BGZF input, its .gzi index.  Gzip files that are not BGZF cannot be
// indexed.
func BuildIndex(path string) (*fai.Index, *gzi.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &reference.Error{Kind: reference.ErrNotFound, Op: "indexing", Source: path, Err: err}
		}
		return nil, nil, reference.IOError("indexing", path, err)
	}
	defer f.Close()

	header := make([]byte, 18)
	n, err := f.ReadAt(header, 0)
	if err != nil && err != io.EOF {
		return nil, nil, reference.IOError("indexing", path, err)
	}
	header = header[:n]

	if !bgzf.IsBGZF(header) {
		if n >= 2 && header[0] == 0x1f && header[1] == 0x8b {
			return nil, nil, &reference.Error{Kind: reference.ErrFormat, Op: "indexing", Source: path, Err: errors.New("gzip file is not BGZF compressed")}
		}
		index, err := fai.Build(io.NewSectionReader(f, 0, math.MaxInt64))
		return index, nil, sourced(err, path)
	}

	blocks, err := gzi.Build(bufio.NewReader(io.NewSectionReader(f, 0, math.MaxInt64)))
	if err != nil {
		return nil, nil, sourced(err, path)
	}
	r, err := bgzf.NewReader(f)
	if err != nil {
		return nil, nil, &reference.Error{Kind: reference.ErrFormat, Op: "indexing", Source: path, Err: err}
	}
	index, err := fai.Build(r)
	if err != nil {
		return nil, nil, sourced(err, path)
	}
	return index, blocks, nil
}

// sourced sets the source of a *reference.Error that has none.
func sourced(err error, path string) error {
	if e, ok := err.(*reference.Error); ok && e.Source == "" {
		e.Source = path
	}
	return err
}

// OpenIndexed is like Open but always returns an IndexedReader, building
// any missing index in memory.
func OpenIndexed(path string, opts ...Option) (*IndexedReader, error) {
	r, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	if indexed, ok := r.(*IndexedReader); ok {
		return indexed, nil
	}
	r.Close()

	opts, err = withDictionaryFile(path, opts)
	if err != nil {
		return nil, err
	}
	index, blocks, err := BuildIndex(path)
	if err != nil {
		return nil, err
	}

	var src source.ByteSource
	if blocks == nil {
		src, err = openSource(path, newOptions(opts).mmap)
	} else {
		src, err = openCompressed(path, blocks)
	}
	if err != nil {
		return nil, err
	}
	return NewIndexedReader(src, index, opts...)
}

func openCompressed(path string, blocks *gzi.Index) (source.ByteSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, reference.IOError("opening", path, err)
	}
	c, err := source.NewCompressed(path, f, blocks)
	if err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}
