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
	"errors"
	"os"

	"github.com/googlegenomics/refget/fai"
	"github.com/googlegenomics/refget/reference"
	"github.com/googlegenomics/refget/source"
)

// Open returns a reader for the FASTA file at path.  When path + ".fai"
// exists (and, for BGZF input, path + ".gzi") the result is an
// IndexedReader, otherwise a Scanner.  A dictionary found next to the file
// is used unless one is given with WithDictionary.
func Open(path string, opts ...Option) (Reader, error) {
	opts, err := withDictionaryFile(path, opts)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)

	index, err := fai.ReadFile(path + fai.Extension)
	if errors.Is(err, reference.ErrNotFound) {
		return OpenScanner(path, opts...)
	}
	if err != nil {
		return nil, err
	}

	src, err := openSource(path, o.mmap)
	if errors.Is(err, reference.ErrNotFound) {
		if _, statErr := os.Stat(path); statErr == nil {
			// Compressed input without a .gzi index.
			return OpenScanner(path, opts...)
		}
	}
	if err != nil {
		return nil, err
	}
	return NewIndexedReader(src, index, opts...)
}

// withDictionaryFile adds the dictionary stored next to path to opts unless
// opts already supply one.
func withDictionaryFile(path string, opts []Option) ([]Option, error) {
	if newOptions(opts).dictionary != nil {
		return opts, nil
	}
	d, err := reference.ReadDictionaryFile(reference.DictionaryPath(path))
	switch {
	case err == nil:
		return append(opts, WithDictionary(d)), nil
	case errors.Is(err, reference.ErrNotFound):
		return opts, nil
	}
	return nil, err
}

func openSource(path string, mmap bool) (source.ByteSource, error) {
	if !mmap {
		return source.Open(path)
	}
	src, err := source.Open(path)
	if err != nil {
		return nil, err
	}
	if _, ok := src.(*source.File); !ok {
		return src, nil
	}
	src.Close()
	return source.OpenMapped(path)
}
