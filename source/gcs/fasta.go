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

package gcs

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/googlegenomics/refget/bgzf"
	"github.com/googlegenomics/refget/fai"
	"github.com/googlegenomics/refget/fasta"
	"github.com/googlegenomics/refget/gzi"
	"github.com/googlegenomics/refget/reference"
	"github.com/googlegenomics/refget/source"
)

// sequentialBufferSize is the size of the range requests made while
// reading index objects.
const sequentialBufferSize = 1 << 20

// OpenFASTA returns an IndexedReader over the FASTA object gs://bucket/object.
// The object's .fai index must exist next to it, as must its .gzi index
// when the object is BGZF compressed.  A .dict object is used for the
// dictionary cross-check when present.
func OpenFASTA(ctx context.Context, client *storage.Client, bucket, object string, opts ...fasta.Option) (*fasta.IndexedReader, error) {
	return openFASTA(func(name string) *Object {
		return Open(ctx, client, bucket, name)
	}, object, opts...)
}

func openFASTA(open func(object string) *Object, object string, opts ...fasta.Option) (*fasta.IndexedReader, error) {
	data := open(object)

	index, err := fai.Read(sequential(open(object + fai.Extension)))
	if err != nil {
		return nil, named(err, data.Name()+fai.Extension)
	}

	dictionary := reference.DictionaryPath(object)
	d, err := reference.ReadDictionary(sequential(open(dictionary)))
	switch {
	case err == nil:
		opts = append([]fasta.Option{fasta.WithDictionary(d)}, opts...)
	case !errors.Is(err, reference.ErrNotFound):
		return nil, err
	}

	header := make([]byte, 18)
	n, err := data.ReadAt(header, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}

	var src source.ByteSource = data
	if bgzf.IsBGZF(header[:n]) {
		blocks, err := gzi.Read(sequential(open(object + gzi.Extension)))
		if err != nil {
			return nil, named(err, data.Name()+gzi.Extension)
		}
		if src, err = source.NewCompressed(data.Name(), data, blocks); err != nil {
			return nil, err
		}
	}
	return fasta.NewIndexedReader(src, index, opts...)
}

// sequential reads o from the start in large ranges.
func sequential(o *Object) io.Reader {
	return bufio.NewReaderSize(io.NewSectionReader(o, 0, math.MaxInt64), sequentialBufferSize)
}

func named(err error, name string) error {
	if e, ok := err.(*reference.Error); ok && !strings.HasPrefix(e.Source, "gs://") {
		e.Source = name
	}
	return err
}
