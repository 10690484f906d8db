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
	"bytes"
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/googlegenomics/refget/fasta"
	"github.com/googlegenomics/refget/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket map[string][]byte

func (b fakeBucket) open(object string) *Object {
	handle := fakeHandle{err: storage.ErrObjectNotExist}
	if data, ok := b[object]; ok {
		handle = fakeHandle{data: data}
	}
	return NewObject(context.Background(), "gs://bucket/"+object, handle)
}

func newBucket(t *testing.T, object string, compressed bool, seq []byte) fakeBucket {
	var data, index, dict, blocks bytes.Buffer
	opts := []fasta.WriterOption{fasta.IndexTo(&index), fasta.DictionaryTo(&dict)}
	if compressed {
		opts = append(opts, fasta.CompressTo(&blocks))
	}
	w, err := fasta.NewWriter(&data, opts...)
	require.NoError(t, err)
	require.NoError(t, w.Add("chr1", seq))
	require.NoError(t, w.Close())

	b := fakeBucket{
		object:                           data.Bytes(),
		object + ".fai":                  index.Bytes(),
		reference.DictionaryPath(object): dict.Bytes(),
	}
	if compressed {
		b[object+".gzi"] = blocks.Bytes()
	}
	return b
}

func TestOpenFASTA(t *testing.T) {
	seq := bytes.Repeat([]byte("ACGTTGCAAC"), 10000)
	for _, tc := range []struct {
		object     string
		compressed bool
	}{
		{"ref.fa", false},
		{"ref.fa.gz", true},
	} {
		t.Run(tc.object, func(t *testing.T) {
			b := newBucket(t, tc.object, tc.compressed, seq)
			r, err := openFASTA(b.open, tc.object)
			require.NoError(t, err)
			defer r.Close()

			s, err := r.Subsequence("chr1", 70001, 70010)
			require.NoError(t, err)
			assert.Equal(t, string(seq[70000:70010]), string(s.Bases))

			d, err := r.Dictionary()
			require.NoError(t, err)
			assert.NotEmpty(t, d.Sequences[0].MD5)
		})
	}
}

func TestOpenFASTA_Errors(t *testing.T) {
	seq := []byte("ACGT")

	missingIndex := newBucket(t, "ref.fa", false, seq)
	delete(missingIndex, "ref.fa.fai")
	_, err := openFASTA(missingIndex.open, "ref.fa")
	assert.True(t, errors.Is(err, reference.ErrNotFound), "got %v", err)

	missingBlocks := newBucket(t, "ref.fa.gz", true, seq)
	delete(missingBlocks, "ref.fa.gz.gzi")
	_, err = openFASTA(missingBlocks.open, "ref.fa.gz")
	assert.True(t, errors.Is(err, reference.ErrNotFound), "got %v", err)

	inconsistent := newBucket(t, "ref.fa", false, seq)
	inconsistent["ref.dict"] = []byte("@SQ\tSN:chr1\tLN:5\n")
	_, err = openFASTA(inconsistent.open, "ref.fa")
	assert.True(t, errors.Is(err, reference.ErrInconsistentMetadata), "got %v", err)

	// A missing dictionary is not an error.
	undeclared := newBucket(t, "ref.fa", false, seq)
	delete(undeclared, "ref.dict")
	r, err := openFASTA(undeclared.open, "ref.fa")
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}
