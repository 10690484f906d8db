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

package fai

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/googlegenomics/refget/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	input := "chr1\t62\t6\t70\t71\n\nchr2 10  80 4 5\nchrM\t16569\t100\t60\t62\textra\n"
	x, err := Read(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 3, x.Len())
	assert.Equal(t, []string{"chr1", "chr2", "chrM"}, x.Names())

	entry, err := x.Get("chr1")
	require.NoError(t, err)
	assert.Equal(t, Entry{Name: "chr1", Length: 62, Offset: 6, BasesPerLine: 70, BytesPerLine: 71}, entry)

	entry, err = x.Get("chrM")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), entry.Ordinal)
	assert.Equal(t, uint32(2), entry.TerminatorLength())

	_, err = x.Get("chrX")
	assert.True(t, errors.Is(err, reference.ErrNotFound), "got %v", err)
}

func TestRead_Invalid(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"too few fields", "chr1\t62\t6\t70\n"},
		{"non-numeric length", "chr1\tten\t6\t70\t71\n"},
		{"negative offset", "chr1\t62\t-6\t70\t71\n"},
		{"line width overflow", "chr1\t62\t6\t70\t99999999999\n"},
		{"duplicate contig", "chr1\t62\t6\t70\t71\nchr1\t62\t80\t70\t71\n"},
		{"bytes less than bases", "chr1\t62\t6\t70\t69\n"},
		{"zero bases per line", "chr1\t62\t6\t0\t1\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.input))
			assert.True(t, errors.Is(err, reference.ErrFormat), "got %v", err)
		})
	}
}

func TestEntries_Restartable(t *testing.T) {
	x, err := Read(strings.NewReader("a\t1\t3\t1\t2\nb\t2\t8\t2\t3\n"))
	require.NoError(t, err)

	first := x.Entries()
	first[0].Name = "changed"
	second := x.Entries()
	assert.Equal(t, "a", second[0].Name)
	assert.Len(t, second, 2)
}

func TestWriteRead(t *testing.T) {
	x, err := New([]Entry{
		{Name: "chr1", Length: 62, Offset: 6, BasesPerLine: 70, BytesPerLine: 71},
		{Name: "chr2", Length: 121, Offset: 75, BasesPerLine: 60, BytesPerLine: 61},
	})
	require.NoError(t, err)

	var buffer bytes.Buffer
	require.NoError(t, x.Write(&buffer))
	assert.Equal(t, "chr1\t62\t6\t70\t71\nchr2\t121\t75\t60\t61\n", buffer.String())

	path := filepath.Join(t.TempDir(), "ref.fa.fai")
	require.NoError(t, x.WriteFile(path))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, x.Entries(), got.Entries())
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.fai"))
	assert.True(t, errors.Is(err, reference.ErrNotFound), "got %v", err)
}

func TestEntry(t *testing.T) {
	entry := Entry{Name: "chr1", Length: 62, Offset: 6, BasesPerLine: 70, BytesPerLine: 71, Ordinal: 0}
	other := entry
	other.Ordinal = 4

	assert.True(t, entry.Equal(other))
	assert.Equal(t, entry.Hash(), other.Hash())

	renamed := entry.WithName("1")
	assert.Equal(t, "chr1", entry.Name)
	assert.Equal(t, "1", renamed.Name)
	assert.False(t, entry.Equal(renamed))
	assert.NotEqual(t, entry.Hash(), renamed.Hash())

	moved := entry
	moved.Offset = 7
	assert.False(t, entry.Equal(moved))
	assert.Equal(t, entry.Hash(), moved.Hash())
}

func TestEntry_Position(t *testing.T) {
	entry := Entry{Name: "chr1", Length: 25, Offset: 6, BasesPerLine: 10, BytesPerLine: 12}
	testCases := []struct {
		pos, want uint64
	}{
		{0, 6},
		{9, 15},
		{10, 18},
		{24, 34},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, entry.Position(tc.pos), "position %d", tc.pos)
	}
}

func TestBuild(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  []Entry
	}{
		{
			"single contig",
			">chr1\n" + strings.Repeat("A", 62) + "\n",
			[]Entry{{Name: "chr1", Length: 62, Offset: 6, BasesPerLine: 62, BytesPerLine: 63}},
		},
		{
			"wrapped contigs with descriptions",
			">chr1 first contig\nACGT\nACGT\nAC\n>chr2\tsecond\nGGGG\nG\n",
			[]Entry{
				{Name: "chr1", Length: 10, Offset: 19, BasesPerLine: 4, BytesPerLine: 5},
				{Name: "chr2", Length: 5, Offset: 45, BasesPerLine: 4, BytesPerLine: 5, Ordinal: 1},
			},
		},
		{
			"windows line endings",
			">chr1\r\nACGT\r\nAC\r\n",
			[]Entry{{Name: "chr1", Length: 6, Offset: 7, BasesPerLine: 4, BytesPerLine: 6}},
		},
		{
			"no final newline",
			">chr1\nACGT\nAC",
			[]Entry{{Name: "chr1", Length: 6, Offset: 6, BasesPerLine: 4, BytesPerLine: 5}},
		},
		{
			"blank line between contigs",
			">a\nACGT\n\n>b\nTT\n",
			[]Entry{
				{Name: "a", Length: 4, Offset: 3, BasesPerLine: 4, BytesPerLine: 5},
				{Name: "b", Length: 2, Offset: 12, BasesPerLine: 2, BytesPerLine: 3, Ordinal: 1},
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			x, err := Build(strings.NewReader(tc.input))
			require.NoError(t, err)
			assert.Equal(t, tc.want, x.Entries())
		})
	}
}

func TestBuild_Invalid(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"empty file", ""},
		{"no header", "ACGT\n"},
		{"empty name", ">\nACGT\n"},
		{"empty contig", ">a\n>b\nACGT\n"},
		{"trailing empty contig", ">a\nACGT\n>b\n"},
		{"long line", ">a\nACGT\nACGTA\n"},
		{"two short lines", ">a\nACGT\nAC\nA\n"},
		{"short line then full line", ">a\nACGT\nAC\nACGT\n"},
		{"mixed terminators", ">a\nACGT\r\nAC\n"},
		{"duplicate contig", ">a\nACGT\n>a\nACGT\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(strings.NewReader(tc.input))
			assert.True(t, errors.Is(err, reference.ErrFormat), "got %v", err)
		})
	}
}

func TestValidate(t *testing.T) {
	x, err := Read(strings.NewReader("chr1\t62\t6\t70\t71\nchr2\t10\t80\t10\t11\n"))
	require.NoError(t, err)

	dictionary := func(records ...reference.SequenceRecord) *reference.Dictionary {
		return &reference.Dictionary{Sequences: records}
	}
	testCases := []struct {
		name string
		d    *reference.Dictionary
		ok   bool
	}{
		{"matching", dictionary(reference.SequenceRecord{Name: "chr1", Length: 62}, reference.SequenceRecord{Name: "chr2", Length: 10}), true},
		{"fewer contigs", dictionary(reference.SequenceRecord{Name: "chr1", Length: 62}), false},
		{"more contigs", dictionary(reference.SequenceRecord{Name: "chr1", Length: 62}, reference.SequenceRecord{Name: "chr2", Length: 10}, reference.SequenceRecord{Name: "chr3", Length: 1}), false},
		{"swapped order", dictionary(reference.SequenceRecord{Name: "chr2", Length: 10}, reference.SequenceRecord{Name: "chr1", Length: 62}), false},
		{"wrong length", dictionary(reference.SequenceRecord{Name: "chr1", Length: 62}, reference.SequenceRecord{Name: "chr2", Length: 11}), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := x.Validate("ref.fa", tc.d)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, reference.ErrInconsistentMetadata), "got %v", err)
			assert.Contains(t, err.Error(), "ref.fa")
		})
	}
}

func TestDictionary(t *testing.T) {
	x, err := Read(strings.NewReader("chr1\t62\t6\t70\t71\n"))
	require.NoError(t, err)
	assert.NoError(t, x.Validate("ref.fa", x.Dictionary()))
}
