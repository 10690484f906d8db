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

package twobit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/googlegenomics/refget/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expected returns what a query over seq should produce.
func expected(seq []byte, mask bool) []byte {
	out := make([]byte, len(seq))
	for i, b := range seq {
		switch {
		case isUnknown(b):
			out[i] = 'n'
		case mask:
			out[i] = b
		default:
			out[i] = bytes.ToLower([]byte{b})[0]
		}
	}
	return out
}

var testSequences = []reference.Sequence{
	{Name: "chr1", Bases: []byte("ACGTACGTANNNNNNacgtA")},
	{Name: "chr2", Bases: []byte("GATTACAgattacaCCGGTTAAcgtRYacgT")},
	{Name: "empty"},
}

func newTestReader(t *testing.T) *Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testSequences))
	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return r
}

// rawFile encodes a single-contig file by hand.
func rawFile(order binary.ByteOrder, name string, size uint32, n, mask [][2]uint32, packed []byte) []byte {
	var b bytes.Buffer
	put := func(v interface{}) { binary.Write(&b, order, v) }
	put([]uint32{signature, 0, 1, 0})
	b.WriteByte(byte(len(name)))
	b.WriteString(name)
	put(uint32(16 + 1 + len(name) + 4))
	put(size)
	for _, runs := range [][][2]uint32{n, mask} {
		put(uint32(len(runs)))
		for _, r := range runs {
			put(r[0])
		}
		for _, r := range runs {
			put(r[1])
		}
	}
	put(uint32(0))
	b.Write(packed)
	return b.Bytes()
}

func TestQuery_UnknownRun(t *testing.T) {
	r := newTestReader(t)
	for _, mask := range []bool{false, true} {
		got, err := r.Query("chr1", 1, 20, mask)
		require.NoError(t, err)
		assert.Equal(t, "nnnnnn", string(got[9:15]), "mask=%v", mask)
	}

	got, err := r.Query("chr1", 1, 20, false)
	require.NoError(t, err)
	assert.Equal(t, "acgtacgtannnnnnacgta", string(got))

	got, err = r.Query("chr1", 1, 20, true)
	require.NoError(t, err)
	assert.Equal(t, "ACGTACGTAnnnnnnacgtA", string(got))
}

func TestQuery_MaskingOnlyChangesCase(t *testing.T) {
	r := newTestReader(t)
	for _, s := range testSequences[:2] {
		plain, err := r.Query(s.Name, 1, uint64(len(s.Bases)), false)
		require.NoError(t, err)
		masked, err := r.Query(s.Name, 1, uint64(len(s.Bases)), true)
		require.NoError(t, err)
		assert.Equal(t, string(bytes.ToUpper(plain)), string(bytes.ToUpper(masked)), s.Name)
	}
}

func TestQuery_AllRanges(t *testing.T) {
	r := newTestReader(t)
	for _, s := range testSequences[:2] {
		for _, mask := range []bool{false, true} {
			want := expected(s.Bases, mask)
			for start := 1; start <= len(s.Bases); start++ {
				for stop := start; stop <= len(s.Bases); stop++ {
					got, err := r.Query(s.Name, uint64(start), uint64(stop), mask)
					require.NoError(t, err)
					require.Equal(t, string(want[start-1:stop]), string(got), "%s:%d-%d mask=%v", s.Name, start, stop, mask)
				}
			}
		}
	}
}

func TestQuery_Errors(t *testing.T) {
	r := newTestReader(t)
	testCases := []struct {
		name        string
		contig      string
		start, stop uint64
		kind        error
	}{
		{"unknown contig", "chrX", 1, 1, reference.ErrNotFound},
		{"past end", "chr1", 1, 21, reference.ErrOutOfRange},
		{"zero start", "chr1", 0, 5, reference.ErrMalformedQuery},
		{"reversed", "chr1", 5, 4, reference.ErrMalformedQuery},
		{"empty contig", "empty", 1, 1, reference.ErrOutOfRange},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Query(tc.contig, tc.start, tc.stop, false)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}
}

func TestByteOrders(t *testing.T) {
	// ACGTAC packs as 10 01 11 00, 10 01 00 00.
	packed := []byte{0x9c, 0x90}
	n := [][2]uint32{{4, 1}}
	mask := [][2]uint32{{1, 2}}
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		t.Run(order.String(), func(t *testing.T) {
			r, err := NewReader(bytes.NewReader(rawFile(order, "chr1", 6, n, mask, packed)))
			require.NoError(t, err)
			assert.Equal(t, []string{"chr1"}, r.Names())

			got, err := r.Query("chr1", 1, 6, true)
			require.NoError(t, err)
			assert.Equal(t, "AcgTnC", string(got))

			got, err = r.Query("chr1", 1, 6, false)
			require.NoError(t, err)
			assert.Equal(t, "acgtnc", string(got))
		})
	}
}

func TestNewReader_Invalid(t *testing.T) {
	valid := rawFile(binary.LittleEndian, "chr1", 6, nil, nil, []byte{0x9c, 0x90})
	badVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badVersion[4:], 1)
	badSignature := append([]byte(nil), valid...)
	copy(badSignature, "\x00\x01\x02\x03")

	testCases := []struct {
		name string
		data []byte
		kind error
	}{
		{"empty", nil, reference.ErrFormat},
		{"bad signature", badSignature, reference.ErrFormat},
		{"unsupported version", badVersion, reference.ErrUnsupportedVersion},
		{"truncated index", valid[:20], reference.ErrFormat},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tc.data))
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}
}

func TestDictionary(t *testing.T) {
	r := newTestReader(t)
	d, err := r.Dictionary()
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1", "chr2", "empty"}, d.Names())
	for i, s := range testSequences {
		assert.Equal(t, uint64(len(s.Bases)), d.Sequences[i].Length)
	}

	again, err := r.Dictionary()
	require.NoError(t, err)
	assert.True(t, d == again)

	length, err := r.Length("chr2")
	require.NoError(t, err)
	assert.Equal(t, uint64(len(testSequences[1].Bases)), length)
}

func TestSequence(t *testing.T) {
	r := newTestReader(t)
	s, err := r.Sequence("chr2", true)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Index)
	assert.Equal(t, string(expected(testSequences[1].Bases, true)), string(s.Bases))

	s, err = r.Sequence("empty", false)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestFindGreatestLowerBound(t *testing.T) {
	starts := []uint32{5, 10, 20}
	testCases := []struct {
		val  uint32
		want int
	}{
		{0, 0},
		{4, 0},
		{5, 0},
		{9, 0},
		{10, 1},
		{19, 1},
		{20, 2},
		{100, 2},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, findGreatestLowerBound(starts, tc.val), "val %d", tc.val)
	}
}

func TestWrite_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		seqs []reference.Sequence
	}{
		{"empty name", []reference.Sequence{{Bases: []byte("A")}}},
		{"duplicate", []reference.Sequence{{Name: "a"}, {Name: "a"}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.Error(t, Write(&buf, tc.seqs))
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.2bit")
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testSequences))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	r, err := Open(path)
	require.NoError(t, err)
	got, err := r.Query("chr2", 1, 7, true)
	require.NoError(t, err)
	assert.Equal(t, "GATTACA", string(got))
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())

	_, err = Open(filepath.Join(dir, "missing.2bit"))
	assert.True(t, errors.Is(err, reference.ErrNotFound), "got %v", err)
}
