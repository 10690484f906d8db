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
	"bufio"
	"io"
	"math"

	ibinary "github.com/googlegenomics/refget/internal/binary"
	"github.com/googlegenomics/refget/reference"
	"github.com/pkg/errors"
)

// codes maps upper-case bases to their 2-bit code.  Anything else is stored
// as an unknown base.
var codes = map[byte]byte{'T': 0, 'C': 1, 'A': 2, 'G': 3}

// runsOf returns the runs of bases in seq for which match is true.
func runsOf(seq []byte, match func(byte) bool) runList {
	var l runList
	for i := 0; i < len(seq); {
		if !match(seq[i]) {
			i++
			continue
		}
		j := i
		for j < len(seq) && match(seq[j]) {
			j++
		}
		l.starts = append(l.starts, uint32(i))
		l.sizes = append(l.sizes, uint32(j-i))
		i = j
	}
	return l
}

func isUnknown(b byte) bool {
	_, ok := codes[upper(b)]
	return !ok
}

func isLower(b byte) bool {
	return b >= 'a' && b <= 'z'
}

func upper(b byte) byte {
	if isLower(b) {
		return b - 'a' + 'A'
	}
	return b
}

// pack packs seq four bases to a byte, high bits first.  Unknown bases are
// packed as T.
func pack(seq []byte) []byte {
	packed := make([]byte, packedSize(uint32(len(seq))))
	for i, b := range seq {
		packed[i>>2] |= codes[upper(b)] << (6 - 2*uint(i&3))
	}
	return packed
}

// recordSize returns the encoded size of a contig record.
func recordSize(length int, n, mask runList) uint64 {
	return 4 + 4 + 8*uint64(len(n.starts)) + 4 + 8*uint64(len(mask.starts)) + 4 + uint64(packedSize(uint32(length)))
}

// Write encodes seqs as a little-endian 2-bit file.  Runs of bases other
// than ACGT are recorded as unknown and lower-case runs as soft-masked.
func Write(w io.Writer, seqs []reference.Sequence) error {
	type record struct {
		seq   []byte
		n     runList
		mask  runList
		start uint64
	}

	offset := uint64(16)
	for _, s := range seqs {
		if len(s.Name) == 0 || len(s.Name) > math.MaxUint8 {
			return errors.Errorf("invalid contig name %q", s.Name)
		}
		if uint64(len(s.Bases)) > math.MaxUint32 {
			return errors.Errorf("contig %s is too long", s.Name)
		}
		offset += 1 + uint64(len(s.Name)) + 4
	}

	records := make([]record, len(seqs))
	seen := make(map[string]bool)
	for i, s := range seqs {
		if seen[s.Name] {
			return errors.Errorf("duplicate contig %q", s.Name)
		}
		seen[s.Name] = true
		records[i] = record{
			seq:   s.Bases,
			n:     runsOf(s.Bases, isUnknown),
			mask:  runsOf(s.Bases, isLower),
			start: offset,
		}
		offset += recordSize(len(s.Bases), records[i].n, records[i].mask)
		if records[i].start > math.MaxUint32 {
			return errors.New("file too large for 32-bit offsets")
		}
	}

	bw := bufio.NewWriter(w)
	put := func(data interface{}) error {
		return ibinary.Write(bw, data)
	}
	if err := put([]uint32{signature, 0, uint32(len(seqs)), 0}); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for i, s := range seqs {
		if err := bw.WriteByte(byte(len(s.Name))); err != nil {
			return errors.Wrap(err, "writing index")
		}
		if _, err := bw.WriteString(s.Name); err != nil {
			return errors.Wrap(err, "writing index")
		}
		if err := put(uint32(records[i].start)); err != nil {
			return errors.Wrap(err, "writing index")
		}
	}
	for i, r := range records {
		for _, data := range []interface{}{
			uint32(len(r.seq)),
			uint32(len(r.n.starts)), r.n.starts, r.n.sizes,
			uint32(len(r.mask.starts)), r.mask.starts, r.mask.sizes,
			uint32(0),
			pack(r.seq),
		} {
			if err := put(data); err != nil {
				return errors.Wrapf(err, "writing contig %s", seqs[i].Name)
			}
		}
	}
	return bw.Flush()
}
