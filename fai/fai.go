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

// Package fai reads, writes and builds the .fai index of a FASTA file.
package fai

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/googlegenomics/refget/reference"
	"github.com/pkg/errors"
)

// Extension is appended to the name of a FASTA file to locate its index.
const Extension = ".fai"

// Entry describes the layout of one contig inside a FASTA file.  Entries are
// values; use WithName to obtain a renamed copy.
type Entry struct {
	Name string
	// Length is the number of bases in the contig.
	Length uint64
	// Offset is the byte offset of the first base.
	Offset       uint64
	BasesPerLine uint32
	// BytesPerLine includes the line terminator.
	BytesPerLine uint32
	// Ordinal is the position of the contig in the index.
	Ordinal uint32
}

// Equal reports whether e and o describe the same layout.  The ordinal is
// not compared.
func (e Entry) Equal(o Entry) bool {
	return e.Name == o.Name && e.Length == o.Length && e.Offset == o.Offset &&
		e.BasesPerLine == o.BasesPerLine && e.BytesPerLine == o.BytesPerLine
}

// Hash returns a hash of the entry name.
func (e Entry) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(e.Name))
	return h.Sum64()
}

// WithName returns a copy of e named name.
func (e Entry) WithName(name string) Entry {
	e.Name = name
	return e
}

// TerminatorLength returns the width of the line terminator.
func (e Entry) TerminatorLength() uint32 {
	return e.BytesPerLine - e.BasesPerLine
}

// Position returns the file offset of the base at the 0-based position pos.
func (e Entry) Position(pos uint64) uint64 {
	if e.BasesPerLine == 0 {
		return e.Offset
	}
	bpl := uint64(e.BasesPerLine)
	return e.Offset + pos/bpl*uint64(e.BytesPerLine) + pos%bpl
}

func (e Entry) String() string {
	return fmt.Sprintf("%s\t%d\t%d\t%d\t%d", e.Name, e.Length, e.Offset, e.BasesPerLine, e.BytesPerLine)
}

// Index holds the entries of a FASTA index in file order.
type Index struct {
	entries []Entry
	byName  map[string]int
}

// New returns an index holding entries in the given order.  Ordinals are
// reassigned from the order.
func New(entries []Entry) (*Index, error) {
	x := &Index{byName: make(map[string]int, len(entries))}
	for _, entry := range entries {
		if err := x.add(entry); err != nil {
			return nil, err
		}
	}
	return x, nil
}

func (x *Index) add(entry Entry) error {
	if _, ok := x.byName[entry.Name]; ok {
		return errors.Errorf("duplicate contig %q", entry.Name)
	}
	if entry.BytesPerLine < entry.BasesPerLine {
		return errors.Errorf("contig %q: %d bytes per line is less than %d bases per line", entry.Name, entry.BytesPerLine, entry.BasesPerLine)
	}
	if entry.BasesPerLine == 0 && entry.Length != 0 {
		return errors.Errorf("contig %q: zero bases per line", entry.Name)
	}
	entry.Ordinal = uint32(len(x.entries))
	x.byName[entry.Name] = len(x.entries)
	x.entries = append(x.entries, entry)
	return nil
}

// Read parses an index from r.  Each non-blank line holds at least five
// whitespace separated fields: name, length, offset, bases per line and bytes
// per line.
func Read(r io.Reader) (*Index, error) {
	x := &Index{byName: make(map[string]int)}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 5 {
			return nil, formatError(errors.Errorf("line %d: expected 5 fields, found %d", line, len(fields)))
		}
		var numbers [4]uint64
		for i := range numbers {
			bits := 64
			if i >= 2 {
				bits = 32
			}
			n, err := strconv.ParseUint(fields[i+1], 10, bits)
			if err != nil {
				return nil, formatError(errors.Wrapf(err, "line %d: field %d", line, i+2))
			}
			numbers[i] = n
		}
		entry := Entry{
			Name:         fields[0],
			Length:       numbers[0],
			Offset:       numbers[1],
			BasesPerLine: uint32(numbers[2]),
			BytesPerLine: uint32(numbers[3]),
		}
		if err := x.add(entry); err != nil {
			return nil, formatError(errors.Wrapf(err, "line %d", line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, reference.IOError("reading index", "", err)
	}
	return x, nil
}

func formatError(err error) error {
	return &reference.Error{Kind: reference.ErrFormat, Op: "reading index", Err: err}
}

// ReadFile parses the index stored in the named file.  A missing file is
// reported as reference.ErrNotFound.
func ReadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &reference.Error{Kind: reference.ErrNotFound, Op: "opening index", Source: path, Err: err}
		}
		return nil, reference.IOError("opening index", path, err)
	}
	defer f.Close()

	x, err := Read(f)
	if e, ok := err.(*reference.Error); ok {
		e.Source = path
	}
	return x, err
}

// Get returns the entry for the named contig.
func (x *Index) Get(name string) (Entry, error) {
	i, ok := x.byName[name]
	if !ok {
		return Entry{}, &reference.Error{Kind: reference.ErrNotFound, Op: "looking up contig", Contig: name}
	}
	return x.entries[i], nil
}

// Entries returns a copy of the entries in file order.
func (x *Index) Entries() []Entry {
	return append([]Entry(nil), x.entries...)
}

// At returns the entry at position i in file order.
func (x *Index) At(i int) Entry {
	return x.entries[i]
}

// Len returns the number of entries.
func (x *Index) Len() int {
	return len(x.entries)
}

// Names returns the contig names in file order.
func (x *Index) Names() []string {
	names := make([]string, len(x.entries))
	for i, entry := range x.entries {
		names[i] = entry.Name
	}
	return names
}

// Write writes the index to w, one tab separated line per entry.
func (x *Index) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, entry := range x.entries {
		fmt.Fprintf(bw, "%s\n", entry)
	}
	return bw.Flush()
}

// WriteFile writes the index to the named file.
func (x *Index) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return reference.IOError("creating index", path, err)
	}
	if err := x.Write(f); err != nil {
		f.Close()
		return reference.IOError("writing index", path, err)
	}
	return reference.IOError("closing index", path, f.Close())
}

// Dictionary returns the names and lengths of the indexed contigs.
func (x *Index) Dictionary() *reference.Dictionary {
	d := &reference.Dictionary{}
	for _, entry := range x.entries {
		d.Add(reference.SequenceRecord{Name: entry.Name, Length: entry.Length})
	}
	return d
}

// Validate checks that d lists the same contigs, in the same order and with
// the same lengths, as the index.  source names the FASTA file in errors.
func (x *Index) Validate(source string, d *reference.Dictionary) error {
	if d.Len() != x.Len() {
		return &reference.Error{
			Kind:   reference.ErrInconsistentMetadata,
			Op:     "checking dictionary",
			Source: source,
			Err:    errors.Errorf("dictionary has %d contigs, index has %d", d.Len(), x.Len()),
		}
	}
	for i, entry := range x.entries {
		record := d.Sequences[i]
		if record.Name != entry.Name {
			return &reference.Error{
				Kind:   reference.ErrInconsistentMetadata,
				Op:     "checking dictionary",
				Source: source,
				Contig: entry.Name,
				Err:    errors.Errorf("contig %d is named %q in the dictionary", i, record.Name),
			}
		}
		if record.Length != entry.Length {
			return &reference.Error{
				Kind:   reference.ErrInconsistentMetadata,
				Op:     "checking dictionary",
				Source: source,
				Contig: entry.Name,
				Err:    errors.Errorf("dictionary length %d, index length %d", record.Length, entry.Length),
			}
		}
	}
	return nil
}
