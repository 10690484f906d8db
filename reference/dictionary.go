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

package reference

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DictionaryExtension replaces the extension of a FASTA file to name its
// sequence dictionary.
const DictionaryExtension = ".dict"

// SequenceRecord describes one contig of a reference.
type SequenceRecord struct {
	Name   string
	Length uint64
	// MD5 is the lower-case hex digest of the upper-cased bases, if known.
	MD5 string
}

// Dictionary lists the contigs of a reference in order.
type Dictionary struct {
	Sequences []SequenceRecord
}

// Len returns the number of contigs.
func (d *Dictionary) Len() int {
	return len(d.Sequences)
}

// Get returns the record named name and its position.
func (d *Dictionary) Get(name string) (SequenceRecord, int, bool) {
	for i, record := range d.Sequences {
		if record.Name == name {
			return record, i, true
		}
	}
	return SequenceRecord{}, -1, false
}

// Names returns the contig names in order.
func (d *Dictionary) Names() []string {
	names := make([]string, len(d.Sequences))
	for i, record := range d.Sequences {
		names[i] = record.Name
	}
	return names
}

// Add appends a record.
func (d *Dictionary) Add(record SequenceRecord) {
	d.Sequences = append(d.Sequences, record)
}

// ReadDictionary parses the @SQ lines of a SAM header.  Other header lines
// are ignored.
func ReadDictionary(r io.Reader) (*Dictionary, error) {
	var (
		d       Dictionary
		scanner = bufio.NewScanner(r)
		line    int
	)
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(text, "@SQ\t") {
			continue
		}
		var (
			record             SequenceRecord
			hasName, hasLength bool
		)
		for _, field := range strings.Split(text, "\t")[1:] {
			if len(field) < 3 || field[2] != ':' {
				return nil, &Error{Kind: ErrFormat, Op: "reading dictionary", Err: errors.Errorf("line %d: malformed field %q", line, field)}
			}
			switch tag, value := field[:2], field[3:]; tag {
			case "SN":
				record.Name, hasName = value, true
			case "LN":
				length, err := strconv.ParseUint(value, 10, 64)
				if err != nil {
					return nil, &Error{Kind: ErrFormat, Op: "reading dictionary", Err: errors.Wrapf(err, "line %d: parsing length", line)}
				}
				record.Length, hasLength = length, true
			case "M5":
				record.MD5 = strings.ToLower(value)
			}
		}
		if !hasName || !hasLength {
			return nil, &Error{Kind: ErrFormat, Op: "reading dictionary", Err: errors.Errorf("line %d: @SQ line needs SN and LN", line)}
		}
		d.Add(record)
	}
	if err := scanner.Err(); err != nil {
		return nil, IOError("reading dictionary", "", err)
	}
	return &d, nil
}

// ReadDictionaryFile parses the dictionary stored in the named file.
func ReadDictionaryFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Kind: ErrNotFound, Op: "opening dictionary", Source: path, Err: err}
		}
		return nil, IOError("opening dictionary", path, err)
	}
	defer f.Close()

	d, err := ReadDictionary(f)
	if e, ok := err.(*Error); ok {
		e.Source = path
	}
	return d, err
}

// DictionaryPath returns the dictionary path conventionally paired with a
// FASTA file: the extension (and any .gz suffix) is replaced by .dict.
func DictionaryPath(fasta string) string {
	base := strings.TrimSuffix(fasta, ".gz")
	if i := strings.LastIndexByte(base, '.'); i > strings.LastIndexByte(base, '/') {
		base = base[:i]
	}
	return base + DictionaryExtension
}

// Write writes d as a SAM header.
func (d *Dictionary) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "@HD\tVN:1.6\n")
	for _, record := range d.Sequences {
		fmt.Fprintf(bw, "@SQ\tSN:%s\tLN:%d", record.Name, record.Length)
		if record.MD5 != "" {
			fmt.Fprintf(bw, "\tM5:%s", record.MD5)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
