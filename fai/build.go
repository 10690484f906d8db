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
	"bufio"
	"bytes"
	"io"

	"github.com/googlegenomics/refget/reference"
	"github.com/pkg/errors"
)

// builder accumulates the entry of the contig being scanned.
type builder struct {
	entry      Entry
	terminator int
	// short is set once a line with fewer bases than the first was seen;
	// only the last line of a contig may be short.
	short bool
}

func (b *builder) addLine(bases, terminator int) error {
	if b.entry.BasesPerLine == 0 {
		b.entry.BasesPerLine = uint32(bases)
		b.terminator = terminator
		b.entry.Length = uint64(bases)
		return nil
	}
	if b.short {
		return errors.Errorf("contig %q: only the last line may have fewer than %d bases", b.entry.Name, b.entry.BasesPerLine)
	}
	// A missing terminator is only possible on the final line of the file.
	if terminator != 0 && terminator != b.terminator {
		return errors.Errorf("contig %q: mixed line terminators", b.entry.Name)
	}
	switch {
	case bases > int(b.entry.BasesPerLine):
		return errors.Errorf("contig %q: line of %d bases is longer than %d", b.entry.Name, bases, b.entry.BasesPerLine)
	case bases < int(b.entry.BasesPerLine):
		b.short = true
	}
	b.entry.Length += uint64(bases)
	return nil
}

func (b *builder) build() (Entry, error) {
	if b.entry.BasesPerLine == 0 {
		return Entry{}, errors.Errorf("contig %q has no sequence", b.entry.Name)
	}
	b.entry.BytesPerLine = b.entry.BasesPerLine + uint32(b.terminator)
	return b.entry, nil
}

// Build scans the FASTA text in r and returns its index.  Contig names are
// truncated at the first whitespace character.  Every line of a contig but
// the last must have the same length and terminator.
func Build(r io.Reader) (*Index, error) {
	var (
		x       = &Index{byName: make(map[string]int)}
		br      = bufio.NewReader(r)
		current *builder
		offset  uint64
		line    int
	)
	finish := func() error {
		if current == nil {
			return nil
		}
		entry, err := current.build()
		if err != nil {
			return err
		}
		return x.add(entry)
	}
	for {
		text, err := br.ReadBytes('\n')
		if len(text) == 0 && err == io.EOF {
			break
		}
		if err != nil && err != io.EOF {
			return nil, reference.IOError("building index", "", err)
		}
		line++
		offset += uint64(len(text))

		content, terminator := trimTerminator(text)
		switch {
		case line == 1 && (len(content) == 0 || content[0] != '>'):
			return nil, buildError(errors.Errorf("line 1: expected a '>' header, found %q", content))
		case len(content) > 0 && content[0] == '>':
			if err := finish(); err != nil {
				return nil, buildError(errors.Wrapf(err, "line %d", line))
			}
			name := headerName(content)
			if name == "" {
				return nil, buildError(errors.Errorf("line %d: empty contig name", line))
			}
			current = &builder{entry: Entry{Name: name, Offset: offset}}
		case len(content) == 0:
			// Blank lines carry no bases.
		default:
			if err := current.addLine(len(content), terminator); err != nil {
				return nil, buildError(errors.Wrapf(err, "line %d", line))
			}
		}
	}
	if line == 0 {
		return nil, buildError(errors.New("empty file"))
	}
	if err := finish(); err != nil {
		return nil, buildError(err)
	}
	return x, nil
}

func buildError(err error) error {
	return &reference.Error{Kind: reference.ErrFormat, Op: "building index", Err: err}
}

// trimTerminator splits a line into its content and the width of its
// terminator (0, 1 for "\n" or 2 for "\r\n").
func trimTerminator(line []byte) ([]byte, int) {
	switch {
	case bytes.HasSuffix(line, []byte("\r\n")):
		return line[:len(line)-2], 2
	case bytes.HasSuffix(line, []byte("\n")):
		return line[:len(line)-1], 1
	}
	return line, 0
}

// headerName returns the contig name of a header line: the text after '>' up
// to the first whitespace.
func headerName(header []byte) string {
	fields := bytes.Fields(header[1:])
	if len(fields) == 0 {
		return ""
	}
	return string(fields[0])
}
