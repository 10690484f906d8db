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
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/googlegenomics/refget/bgzf"
	"github.com/googlegenomics/refget/fai"
	"github.com/googlegenomics/refget/gzi"
	"github.com/googlegenomics/refget/reference"
	"github.com/pkg/errors"
)

// DefaultBasesPerLine is the line width used by Writer unless configured
// otherwise.
const DefaultBasesPerLine = 60

// WriterOption configures a Writer.
type WriterOption func(*Writer) error

// BasesPerLine sets the number of bases written on each line.  It must be
// at least 1.
func BasesPerLine(n int) WriterOption {
	return func(w *Writer) error {
		if n < 1 {
			return errors.Errorf("invalid bases per line %d", n)
		}
		w.basesPerLine = n
		return nil
	}
}

// IndexTo makes Close write the .fai index of the output to index.
func IndexTo(index io.Writer) WriterOption {
	return func(w *Writer) error {
		w.indexOut = index
		return nil
	}
}

// DictionaryTo makes Close write the sequence dictionary of the output to
// dictionary.
func DictionaryTo(dictionary io.Writer) WriterOption {
	return func(w *Writer) error {
		w.dictionaryOut = dictionary
		return nil
	}
}

// CompressTo makes the Writer BGZF compress its output and write the .gzi
// index to index on Close.  Offsets in the .fai index refer to the
// uncompressed content.
func CompressTo(index io.Writer) WriterOption {
	return func(w *Writer) error {
		w.gziOut = index
		return nil
	}
}

// Writer writes FASTA records and, on Close, the matching .fai index and
// dictionary.  Sequences are written either with Add or by calling
// StartSequence followed by any number of AppendBases calls.
type Writer struct {
	out  *bufio.Writer
	bgzf *bgzf.Writer
	// files are closed by Close when the Writer was created by Create.
	files []*os.File

	indexOut, dictionaryOut, gziOut io.Writer
	basesPerLine                    int

	offset     uint64
	entries    []fai.Entry
	dictionary reference.Dictionary
	names      map[string]bool

	// State of the sequence being written.
	current *fai.Entry
	column  int
	digest  hash.Hash
	closed  bool
}

// NewWriter returns a Writer writing FASTA text to w.  The caller keeps
// ownership of w and of any writer passed as an option.
func NewWriter(w io.Writer, opts ...WriterOption) (*Writer, error) {
	fw := &Writer{basesPerLine: DefaultBasesPerLine, names: make(map[string]bool)}
	for _, opt := range opts {
		if err := opt(fw); err != nil {
			return nil, err
		}
	}
	if fw.gziOut != nil {
		fw.bgzf = bgzf.NewWriter(w)
		w = fw.bgzf
	}
	fw.out = bufio.NewWriter(w)
	return fw, nil
}

// Create creates the FASTA file path together with its index path + ".fai"
// and its dictionary.  When path ends in ".gz" the output is BGZF compressed
// and a .gzi index is written as well.
func Create(path string, opts ...WriterOption) (*Writer, error) {
	var files []*os.File
	create := func(name string) (*os.File, error) {
		f, err := os.Create(name)
		if err != nil {
			for _, f := range files {
				f.Close()
			}
			return nil, reference.IOError("creating", name, err)
		}
		files = append(files, f)
		return f, nil
	}

	fasta, err := create(path)
	if err != nil {
		return nil, err
	}
	index, err := create(path + fai.Extension)
	if err != nil {
		return nil, err
	}
	dictionary, err := create(reference.DictionaryPath(path))
	if err != nil {
		return nil, err
	}
	opts = append(opts, IndexTo(index), DictionaryTo(dictionary))
	if strings.HasSuffix(path, ".gz") {
		gziFile, err := create(path + gzi.Extension)
		if err != nil {
			return nil, err
		}
		opts = append(opts, CompressTo(gziFile))
	}

	w, err := NewWriter(fasta, opts...)
	if err != nil {
		for _, f := range files {
			f.Close()
		}
		return nil, err
	}
	w.files = files
	return w, nil
}

func (w *Writer) checkOpen() error {
	if w.closed {
		return errors.New("writer is closed")
	}
	return nil
}

// StartSequence begins a new record.  The name must be non-empty, unique
// and free of whitespace; the description may not contain control
// characters other than tabs.
func (w *Writer) StartSequence(name, description string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}
	if strings.IndexFunc(description, func(r rune) bool { return r != '\t' && unicode.IsControl(r) }) >= 0 {
		return errors.Errorf("sequence %q: description contains control characters", name)
	}
	if w.names[name] {
		return errors.Errorf("sequence %q already written", name)
	}
	if err := w.finishSequence(); err != nil {
		return err
	}

	header := ">" + name
	if description != "" {
		header += " " + description
	}
	if err := w.write([]byte(header + "\n")); err != nil {
		return err
	}
	w.names[name] = true
	w.current = &fai.Entry{Name: name, Offset: w.offset, Ordinal: uint32(len(w.entries))}
	w.column = 0
	w.digest = md5.New()
	return nil
}

func checkName(name string) error {
	if name == "" {
		return errors.New("empty sequence name")
	}
	if strings.IndexFunc(name, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return errors.Errorf("sequence name %q contains whitespace or control characters", name)
	}
	return nil
}

// AppendBases adds bases to the current record, wrapping lines as needed.
func (w *Writer) AppendBases(bases []byte) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if w.current == nil {
		return errors.New("no sequence started")
	}
	for i, b := range bases {
		if !isBase(b) {
			return errors.Errorf("sequence %q: invalid base %q at %d", w.current.Name, b, w.current.Length+uint64(i))
		}
	}
	w.digest.Write(bytes.ToUpper(bases))

	for len(bases) > 0 {
		if w.column == w.basesPerLine {
			if err := w.write([]byte{'\n'}); err != nil {
				return err
			}
			w.column = 0
		}
		n := w.basesPerLine - w.column
		if n > len(bases) {
			n = len(bases)
		}
		if err := w.write(bases[:n]); err != nil {
			return err
		}
		w.column += n
		w.current.Length += uint64(n)
		bases = bases[n:]
	}
	return nil
}

// isBase accepts IUPAC codes in either case and the gap characters.
func isBase(b byte) bool {
	return ('A' <= b && b <= 'Z') || ('a' <= b && b <= 'z') || b == '-' || b == '*' || b == '.'
}

// Add writes a complete record.
func (w *Writer) Add(name string, bases []byte) error {
	return w.AddWithDescription(name, "", bases)
}

// AddWithDescription writes a complete record whose header carries
// description after the name.
func (w *Writer) AddWithDescription(name, description string, bases []byte) error {
	if err := w.StartSequence(name, description); err != nil {
		return err
	}
	return w.AppendBases(bases)
}

// AddSequence writes s as a complete record.
func (w *Writer) AddSequence(s *reference.Sequence) error {
	return w.Add(s.Name, s.Bases)
}

func (w *Writer) write(p []byte) error {
	if _, err := w.out.Write(p); err != nil {
		return reference.IOError("writing", "", err)
	}
	w.offset += uint64(len(p))
	return nil
}

// finishSequence terminates the current record and records its index entry.
func (w *Writer) finishSequence() error {
	if w.current == nil {
		return nil
	}
	entry := *w.current
	if entry.Length == 0 {
		return errors.Errorf("sequence %q has no bases", entry.Name)
	}
	if err := w.write([]byte{'\n'}); err != nil {
		return err
	}
	width := uint32(w.basesPerLine)
	if entry.Length < uint64(width) {
		width = uint32(entry.Length)
	}
	entry.BasesPerLine, entry.BytesPerLine = width, width+1
	w.entries = append(w.entries, entry)
	w.dictionary.Add(reference.SequenceRecord{
		Name:   entry.Name,
		Length: entry.Length,
		MD5:    hex.EncodeToString(w.digest.Sum(nil)),
	})
	w.current = nil
	return nil
}

// Close finishes the last record, flushes the output and writes the index
// and dictionary.  It fails if no sequence was written.  Files created by
// Create are closed.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	err := w.close()
	for _, f := range w.files {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = reference.IOError("closing", f.Name(), closeErr)
		}
	}
	return err
}

func (w *Writer) close() error {
	w.closed = true
	if err := w.finishSequence(); err != nil {
		return err
	}
	if len(w.entries) == 0 {
		return errors.New("no sequences written")
	}
	if err := w.out.Flush(); err != nil {
		return reference.IOError("writing", "", err)
	}
	if w.bgzf != nil {
		if err := w.bgzf.Close(); err != nil {
			return reference.IOError("writing", "", err)
		}
		index, err := gzi.FromBlocks(w.bgzf.Blocks())
		if err != nil {
			return errors.Wrap(err, "building gzi index")
		}
		if err := index.Write(w.gziOut); err != nil {
			return reference.IOError("writing gzi index", "", err)
		}
	}
	if w.indexOut != nil {
		index, err := fai.New(w.entries)
		if err != nil {
			return errors.Wrap(err, "building index")
		}
		if err := index.Write(w.indexOut); err != nil {
			return reference.IOError("writing index", "", err)
		}
	}
	if w.dictionaryOut != nil {
		if err := w.dictionary.Write(w.dictionaryOut); err != nil {
			return reference.IOError("writing dictionary", "", err)
		}
	}
	return nil
}

// Dictionary returns the dictionary of the sequences completed so far.
func (w *Writer) Dictionary() *reference.Dictionary {
	d := &reference.Dictionary{}
	for _, record := range w.dictionary.Sequences {
		d.Add(record)
	}
	return d
}
