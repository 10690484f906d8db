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

package api

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/googlegenomics/refget/fasta"
	"github.com/googlegenomics/refget/reference"
	"github.com/googlegenomics/refget/twobit"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Reference is a reference sequence set that can be queried at random.
// Implementations need not be safe for concurrent use.
type Reference interface {
	Dictionary() (*reference.Dictionary, error)
	// Subsequence returns bases start to stop (1-based, inclusive) of the
	// named contig.
	Subsequence(name string, start, stop uint64) ([]byte, error)
	Close() error
}

type fastaReference struct {
	*fasta.IndexedReader
}

// NewFASTAReference adapts r to the Reference interface.
func NewFASTAReference(r *fasta.IndexedReader) Reference {
	return fastaReference{r}
}

func (r fastaReference) Subsequence(name string, start, stop uint64) ([]byte, error) {
	s, err := r.IndexedReader.Subsequence(name, start, stop)
	if err != nil {
		return nil, err
	}
	return s.Bases, nil
}

// twobitReference serves soft-masked bases, matching the case a FASTA file
// would carry.
type twobitReference struct {
	*twobit.Reader
}

func (r twobitReference) Subsequence(name string, start, stop uint64) ([]byte, error) {
	return r.Query(name, start, stop, true)
}

// fastaExtensions are the file name suffixes recognised as FASTA files.
var fastaExtensions = []string{".fa", ".fasta", ".fna", ".fa.gz", ".fasta.gz", ".fna.gz"}

// ReferenceID returns the ID under which the file at path is served: its
// base name without the FASTA or 2-bit extension.
func ReferenceID(path string) string {
	base := filepath.Base(path)
	for _, ext := range append([]string{twobit.Extension}, fastaExtensions...) {
		if strings.HasSuffix(base, ext) && len(base) > len(ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

func isReference(name string) bool {
	if strings.HasSuffix(name, twobit.Extension) {
		return true
	}
	for _, ext := range fastaExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// OpenReference opens the FASTA or 2-bit file at path.  FASTA files without
// an index are indexed in memory.
func OpenReference(path string, opts ...fasta.Option) (Reference, error) {
	if strings.HasSuffix(path, twobit.Extension) {
		r, err := twobit.Open(path)
		if err != nil {
			return nil, err
		}
		return twobitReference{r}, nil
	}
	r, err := fasta.OpenIndexed(path, opts...)
	if err != nil {
		return nil, err
	}
	return fastaReference{r}, nil
}

type libraryEntry struct {
	// mu serialises access to ref.
	mu  sync.Mutex
	ref Reference
}

// Library maps reference IDs to open references.  It is safe for
// concurrent use.
type Library struct {
	mu      sync.RWMutex
	entries map[string]*libraryEntry
}

// NewLibrary returns an empty Library.
func NewLibrary() *Library {
	return &Library{entries: make(map[string]*libraryEntry)}
}

// Add makes ref available as id.  The library takes ownership of ref.
func (l *Library) Add(id string, ref Reference) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[id]; ok {
		return errors.Errorf("duplicate reference ID %q", id)
	}
	l.entries[id] = &libraryEntry{ref: ref}
	return nil
}

// IDs returns the reference IDs in sorted order.
func (l *Library) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *Library) get(id string) (*libraryEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[id]
	if !ok {
		return nil, &reference.Error{Kind: reference.ErrNotFound, Op: "looking up reference", Source: id}
	}
	return entry, nil
}

// Dictionary returns the dictionary of the reference id.
func (l *Library) Dictionary(id string) (*reference.Dictionary, error) {
	entry, err := l.get(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.ref.Dictionary()
}

// Bases returns the bases of region in the reference id.  A region ending
// just before its start is empty.
func (l *Library) Bases(id string, region reference.Region) ([]byte, error) {
	entry, err := l.get(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	d, err := entry.ref.Dictionary()
	if err != nil {
		return nil, err
	}
	record, _, ok := d.Get(region.Name)
	if !ok {
		return nil, &reference.Error{Kind: reference.ErrNotFound, Op: "looking up contig", Source: id, Contig: region.Name}
	}
	start, stop, err := region.Bounds(record.Length)
	if err != nil {
		return nil, err
	}
	if start > stop {
		return []byte{}, nil
	}
	return entry.ref.Subsequence(region.Name, start, stop)
}

// LoadDirectory opens every FASTA and 2-bit file in dir concurrently and adds
// them under their ReferenceID.  If any file cannot be opened, none are
// added.
func (l *Library) LoadDirectory(dir string, opts ...fasta.Option) error {
	files, err := ioutil.ReadDir(dir)
	if err != nil {
		return reference.IOError("listing references", dir, err)
	}
	var paths []string
	for _, f := range files {
		if !f.IsDir() && isReference(f.Name()) {
			paths = append(paths, filepath.Join(dir, f.Name()))
		}
	}

	refs := make([]Reference, len(paths))
	closeAll := func() {
		for _, ref := range refs {
			if ref != nil {
				ref.Close()
			}
		}
	}
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			ref, err := OpenReference(path, opts...)
			if err != nil {
				return fmt.Errorf("loading %s: %v", path, err)
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll()
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]string)
	for _, path := range paths {
		id := ReferenceID(path)
		if _, ok := l.entries[id]; ok {
			closeAll()
			return errors.Errorf("duplicate reference ID %q for %s", id, path)
		}
		if other, ok := seen[id]; ok {
			closeAll()
			return errors.Errorf("%s and %s share reference ID %q", other, path, id)
		}
		seen[id] = path
	}
	for i, path := range paths {
		l.entries[ReferenceID(path)] = &libraryEntry{ref: refs[i]}
	}
	return nil
}

// Close closes every reference in the library.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for id, entry := range l.entries {
		entry.mu.Lock()
		if err := entry.ref.Close(); err != nil && first == nil {
			first = err
		}
		entry.mu.Unlock()
		delete(l.entries, id)
	}
	return first
}
