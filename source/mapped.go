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

package source

import (
	"io"

	"github.com/googlegenomics/refget/reference"
	"golang.org/x/exp/mmap"
)

// Mapped reads from a memory mapped file.
type Mapped struct {
	r    *mmap.ReaderAt
	name string
}

// OpenMapped maps the named file into memory.  Compressed files are not
// supported.
func OpenMapped(path string) (*Mapped, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, openError(path, err)
	}
	return &Mapped{r: r, name: path}, nil
}

// ReadAt implements io.ReaderAt.
func (m *Mapped) ReadAt(p []byte, off int64) (int, error) {
	n, err := m.r.ReadAt(p, off)
	if err != nil && err != io.EOF {
		err = reference.IOError("reading", m.name, err)
	}
	return n, err
}

// Len returns the size of the mapped file.
func (m *Mapped) Len() int {
	return m.r.Len()
}

// Name returns the path of the mapped file.
func (m *Mapped) Name() string {
	return m.name
}

// Close unmaps the file.
func (m *Mapped) Close() error {
	return m.r.Close()
}
