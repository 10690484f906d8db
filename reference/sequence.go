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

import "fmt"

// DefaultBufferSize is the largest chunk read from a byte source in a
// single call when extracting bases.
const DefaultBufferSize = 128 * 1024

// Sequence is the result of a query: the bases of (part of) a contig, one
// ASCII character per base.
type Sequence struct {
	// Name is the contig name.
	Name string
	// Index is the position of the contig in its file or dictionary.
	Index int
	Bases []byte
}

// Len returns the number of bases.
func (s *Sequence) Len() int {
	return len(s.Bases)
}

func (s *Sequence) String() string {
	return fmt.Sprintf("%s[%d] (%d bases)", s.Name, s.Index, len(s.Bases))
}
