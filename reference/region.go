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
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Region names a range of a contig.  Start and End are 1-based and
// inclusive; a zero End extends the region to the end of the contig.
type Region struct {
	Name       string
	Start, End uint64
}

// ParseRegion parses a region written as "name", "name:start" or
// "name:start-end".  Commas in positions are ignored.  Text that does not
// end in a valid position range is taken to be a contig name, so names
// containing ':' can be given in full.
func ParseRegion(text string) (Region, error) {
	if text == "" {
		return Region{}, &Error{Kind: ErrMalformedQuery, Op: "parsing region", Err: errors.New("empty region")}
	}
	i := strings.LastIndexByte(text, ':')
	if i <= 0 {
		return Region{Name: text, Start: 1}, nil
	}
	start, end, err := parseSpan(strings.Replace(text[i+1:], ",", "", -1))
	if err != nil {
		return Region{Name: text, Start: 1}, nil
	}
	region := Region{Name: text[:i], Start: start, End: end}
	if start == 0 || (end != 0 && end < start) {
		return Region{}, &Error{Kind: ErrMalformedQuery, Op: "parsing region", Contig: region.Name, Start: start, Stop: end, Err: errors.Errorf("invalid range in %q", text)}
	}
	return region, nil
}

func parseSpan(span string) (uint64, uint64, error) {
	startText, endText := span, ""
	if j := strings.IndexByte(span, '-'); j >= 0 {
		startText, endText = span[:j], span[j+1:]
	}
	start, err := strconv.ParseUint(startText, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	if endText == "" {
		return start, 0, nil
	}
	end, err := strconv.ParseUint(endText, 10, 64)
	return start, end, err
}

// Bounds returns the first and last position of the region within a contig
// of the given length.
func (r Region) Bounds(length uint64) (uint64, uint64, error) {
	stop := r.End
	if stop == 0 {
		stop = length
	}
	if stop > length {
		return 0, 0, &Error{Kind: ErrOutOfRange, Op: "resolving region", Contig: r.Name, Start: r.Start, Stop: stop, Err: errors.Errorf("contig has %d bases", length)}
	}
	if r.Start == 0 || r.Start > stop+1 {
		return 0, 0, &Error{Kind: ErrMalformedQuery, Op: "resolving region", Contig: r.Name, Start: r.Start, Stop: stop}
	}
	return r.Start, stop, nil
}

func (r Region) String() string {
	switch {
	case r.End != 0:
		return fmt.Sprintf("%s:%d-%d", r.Name, r.Start, r.End)
	case r.Start > 1:
		return fmt.Sprintf("%s:%d", r.Name, r.Start)
	}
	return r.Name
}
