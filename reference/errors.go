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

// Package reference defines the values and errors shared by the reference
// sequence readers: retrieved sequences, sequence dictionaries and the error
// kinds reported when an index, a query or a file is unusable.
package reference

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds.  Errors returned by the readers in this module satisfy
// errors.Is for exactly one of these values.
var (
	ErrFormat               = errors.New("malformed input")
	ErrNotFound             = errors.New("not found")
	ErrMalformedQuery       = errors.New("malformed query")
	ErrOutOfRange           = errors.New("query out of range")
	ErrInconsistentMetadata = errors.New("inconsistent metadata")
	ErrUnsupportedVersion   = errors.New("unsupported version")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrIO                   = errors.New("i/o error")
)

// Error describes a failed operation together with whatever context was
// available when it failed.  Start and Stop are only reported when Contig is
// set.
type Error struct {
	// Kind is one of the Err* values declared by this package.
	Kind error
	// Op names the operation, e.g. "reading index" or "query".
	Op string
	// Source identifies the file or object being read.
	Source string
	Contig string
	Start  uint64
	Stop   uint64
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Source != "" {
		parts = append(parts, e.Source)
	}
	if e.Contig != "" {
		if e.Start != 0 || e.Stop != 0 {
			parts = append(parts, fmt.Sprintf("%s:%d-%d", e.Contig, e.Start, e.Stop))
		} else {
			parts = append(parts, e.Contig)
		}
	}
	msg := e.Kind.Error()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(parts) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %s", strings.Join(parts, " "), msg)
}

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf returns an *Error of the given kind whose cause is formatted
// according to format.
func Errorf(kind error, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// IOError wraps err as an ErrIO failure of op on source.  It returns nil if
// err is nil and err unchanged if it already carries a kind.
func IOError(op, source string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: ErrIO, Op: op, Source: source, Err: err}
}
