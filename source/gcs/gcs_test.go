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

package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/ioutil"
	"net/http"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/googlegenomics/refget/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type fakeHandle struct {
	data []byte
	err  error
}

func (h fakeHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if h.err != nil {
		return nil, h.err
	}
	if offset >= int64(len(h.data)) {
		return nil, &googleapi.Error{Code: http.StatusRequestedRangeNotSatisfiable}
	}
	end := offset + length
	if length < 0 || end > int64(len(h.data)) {
		end = int64(len(h.data))
	}
	return ioutil.NopCloser(bytes.NewReader(h.data[offset:end])), nil
}

func TestObject_ReadAt(t *testing.T) {
	data := []byte(">chr1\nACGTACGTAC\nGT\n")
	o := NewObject(context.Background(), "gs://bucket/ref.fa", fakeHandle{data: data})

	got := make([]byte, 4)
	n, err := o.ReadAt(got, 6)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "ACGT", string(got))

	got = make([]byte, 10)
	n, err = o.ReadAt(got, int64(len(data)-3))
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "GT\n", string(got[:n]))

	_, err = o.ReadAt(got, int64(len(data)+5))
	assert.Equal(t, io.EOF, err)

	assert.Equal(t, "gs://bucket/ref.fa", o.Name())
	assert.NoError(t, o.Close())
}

func TestObject_Errors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		kind error
	}{
		{"missing object", storage.ErrObjectNotExist, reference.ErrNotFound},
		{"missing bucket", &googleapi.Error{Code: http.StatusNotFound}, reference.ErrNotFound},
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, reference.ErrIO},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, reference.ErrIO},
		{"other", errors.New("connection reset"), reference.ErrIO},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o := NewObject(context.Background(), "gs://bucket/ref.fa", fakeHandle{err: tc.err})
			_, err := o.ReadAt(make([]byte, 1), 0)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
			assert.Contains(t, err.Error(), "gs://bucket/ref.fa")
		})
	}
}

func TestNewClientFromToken_Missing(t *testing.T) {
	_, err := NewClientFromToken(context.Background(), "Bearer ")
	assert.Error(t, err)
}
