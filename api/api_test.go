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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/googlegenomics/refget/fasta"
	"github.com/googlegenomics/refget/reference"
	"github.com/googlegenomics/refget/twobit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	chr1 = []byte(strings.Repeat("ACGTACGTTTGGCCAA", 20))
	chr2 = []byte("GATTACAgattacaNNNNacgtAC")
)

func writeFASTA(t *testing.T, path string) {
	w, err := fasta.Create(path, fasta.BasesPerLine(60))
	require.NoError(t, err)
	require.NoError(t, w.Add("chr1", chr1))
	require.NoError(t, w.Add("chr2", chr2))
	require.NoError(t, w.Close())
}

func writeTwoBit(t *testing.T, path string) {
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, twobit.Write(f, []reference.Sequence{{Name: "chr2", Bases: chr2}}))
	require.NoError(t, f.Close())
}

func newTestLibrary(t *testing.T) *Library {
	dir := t.TempDir()
	writeFASTA(t, filepath.Join(dir, "ref.fa"))
	writeTwoBit(t, filepath.Join(dir, "packed.2bit"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("not a reference"), 0644))

	library := NewLibrary()
	require.NoError(t, library.LoadDirectory(dir))
	t.Cleanup(func() { library.Close() })
	return library
}

func testQuery(t *testing.T, library *Library, url string, header http.Header) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	req, err := http.NewRequest("GET", url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	NewServer(library).Handler().ServeHTTP(w, req)
	return w
}

func TestSequence(t *testing.T) {
	library := newTestLibrary(t)
	testCases := []struct {
		name, url, want string
	}{
		{"range", "/sequence/ref?referenceName=chr1&start=10&end=20", string(chr1[10:20])},
		{"whole contig", "/sequence/ref?referenceName=chr2", string(chr2)},
		{"from start", "/sequence/ref?referenceName=chr2&start=14", string(chr2[14:])},
		{"to end", "/sequence/ref?referenceName=chr2&end=7", "GATTACA"},
		{"empty", "/sequence/ref?referenceName=chr2&start=5&end=5", ""},
		{"2bit", "/sequence/packed?referenceName=chr2&start=5&end=20", "CAgattacannnnac"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := testQuery(t, library, tc.url, nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.want, w.Body.String())
			assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
			_, err := uuid.Parse(w.Header().Get(requestIDHeader))
			assert.NoError(t, err)
		})
	}
}

func TestErrors(t *testing.T) {
	library := newTestLibrary(t)
	testCases := []struct {
		name, url, error string
		code             int
	}{
		{"missing reference name", "/sequence/ref?start=1", "InvalidInput", http.StatusBadRequest},
		{"invalid start", "/sequence/ref?referenceName=chr1&start=x", "InvalidInput", http.StatusBadRequest},
		{"negative end", "/sequence/ref?referenceName=chr1&end=-1", "InvalidInput", http.StatusBadRequest},
		{"unknown reference", "/sequence/missing?referenceName=chr1", "NotFound", http.StatusNotFound},
		{"unknown contig", "/sequence/ref?referenceName=chrX", "NotFound", http.StatusNotFound},
		{"past end", "/sequence/ref?referenceName=chr2&end=25", "InvalidRange", http.StatusBadRequest},
		{"start after end", "/sequence/ref?referenceName=chr2&start=6&end=5", "InvalidRange", http.StatusBadRequest},
		{"unknown dictionary", "/dictionary/missing", "NotFound", http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := testQuery(t, library, tc.url, nil)
			assert.Equal(t, tc.code, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tc.error, body["error"])
		})
	}
}

func TestDictionary(t *testing.T) {
	library := newTestLibrary(t)
	w := testQuery(t, library, "/dictionary/ref", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sequences []sequenceJSON `json:"sequences"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Sequences, 2)
	assert.Equal(t, "chr1", body.Sequences[0].Name)
	assert.Equal(t, uint64(len(chr1)), body.Sequences[0].Length)
	assert.Len(t, body.Sequences[1].MD5, 32)
}

func TestReferences(t *testing.T) {
	library := newTestLibrary(t)
	w := testQuery(t, library, "/references", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		References []string `json:"references"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, []string{"packed", "ref"}, body.References)
}

func TestHeaders(t *testing.T) {
	library := newTestLibrary(t)
	id := uuid.New().String()
	w := testQuery(t, library, "/references", http.Header{
		requestIDHeader: {id},
		"Origin":        {"https://example.com"},
	})
	assert.Equal(t, id, w.Header().Get(requestIDHeader))
	assert.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = testQuery(t, library, "/references", http.Header{requestIDHeader: {"not-a-uuid"}})
	assert.NotEqual(t, "not-a-uuid", w.Header().Get(requestIDHeader))
}

func TestLibrary(t *testing.T) {
	library := newTestLibrary(t)

	bases, err := library.Bases("ref", reference.Region{Name: "chr2", Start: 1, End: 7})
	require.NoError(t, err)
	assert.Equal(t, "GATTACA", string(bases))

	bases, err = library.Bases("ref", reference.Region{Name: "chr2", Start: 8, End: 7})
	require.NoError(t, err)
	assert.Empty(t, bases)

	_, err = library.Bases("ref", reference.Region{Name: "chr2", Start: 1, End: 100})
	assert.True(t, errors.Is(err, reference.ErrOutOfRange), "got %v", err)

	_, err = library.Bases("nope", reference.Region{Name: "chr2", Start: 1})
	assert.True(t, errors.Is(err, reference.ErrNotFound), "got %v", err)

	ref, err := OpenReference(filepath.Join(t.TempDir(), "missing.2bit"))
	assert.Nil(t, ref)
	assert.True(t, errors.Is(err, reference.ErrNotFound), "got %v", err)
}

func TestLoadDirectory_DuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeFASTA(t, filepath.Join(dir, "ref.fa"))
	writeFASTA(t, filepath.Join(dir, "ref.fa.gz"))

	library := NewLibrary()
	assert.Error(t, library.LoadDirectory(dir))
	assert.Empty(t, library.IDs())
}

func TestReferenceID(t *testing.T) {
	testCases := []struct{ path, want string }{
		{"/data/hg38.fa", "hg38"},
		{"/data/hg38.fa.gz", "hg38"},
		{"hg38.fasta", "hg38"},
		{"hg38.2bit", "hg38"},
		{"other.txt", "other.txt"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ReferenceID(tc.path), tc.path)
	}
}
