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

// Package api serves the references of a Library over HTTP.
//
// Sequences are retrieved with GET /sequence/<id>?referenceName=&start=&end=,
// where start is 0-based and inclusive and end is exclusive, following the
// htsget conventions.  GET /dictionary/<id> lists the contigs of a
// reference and GET /references lists the reference IDs.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/googlegenomics/refget/reference"
)

const (
	sequencePath   = "/sequence/"
	dictionaryPath = "/dictionary/"
	referencesPath = "/references"

	requestIDHeader = "X-Request-Id"
)

var errMissingReferenceName = errors.New("no reference name specified")

// Server provides the retrieval API.  Must be created with NewServer.
type Server struct {
	library *Library
}

// NewServer returns a Server answering requests from library.
func NewServer(library *Library) *Server {
	return &Server{library: library}
}

// Export registers the API endpoints with router.
func (server *Server) Export(router gin.IRoutes) {
	router.Use(requestID, forwardOrigin)
	router.GET(sequencePath+":id", server.serveSequence)
	router.GET(dictionaryPath+":id", server.serveDictionary)
	router.GET(referencesPath, server.serveReferences)
}

// Handler returns an http.Handler serving the API.
func (server *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	server.Export(router)
	return router
}

func (server *Server) serveSequence(c *gin.Context) {
	id := c.Param("id")
	name := c.Query("referenceName")
	if name == "" {
		writeError(c, newInvalidInputError("parsing query", errMissingReferenceName))
		return
	}

	d, err := server.library.Dictionary(id)
	if err != nil {
		writeError(c, newReferenceError("reading dictionary", err))
		return
	}
	record, _, ok := d.Get(name)
	if !ok {
		writeError(c, newNotFoundError("resolving reference", fmt.Errorf("%s has no contig %q", id, name)))
		return
	}

	start, err := parsePosition(c.Query("start"), 0)
	if err != nil {
		writeError(c, newInvalidInputError("parsing start", err))
		return
	}
	end, err := parsePosition(c.Query("end"), record.Length)
	if err != nil {
		writeError(c, newInvalidInputError("parsing end", err))
		return
	}
	switch {
	case end > record.Length:
		writeError(c, newInvalidRangeError(fmt.Errorf("end %d is past the end of %s (%d bases)", end, name, record.Length)))
		return
	case start > end:
		writeError(c, newInvalidRangeError(fmt.Errorf("start %d > end %d", start, end)))
		return
	case start == end:
		c.Data(http.StatusOK, "text/plain; charset=utf-8", nil)
		return
	}

	bases, err := server.library.Bases(id, reference.Region{Name: name, Start: start + 1, End: end})
	if err != nil {
		writeError(c, newReferenceError("retrieving bases", err))
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", bases)
}

func parsePosition(text string, missing uint64) (uint64, error) {
	if text == "" {
		return missing, nil
	}
	return strconv.ParseUint(text, 10, 64)
}

type sequenceJSON struct {
	Name   string `json:"name"`
	Length uint64 `json:"length"`
	MD5    string `json:"md5,omitempty"`
}

func (server *Server) serveDictionary(c *gin.Context) {
	d, err := server.library.Dictionary(c.Param("id"))
	if err != nil {
		writeError(c, newReferenceError("reading dictionary", err))
		return
	}
	sequences := make([]sequenceJSON, d.Len())
	for i, record := range d.Sequences {
		sequences[i] = sequenceJSON{record.Name, record.Length, record.MD5}
	}
	c.JSON(http.StatusOK, gin.H{"sequences": sequences})
}

func (server *Server) serveReferences(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"references": server.library.IDs()})
}

// apiError is used to capture errors that have been defined in the API.
type apiError struct {
	name  string
	code  int
	cause error
}

func (err *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %v", err.name, err.code, err.cause)
}

func newAPIError(name string, code int, context string, err error) error {
	return &apiError{name, code, fmt.Errorf("%s: %v", context, err)}
}

func newInvalidInputError(context string, err error) error {
	return newAPIError("InvalidInput", http.StatusBadRequest, context, err)
}

func newInvalidRangeError(err error) error {
	return &apiError{"InvalidRange", http.StatusBadRequest, err}
}

func newNotFoundError(context string, err error) error {
	return newAPIError("NotFound", http.StatusNotFound, context, err)
}

// newReferenceError classifies an error returned by a reader.  Errors
// without an API equivalent are returned unchanged.
func newReferenceError(context string, err error) error {
	switch {
	case errors.Is(err, reference.ErrNotFound):
		return newNotFoundError(context, err)
	case errors.Is(err, reference.ErrMalformedQuery), errors.Is(err, reference.ErrOutOfRange):
		return newInvalidRangeError(err)
	}
	return fmt.Errorf("%s: %v", context, err)
}

// writeError writes either a JSON object or bare HTTP error describing err.
// A JSON object is written only when the error has a name and code defined
// by the API.
func writeError(c *gin.Context, err error) {
	c.Error(err)
	if err, ok := err.(*apiError); ok {
		c.JSON(err.code, gin.H{
			"error":   err.name,
			"message": fmt.Sprintf("%s: %v", http.StatusText(err.code), err.cause),
		})
		return
	}
	code := http.StatusInternalServerError
	c.String(code, "%s: %v", http.StatusText(code), err)
}

// requestID tags every response with the request's ID, generating one when
// the client did not send a valid UUID.
func requestID(c *gin.Context) {
	id, err := uuid.Parse(c.GetHeader(requestIDHeader))
	if err != nil {
		id = uuid.New()
	}
	c.Header(requestIDHeader, id.String())
	c.Next()
}

func forwardOrigin(c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
	}
	c.Next()
}
