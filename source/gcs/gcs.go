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

// Package gcs reads reference files stored in Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/googlegenomics/refget/reference"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ObjectHandle is an interface to the actual storage engine in use.
type ObjectHandle interface {
	// NewRangeReader returns a reader that reads from a specified
	// range. Length of -1 means to capture everything until the
	// end.
	NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

type gcsObjectHandle struct {
	*storage.ObjectHandle
}

func (h gcsObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return h.ObjectHandle.NewRangeReader(ctx, offset, length)
}

// Object reads byte ranges of a single object.  It implements
// source.ByteSource and is safe for concurrent use.
type Object struct {
	ctx    context.Context
	handle ObjectHandle
	name   string
}

// NewObject returns an Object reading through handle.  All reads use ctx.
func NewObject(ctx context.Context, name string, handle ObjectHandle) *Object {
	return &Object{ctx: ctx, handle: handle, name: name}
}

// Open returns an Object reading gs://bucket/object with client.
func Open(ctx context.Context, client *storage.Client, bucket, object string) *Object {
	name := fmt.Sprintf("gs://%s/%s", bucket, object)
	return NewObject(ctx, name, gcsObjectHandle{client.Bucket(bucket).Object(object)})
}

// ReadAt issues a range request for len(p) bytes at off.
func (o *Object) ReadAt(p []byte, off int64) (int, error) {
	r, err := o.handle.NewRangeReader(o.ctx, off, int64(len(p)))
	if err != nil {
		if e, ok := err.(*googleapi.Error); ok && e.Code == http.StatusRequestedRangeNotSatisfiable {
			return 0, io.EOF
		}
		return 0, newStorageError(o.name, "opening range", err)
	}
	defer r.Close()

	n, err := io.ReadFull(r, p)
	switch err {
	case nil:
		return n, nil
	case io.EOF, io.ErrUnexpectedEOF:
		return n, io.EOF
	}
	return n, newStorageError(o.name, "reading range", err)
}

// Name returns the gs:// URL of the object.
func (o *Object) Name() string {
	return o.name
}

// Close is a no-op; the storage client is owned by the caller.
func (o *Object) Close() error {
	return nil
}

func newStorageError(name, context string, err error) error {
	if err == storage.ErrObjectNotExist || err == storage.ErrBucketNotExist {
		return &reference.Error{Kind: reference.ErrNotFound, Op: context, Source: name, Err: err}
	}
	if e, ok := err.(*googleapi.Error); ok {
		switch e.Code {
		case http.StatusNotFound:
			return &reference.Error{Kind: reference.ErrNotFound, Op: context, Source: name, Err: err}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &reference.Error{Kind: reference.ErrIO, Op: context, Source: name, Err: errors.Wrap(err, "access denied")}
		}
	}
	return reference.IOError(context, name, err)
}

// NewDefaultClient returns a storage client that uses the application default
// credentials.
func NewDefaultClient(ctx context.Context) (*storage.Client, error) {
	return storage.NewClient(ctx)
}

// NewPublicClient returns a storage client that does not use any form of
// client authorization.  It can only be used to read publicly-readable
// objects.
func NewPublicClient(ctx context.Context) (*storage.Client, error) {
	return storage.NewClient(ctx, option.WithHTTPClient(http.DefaultClient))
}

// NewClientFromToken constructs a storage client that authenticates with the
// OAuth2 access token.  A "Bearer " prefix is accepted and removed.
func NewClientFromToken(ctx context.Context, token string) (*storage.Client, error) {
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return nil, errors.New("missing or invalid token")
	}
	source := oauth2.StaticTokenSource(&oauth2.Token{TokenType: "Bearer", AccessToken: token})
	client, err := storage.NewClient(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("creating client with token source: %v", err)
	}
	return client, nil
}
