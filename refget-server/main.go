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

// This binary provides a reference sequence retrieval server that backs onto
// local FASTA and 2-bit files or a FASTA object in GCS.
package main

import (
	"context"
	"flag"
	"log"
	"strconv"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/refget/api"
	"github.com/googlegenomics/refget/fasta"
	"github.com/googlegenomics/refget/source/gcs"
	"github.com/pkg/profile"
)

var (
	port       = flag.Int("port", 80, "HTTP service port")
	bufferSize = flag.Int("buffer_size", 128*1024, "maximum size of a single read from a reference file")
	mmap       = flag.Bool("mmap", false, "memory map uncompressed reference files")

	httpsCert = flag.String("https_cert", "", "HTTPS certificate file")
	httpsKey  = flag.String("https_key", "", "HTTPS key file")

	directory = flag.String("directory", "", "directory that contains FASTA and 2-bit files")

	bucket = flag.String("bucket", "", "GCS bucket holding the FASTA object named by -object")
	object = flag.String("object", "", "GCS FASTA object to serve; its .fai (and .gzi) must exist")
	public = flag.Bool("public", false, "read GCS without credentials")
	token  = flag.String("token", "", "OAuth2 access token for reading GCS")

	profileMode = flag.String("profile", "", "write a cpu or mem profile to the working directory")
)

func main() {
	flag.Parse()

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	default:
		log.Fatalf("Unknown profile mode %q", *profileMode)
	}

	if (*httpsCert == "") != (*httpsKey == "") {
		log.Fatalf("You must specify both -https_cert and -https_key to serve HTTPS.")
	}

	opts := []fasta.Option{fasta.WithBufferSize(*bufferSize)}
	if *mmap {
		opts = append(opts, fasta.WithMmap())
	}

	library := api.NewLibrary()
	defer library.Close()

	switch {
	case *directory != "":
		if err := library.LoadDirectory(*directory, opts...); err != nil {
			log.Fatalf("Failed to load references: %v", err)
		}
	case *bucket != "" && *object != "":
		ctx := context.Background()
		client, err := newStorageClient(ctx)
		if err != nil {
			log.Fatalf("Failed to create storage client: %v", err)
		}
		r, err := gcs.OpenFASTA(ctx, client, *bucket, *object, opts...)
		if err != nil {
			log.Fatalf("Failed to open gs://%s/%s: %v", *bucket, *object, err)
		}
		if err := library.Add(api.ReferenceID(*object), api.NewFASTAReference(r)); err != nil {
			log.Fatalf("Failed to add reference: %v", err)
		}
	default:
		log.Fatalf("You must specify -directory or both -bucket and -object.")
	}
	log.Printf("Serving %d references: %v", len(library.IDs()), library.IDs())

	router := gin.Default()
	api.NewServer(library).Export(router)

	address := ":" + strconv.Itoa(*port)
	if *httpsCert != "" {
		if err := router.RunTLS(address, *httpsCert, *httpsKey); err != nil {
			log.Fatalf("HTTPS server returned an error: %v", err)
		}
	} else {
		if err := router.Run(address); err != nil {
			log.Fatalf("HTTP server returned an error: %v", err)
		}
	}
}

func newStorageClient(ctx context.Context) (*storage.Client, error) {
	switch {
	case *token != "":
		return gcs.NewClientFromToken(ctx, *token)
	case *public:
		return gcs.NewPublicClient(ctx)
	}
	return gcs.NewDefaultClient(ctx)
}
