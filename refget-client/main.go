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

// This binary fetches sequences from a refget server, authenticating with
// Google application default credentials.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/googlegenomics/refget/fasta"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	scope = "https://www.googleapis.com/auth/devstorage.read_only"
)

var (
	referenceName = flag.String("r", "", "reference (contig) name")
	start         = flag.String("start", "", "0-based start position")
	end           = flag.String("end", "", "exclusive end position")
	output        = flag.String("o", "", "output filename")
	asFASTA       = flag.Bool("fasta", false, "write each response as a FASTA record")
	width         = flag.Int("n", fasta.DefaultBasesPerLine, "bases per line of FASTA output")
	public        = flag.Bool("public", false, "send requests without credentials")
)

func main() {
	flag.Parse()

	w := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Failed to open output file: %v", err)
		}
		defer f.Close()

		w = f
	}

	ctx := context.Background()

	// For compatibility with other tools, read the standard cURL certificate
	// authority override from the environment.
	if bundle := os.Getenv("CURL_CA_BUNDLE"); bundle != "" {
		pem, err := ioutil.ReadFile(bundle)
		if err != nil {
			log.Fatalf("Failed to read CA override file %q: %v", bundle, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			log.Fatalf("Failed to initialize system certificate pool: %v", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			log.Fatalf("Failed to add certificates from bundle %q", bundle)
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					RootCAs: pool,
				}},
		})
		log.Printf("Using CA override bundle from %q", bundle)
	}

	client := http.DefaultClient
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
		client = c
	}
	if !*public {
		var err error
		client, err = google.DefaultClient(ctx, scope)
		if err != nil {
			log.Fatalf("Failed to create client: %v", err)
		}
	}

	var records *fasta.Writer
	if *asFASTA {
		var err error
		records, err = fasta.NewWriter(w, fasta.BasesPerLine(*width))
		if err != nil {
			log.Fatalf("Failed to create FASTA writer: %v", err)
		}
	}

	for _, target := range flag.Args() {
		target = addParameters(target, map[string]string{
			"referenceName": *referenceName,
			"start":         *start,
			"end":           *end,
		})
		log.Printf("Fetching %q", target)
		bases, err := fetch(client, target)
		if err != nil {
			log.Fatalf("Request failed: %v", err)
		}
		log.Printf("Received %s", humanSize(int64(len(bases))))

		if records == nil {
			if _, err := w.Write(bases); err != nil {
				log.Fatalf("Failed to write output: %v", err)
			}
			continue
		}
		if err := records.Add(recordName(target), bases); err != nil {
			log.Fatalf("Failed to write record: %v", err)
		}
	}
	if records != nil {
		if err := records.Close(); err != nil {
			log.Fatalf("Failed to write output: %v", err)
		}
	}
}

func addParameters(input string, parameters map[string]string) string {
	values := url.Values{}
	for name, value := range parameters {
		if value != "" {
			values.Set(name, value)
		}
	}
	if len(values) == 0 {
		return input
	}
	if strings.Contains(input, "?") {
		return input + "&" + values.Encode()
	}
	return input + "?" + values.Encode()
}

// recordName names the FASTA record holding the response to target in
// samtools region syntax.
func recordName(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	query := u.Query()
	name := query.Get("referenceName")
	if name == "" {
		name = u.Path[strings.LastIndex(u.Path, "/")+1:]
	}
	if s, e := query.Get("start"), query.Get("end"); s != "" || e != "" {
		name += fmt.Sprintf(":%s-%s", s, e)
	}
	return name
}

func humanSize(n int64) string {
	kb := n / 1024
	mb := kb / 1024
	gb := mb / 1024
	if gb > 1 {
		return fmt.Sprintf("%d GB", gb)
	}
	if mb > 1 {
		return fmt.Sprintf("%d MB", mb)
	}
	if kb > 1 {
		return fmt.Sprintf("%d KB", kb)
	}
	return fmt.Sprintf("%d bytes", n)
}

func fetch(client *http.Client, target string) ([]byte, error) {
	resp, err := client.Get(target)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}
	bases, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %v", err)
	}
	return bases, nil
}

func errorFromResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound:
		v := make(map[string]string)
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return fmt.Errorf("%s: parsing response body: %v", resp.Status, err)
		}
		if message, ok := v["message"]; ok {
			return fmt.Errorf("%s: %s: %v", resp.Status, v["error"], message)
		}
	}
	return fmt.Errorf("unexpected response status: %q", resp.Status)
}
