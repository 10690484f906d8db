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

// This binary indexes, converts and extracts reference sequences.
//
// Usage:
//
//	refget-tool faidx <fasta> [region...]
//	refget-tool dict [-o output] <fasta>
//	refget-tool 2bit <fasta> <output.2bit>
//	refget-tool twobit [-mask=false] <input.2bit> [region...]
package main

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"strings"

	"github.com/googlegenomics/refget/fai"
	"github.com/googlegenomics/refget/fasta"
	"github.com/googlegenomics/refget/gzi"
	"github.com/googlegenomics/refget/reference"
	"github.com/googlegenomics/refget/twobit"
)

type command struct {
	usage string
	run   func(args []string, stdout io.Writer) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"faidx":  {"faidx <fasta> [region...]", faidx},
		"dict":   {"dict [-o output] <fasta>", dict},
		"2bit":   {"2bit <fasta> <output.2bit>", toTwoBit},
		"twobit": {"twobit [-mask=false] <input.2bit> [region...]", fromTwoBit},
	}
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("refget-tool: ")
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		log.Printf("unknown command %q", args[0])
		usage()
		return 2
	}
	if err := cmd.run(args[1:], stdout); err != nil {
		log.Printf("%s: %v", args[0], err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	for _, name := range []string{"faidx", "dict", "2bit", "twobit"} {
		fmt.Fprintf(os.Stderr, "  refget-tool %s\n", commands[name].usage)
	}
}

func parse(name string, flags *flag.FlagSet, args []string, min int) ([]string, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() < min {
		return nil, fmt.Errorf("usage: refget-tool %s", commands[name].usage)
	}
	return flags.Args(), nil
}

// faidx writes the .fai (and for BGZF input the .gzi) index of a FASTA file
// or, when regions are given, prints them as FASTA records.
func faidx(args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("faidx", flag.ContinueOnError)
	width := flags.Int("n", fasta.DefaultBasesPerLine, "bases per output line")
	args, err := parse("faidx", flags, args, 1)
	if err != nil {
		return err
	}
	path, regions := args[0], args[1:]

	if len(regions) == 0 {
		index, blocks, err := fasta.BuildIndex(path)
		if err != nil {
			return err
		}
		if err := index.WriteFile(path + fai.Extension); err != nil {
			return err
		}
		if blocks != nil {
			return blocks.WriteFile(path + gzi.Extension)
		}
		return nil
	}

	r, err := fasta.OpenIndexed(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return extract(stdout, *width, regions, func(region reference.Region) ([]byte, error) {
		entry, err := r.Index().Get(region.Name)
		if err != nil {
			return nil, err
		}
		start, stop, err := region.Bounds(entry.Length)
		if err != nil {
			return nil, err
		}
		s, err := r.Subsequence(region.Name, start, stop)
		if err != nil {
			return nil, err
		}
		return s.Bases, nil
	})
}

// extract prints each region as a FASTA record named after the region.
func extract(w io.Writer, width int, regions []string, query func(reference.Region) ([]byte, error)) error {
	out, err := fasta.NewWriter(w, fasta.BasesPerLine(width))
	if err != nil {
		return err
	}
	for _, text := range regions {
		region, err := reference.ParseRegion(text)
		if err != nil {
			return err
		}
		bases, err := query(region)
		if err != nil {
			return err
		}
		if len(bases) == 0 {
			return fmt.Errorf("region %s is empty", region)
		}
		if err := out.Add(text, bases); err != nil {
			return err
		}
	}
	return out.Close()
}

// dict writes the sequence dictionary of a FASTA file, including the MD5
// digest of every sequence.
func dict(args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("dict", flag.ContinueOnError)
	output := flags.String("o", "", "output file (default: the .dict next to the input)")
	args, err := parse("dict", flags, args, 1)
	if err != nil {
		return err
	}
	path := args[0]
	if *output == "" {
		*output = reference.DictionaryPath(path)
	}

	r, err := fasta.OpenScanner(path)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(*output)
	if err != nil {
		return err
	}
	w, err := fasta.NewWriter(ioutil.Discard, fasta.DictionaryTo(f))
	if err != nil {
		f.Close()
		return err
	}
	if err := each(r, w.AddSequence); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func each(r fasta.Reader, f func(*reference.Sequence) error) error {
	for {
		s, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := f(s); err != nil {
			return err
		}
	}
}

// toTwoBit converts a FASTA file to the 2-bit format.
func toTwoBit(args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("2bit", flag.ContinueOnError)
	args, err := parse("2bit", flags, args, 2)
	if err != nil {
		return err
	}
	r, err := fasta.OpenScanner(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	var seqs []reference.Sequence
	if err := each(r, func(s *reference.Sequence) error {
		seqs = append(seqs, *s)
		return nil
	}); err != nil {
		return err
	}

	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	if err := twobit.Write(f, seqs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// fromTwoBit prints regions of a 2-bit file, or all of it, as FASTA.
func fromTwoBit(args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("twobit", flag.ContinueOnError)
	mask := flags.Bool("mask", true, "keep soft-masked bases in lower case")
	width := flags.Int("n", fasta.DefaultBasesPerLine, "bases per output line")
	args, err := parse("twobit", flags, args, 1)
	if err != nil {
		return err
	}
	r, err := twobit.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	regions := args[1:]
	if len(regions) == 0 {
		for _, name := range r.Names() {
			if strings.ContainsRune(name, ':') {
				return fmt.Errorf("contig %q cannot be named as a region", name)
			}
			regions = append(regions, name)
		}
	}
	return extract(stdout, *width, regions, func(region reference.Region) ([]byte, error) {
		length, err := r.Length(region.Name)
		if err != nil {
			return nil, err
		}
		start, stop, err := region.Bounds(length)
		if err != nil || start > stop {
			return nil, err
		}
		return r.Query(region.Name, start, stop, *mask)
	})
}
