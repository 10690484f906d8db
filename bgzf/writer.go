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

package bgzf

import (
	"fmt"
	"io"
)

// BlockDataSize is the amount of uncompressed data stored in each block
// written by Writer.  It leaves room for incompressible input to stay under
// MaximumBlockSize after compression.
const BlockDataSize = 0xff00

// BlockOffset pairs the compressed and uncompressed offsets of the start of a
// block.
type BlockOffset struct {
	Compressed, Uncompressed uint64
}

// Writer compresses its input into BGZF blocks.  Close must be called to
// flush buffered data and write the EOF marker; it does not close the
// underlying writer.
type Writer struct {
	w      io.Writer
	buffer []byte
	blocks []BlockOffset
	// compressed and uncompressed are the offsets of the next block.
	compressed, uncompressed uint64
	closed                   bool
}

// NewWriter returns a Writer that writes BGZF blocks to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, buffer: make([]byte, 0, BlockDataSize)}
}

// Write buffers p, emitting a block each time BlockDataSize bytes are
// available.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed BGZF writer")
	}
	var n int
	for len(p) > 0 {
		c := copy(w.buffer[len(w.buffer):cap(w.buffer)], p)
		w.buffer = w.buffer[:len(w.buffer)+c]
		p = p[c:]
		n += c
		if len(w.buffer) == cap(w.buffer) {
			if err := w.Flush(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// Flush writes any buffered data as a block.
func (w *Writer) Flush() error {
	if len(w.buffer) == 0 {
		return nil
	}
	block, err := EncodeBlock(w.buffer)
	if err != nil {
		return fmt.Errorf("encoding block: %v", err)
	}
	if _, err := w.w.Write(block); err != nil {
		return fmt.Errorf("writing block: %v", err)
	}
	w.blocks = append(w.blocks, BlockOffset{w.compressed, w.uncompressed})
	w.compressed += uint64(len(block))
	w.uncompressed += uint64(len(w.buffer))
	w.buffer = w.buffer[:0]
	return nil
}

// Close flushes the final block and writes the EOF marker.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if err := w.Flush(); err != nil {
		return err
	}
	w.closed = true
	if _, err := w.w.Write(eofMarker); err != nil {
		return fmt.Errorf("writing EOF marker: %v", err)
	}
	return nil
}

// Blocks returns the offsets of every data block written so far, in order.
// The first block, if any, is always at offset (0, 0).
func (w *Writer) Blocks() []BlockOffset {
	return append([]BlockOffset(nil), w.blocks...)
}

// Offset returns the uncompressed offset of the next byte to be written.
func (w *Writer) Offset() uint64 {
	return w.uncompressed + uint64(len(w.buffer))
}
