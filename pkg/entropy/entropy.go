// Package entropy calculates the Shannon entropy of byte data, in bits per byte.
package entropy

/*
This package helps find packed or encrypted files by calculating the entropy of their contents to see how random
they are. Packed or encrypted malware often appears to be a very random file, and a value close to 8.0 bits per
byte is a good hint that a file is compressed, encrypted, or packed.

MIT License

Copyright (c) 2019-2022 Sandfly Security Ltd.
https://www.sandflysecurity.com

Permission is hereby granted, free of charge, to any person obtaining a copy of this software and associated
documentation files (the "Software"), to deal in the Software without restriction, including without limitation the
rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the Software, and to
permit persons to whom the Software is furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all copies or substantial portions of
the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO
THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
)

const (
	// Max bits of entropy per byte.
	MaxEntropy = 8.0
	// Chunk of data size to read in for entropy calc
	constMaxEntropyChunk = 256000
)

type ErrNotRegularFile struct {
	Path string
}

func (e *ErrNotRegularFile) Error() string {
	return fmt.Sprintf("file '%s' is not a regular file", e.Path)
}

func NewErrNotRegularFile(path string) *ErrNotRegularFile {
	return &ErrNotRegularFile{Path: path}
}

var ErrNoPath = errors.New("no path provided")

// Histogram counts occurrences of every byte value.
type Histogram struct {
	counts [256]uint64
	total  uint64
}

// Add counts every byte of data.
func (h *Histogram) Add(data []byte) {
	for _, b := range data {
		h.counts[b]++
	}
	h.total += uint64(len(data))
}

// Total returns the number of bytes counted so far.
func (h *Histogram) Total() uint64 {
	return h.total
}

// Entropy returns the Shannon entropy of the counted bytes. An empty histogram has an entropy of 0.
func (h *Histogram) Entropy() (entropy float64) {
	if h.total == 0 {
		return 0
	}
	size := float64(h.total)
	for i := 0; i < 256; i++ {
		px := float64(h.counts[i]) / size
		if px > 0 {
			entropy += -px * math.Log2(px)
		}
	}
	return entropy
}

// Calculate returns the entropy of data as a number of bits of entropy per byte.
func Calculate(data []byte) float64 {
	var h Histogram
	h.Add(data)
	return h.Entropy()
}

var chunkPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, constMaxEntropyChunk)
	},
}

// Entropy reads r until EOF and returns the entropy of everything read.
// The result is identical to calling [Calculate] on the same bytes.
func Entropy(r io.Reader) (float64, error) {
	dataBytes := chunkPool.Get().([]byte)
	defer chunkPool.Put(dataBytes)

	var h Histogram
	for {
		numBytesRead, readErr := r.Read(dataBytes)
		// a reader may hand back data together with io.EOF
		h.Add(dataBytes[:numBytesRead])
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return 0, readErr
		}
	}

	return h.Entropy(), nil
}

func openRegular(path string) (*os.File, error) {
	if path == "" {
		return nil, ErrNoPath
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't open '%s': %w", path, err)
	}

	fStat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("couldn't stat '%s': %w", path, err)
	}

	if !fStat.Mode().IsRegular() {
		_ = f.Close()
		return nil, NewErrNotRegularFile(path)
	}

	return f, nil
}

// FileEntropy calculates entropy of a file. Zero size files have an entropy of 0.
func FileEntropy(path string) (entropy float64, err error) {
	var f io.ReadCloser

	if f, err = openRegular(path); err != nil {
		return 0, err
	}

	defer func() {
		_ = f.Close()
	}()

	if entropy, err = Entropy(f); err != nil {
		return 0, fmt.Errorf("couldn't read '%s': %w", path, err)
	}

	return entropy, nil
}
