// Package feed delivers raw surveillance records from a receiver to the
// ingestion loop: TCP client with reconnect, byte-stream framing, and an
// alternate NATS transport.
package feed

import (
	"bytes"
	"io"
	"strings"
)

// Framer turns an unbounded byte stream into discrete text records. Reads
// arrive in chunks of arbitrary size and boundary alignment; a trailing
// partial record is retained and prepended to the next chunk. Invalid byte
// sequences are replaced, never fatal. Blank records are dropped.
//
// A Framer is a single-pass iterator; it is not restartable and not safe
// for concurrent use.
type Framer struct {
	r       io.Reader
	chunk   []byte
	partial []byte
	err     error
}

// NewFramer wraps r for record-at-a-time consumption.
func NewFramer(r io.Reader) *Framer {
	return &Framer{r: r, chunk: make([]byte, 4096)}
}

// Next returns the next complete record, blocking on the underlying reader
// as needed. After the stream ends, Next drains any final unterminated
// record before returning the reader's error (io.EOF on clean close).
func (f *Framer) Next() (string, error) {
	for {
		if i := bytes.IndexByte(f.partial, '\n'); i >= 0 {
			line := cleanRecord(f.partial[:i])
			f.partial = f.partial[i+1:]
			if line != "" {
				return line, nil
			}
			continue
		}

		if f.err != nil {
			if len(f.partial) > 0 {
				line := cleanRecord(f.partial)
				f.partial = nil
				if line != "" {
					return line, nil
				}
			}
			return "", f.err
		}

		n, err := f.r.Read(f.chunk)
		if n > 0 {
			f.partial = append(f.partial, f.chunk[:n]...)
		}
		if err != nil {
			f.err = err
		}
	}
}

// cleanRecord strips the trailing CR, trims whitespace, and applies a lossy
// text conversion so a corrupt byte can never poison the pipeline.
func cleanRecord(b []byte) string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return ""
	}
	return strings.ToValidUTF8(s, "�")
}
