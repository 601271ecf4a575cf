// Package nmea frames and decodes the NMEA sentences the logger cares about.
//
// The framer favors liveness over completeness: anything that does not look
// like a sentence is discarded, and a new '$' always restarts accumulation so
// a garbled stream cannot wedge it.
package nmea

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSentenceTooLong reports that a sentence outgrew the framer capacity.
// The oversized sentence is dropped and the framer resynchronizes on the
// next '$'.
var ErrSentenceTooLong = errors.New("nmea: sentence exceeds framer capacity")

// Framer extracts complete sentences from a raw byte stream. A sentence
// starts at '$' and ends at CR or LF. Bytes between sentences are ignored.
type Framer struct {
	buf        []byte
	inSentence bool
	dropping   bool
	max        int
}

// NewFramer returns a framer whose accumulation buffer grows up to max
// bytes per sentence. Standard NMEA sentences fit in 82; the default of 128
// leaves headroom for chatty receivers.
func NewFramer(max int) *Framer {
	if max <= 0 {
		max = 128
	}
	return &Framer{buf: make([]byte, 0, max), max: max}
}

// Feed consumes a chunk of raw input and returns the sentences (including
// the leading '$', excluding the terminator) completed by it. When a
// sentence overflows the capacity its bytes are dropped until the next '$'
// and ErrSentenceTooLong is returned alongside any sentences already framed.
func (f *Framer) Feed(p []byte) ([]string, error) {
	var out []string
	var overflowed bool
	for _, b := range p {
		switch {
		case b == '$':
			// A '$' mid-sentence discards the partial sentence.
			f.buf = f.buf[:0]
			f.buf = append(f.buf, b)
			f.inSentence = true
			f.dropping = false
		case b == '\r' || b == '\n':
			if f.inSentence && len(f.buf) > 1 {
				out = append(out, string(f.buf))
			}
			f.buf = f.buf[:0]
			f.inSentence = false
			f.dropping = false
		case f.dropping || !f.inSentence:
			// Noise outside a sentence, or the tail of an oversized one.
		case len(f.buf) >= f.max:
			f.buf = f.buf[:0]
			f.inSentence = false
			f.dropping = true
			overflowed = true
		default:
			f.buf = append(f.buf, b)
		}
	}
	if overflowed {
		return out, ErrSentenceTooLong
	}
	return out, nil
}

// IsRMC reports whether the sentence carries the RMC talker, independent of
// the GP/GN/GL prefix.
func IsRMC(sentence string) bool {
	comma := strings.IndexByte(sentence, ',')
	head := sentence
	if comma != -1 {
		head = sentence[:comma]
	}
	return strings.Contains(head, "RMC")
}

// Checksum computes the NMEA checksum (XOR of the payload bytes between
// '$' and '*').
func Checksum(payload string) byte {
	var ck byte
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return ck
}

// Sentence wraps a payload in '$'..'*hh' framing.
func Sentence(payload string) string {
	return fmt.Sprintf("$%s*%02X", payload, Checksum(payload))
}
