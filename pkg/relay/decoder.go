package relay

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LineDecoder splits an incrementally arriving UTF-8 byte stream into
// lines. A multi-byte character cut by a chunk boundary is held until the
// rest arrives, and the unterminated tail of the last chunk is carried
// into the next one. Invalid byte sequences decode as U+FFFD. Lines are
// returned without their "\n" or "\r\n" terminator, and lines containing
// only whitespace are dropped.
type LineDecoder struct {
	utf8    transform.Transformer
	pending []byte          // undecoded bytes of an incomplete sequence
	partial strings.Builder // decoded text after the last newline
	scratch [4096]byte
}

// NewLineDecoder returns a decoder with empty buffers.
func NewLineDecoder() *LineDecoder {
	return &LineDecoder{utf8: unicode.UTF8.NewDecoder()}
}

// Feed decodes chunk and returns the lines it completed.
func (d *LineDecoder) Feed(chunk []byte) []string {
	return d.split(d.decode(chunk, false))
}

// Flush ends the stream. It decodes any held bytes and returns the
// unterminated final line, if it is not blank. The decoder is reset.
func (d *LineDecoder) Flush() []string {
	text := d.decode(nil, true)
	lines := d.split(text)

	last := d.partial.String()
	d.partial.Reset()
	if line := trimLine(last); !isBlank(line) {
		lines = append(lines, line)
	}

	d.utf8.Reset()
	d.pending = nil
	return lines
}

func (d *LineDecoder) decode(chunk []byte, atEOF bool) string {
	d.pending = append(d.pending, chunk...)

	var sb strings.Builder
	for {
		nDst, nSrc, err := d.utf8.Transform(d.scratch[:], d.pending, atEOF)
		sb.Write(d.scratch[:nDst])
		d.pending = d.pending[nSrc:]
		if !errors.Is(err, transform.ErrShortDst) {
			// nil, or ErrShortSrc with an incomplete sequence left pending.
			break
		}
	}

	if len(d.pending) == 0 {
		d.pending = nil
	} else {
		d.pending = append([]byte(nil), d.pending...)
	}
	return sb.String()
}

func (d *LineDecoder) split(text string) []string {
	var lines []string
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			d.partial.WriteString(text)
			return lines
		}

		d.partial.WriteString(text[:i])
		line := trimLine(d.partial.String())
		d.partial.Reset()
		text = text[i+1:]

		if !isBlank(line) {
			lines = append(lines, line)
		}
	}
}

func trimLine(s string) string {
	return strings.TrimSuffix(s, "\r")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
