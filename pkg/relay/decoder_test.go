package relay

import (
	"reflect"
	"strings"
	"testing"
)

func feedAll(d *LineDecoder, chunks ...[]byte) []string {
	var lines []string
	for _, c := range chunks {
		lines = append(lines, d.Feed(c)...)
	}
	return append(lines, d.Flush()...)
}

func TestLineDecoderCarriesPartialLines(t *testing.T) {
	d := NewLineDecoder()

	if got := d.Feed([]byte("data: {\"a\"")); len(got) != 0 {
		t.Fatalf("partial line returned early: %q", got)
	}
	got := d.Feed([]byte(":1}\ndata: x"))
	if want := []string{`data: {"a":1}`}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Feed = %q, want %q", got, want)
	}
	got = d.Flush()
	if want := []string{"data: x"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Flush = %q, want %q", got, want)
	}
}

func TestLineDecoderDropsBlankLinesAndCarriageReturns(t *testing.T) {
	got := feedAll(NewLineDecoder(), []byte("a\r\n\r\n   \n\t\nb\n\n"))
	if want := []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
}

func TestLineDecoderMultiByteSplitAcrossChunks(t *testing.T) {
	text := "data: héllo 世界 🎉\n"
	raw := []byte(text)

	// Cut at every byte offset, including inside each multi-byte sequence.
	for cut := 1; cut < len(raw); cut++ {
		got := feedAll(NewLineDecoder(), raw[:cut], raw[cut:])
		want := []string{strings.TrimSuffix(text, "\n")}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("cut at %d: lines = %q, want %q", cut, got, want)
		}
	}
}

func TestLineDecoderByteAtATime(t *testing.T) {
	raw := []byte("data: 🎉\ndata: ok\n")
	chunks := make([][]byte, len(raw))
	for i := range raw {
		chunks[i] = raw[i : i+1]
	}

	got := feedAll(NewLineDecoder(), chunks...)
	if want := []string{"data: 🎉", "data: ok"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
}

func TestLineDecoderReplacesInvalidBytes(t *testing.T) {
	got := feedAll(NewLineDecoder(), []byte("a\xffb\n"))
	if want := []string{"a�b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
}

func TestLineDecoderIncompleteSequenceAtEOF(t *testing.T) {
	d := NewLineDecoder()
	// First two bytes of a three-byte character, then the stream ends.
	if got := d.Feed([]byte("x\xe4\xb8")); len(got) != 0 {
		t.Fatalf("unexpected lines: %q", got)
	}
	got := d.Flush()
	if len(got) != 1 || !strings.HasPrefix(got[0], "x") || !strings.Contains(got[0], "�") {
		t.Fatalf("Flush = %q, want x followed by replacement character", got)
	}
}

func TestLineDecoderLargeChunk(t *testing.T) {
	// Larger than the internal scratch buffer.
	line := "data: " + strings.Repeat("ü", 5000)
	got := feedAll(NewLineDecoder(), []byte(line+"\n"))
	if len(got) != 1 || got[0] != line {
		t.Fatalf("large line not reassembled, got %d lines", len(got))
	}
}

func TestLineDecoderReusableAfterFlush(t *testing.T) {
	d := NewLineDecoder()
	d.Feed([]byte("leftover"))
	d.Flush()

	got := feedAll(d, []byte("fresh\n"))
	if want := []string{"fresh"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
}
