package stream

import (
	"strings"
	"unicode/utf8"
)

// Framing selects the wire event delimiter. The answer service speaks two
// dialects: SSE separates events with a blank line, NDJSON with a single
// newline. Payload lines carry the "data: " prefix in both.
type Framing int

const (
	// FramingSSE frames events as blank-line-separated blocks.
	FramingSSE Framing = iota
	// FramingNDJSON frames one event per line.
	FramingNDJSON
)

const dataPrefix = "data: "

// Reassembler turns an ordered sequence of raw byte chunks into complete
// protocol events. Chunk boundaries carry no meaning: a chunk may end in the
// middle of a UTF-8 sequence, a JSON token, or an event frame. Incomplete
// tails are carried over and retried on the next Feed.
//
// Not safe for concurrent use; one Reassembler serves one stream.
type Reassembler struct {
	framing Framing
	pending []byte // trailing bytes of a split UTF-8 sequence
	carry   string // decoded text not yet known to hold a complete event
}

// NewReassembler creates a Reassembler for the given framing.
func NewReassembler(f Framing) *Reassembler {
	return &Reassembler{framing: f}
}

// Feed appends a chunk and returns every event completed by it, in order.
// Feeding a stream byte-by-byte yields the same events as feeding it whole.
func (r *Reassembler) Feed(chunk []byte) []Event {
	raw := make([]byte, 0, len(r.pending)+len(chunk))
	raw = append(raw, r.pending...)
	raw = append(raw, chunk...)

	text, rest := splitCompleteRunes(raw)
	r.pending = rest
	r.carry += text

	delim := "\n\n"
	if r.framing == FramingNDJSON {
		delim = "\n"
	}

	segments := strings.Split(r.carry, delim)
	// The last segment may be a prefix of an unfinished event. Hold it back
	// and prepend it to the next chunk's text.
	r.carry = segments[len(segments)-1]

	var events []Event
	for _, seg := range segments[:len(segments)-1] {
		events = append(events, parseSegment(seg)...)
	}
	return events
}

// parseSegment extracts events from one frame. Lines without the payload
// prefix (event names, comments) are skipped. Payloads that fail to parse
// are skipped silently too: parse failures are expected mid-stream and are
// never terminal for the stream itself.
func parseSegment(seg string) []Event {
	var events []Event
	for line := range strings.SplitSeq(seg, "\n") {
		payload, ok := strings.CutPrefix(line, dataPrefix)
		if !ok {
			continue
		}
		if ev, ok := decodeEvent([]byte(payload)); ok {
			events = append(events, ev)
		}
	}
	return events
}

// splitCompleteRunes splits b into a decodable prefix and the trailing bytes
// of an incomplete UTF-8 sequence, if any. A multi-byte character split
// across chunks must never be decoded before all of its bytes arrive.
func splitCompleteRunes(b []byte) (string, []byte) {
	n := len(b)
	cut := n
	for i := n - 1; i >= 0 && n-i < utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				cut = i
			}
			break
		}
	}
	if cut == n {
		return string(b), nil
	}
	rest := make([]byte, n-cut)
	copy(rest, b[cut:])
	return string(b[:cut]), rest
}
