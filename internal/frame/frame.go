// Package frame classifies inbound notification payloads from the
// wireless link. A payload is either a transfer control frame or opaque
// file data; classification is pure and never rejects a payload.
package frame

import (
	"strconv"
	"strings"
)

const (
	headerTag   = "FILE:"
	endSentinel = "END"
)

// Kind discriminates the three frame shapes.
type Kind int

const (
	// KindData is any payload that is not a recognized control frame.
	KindData Kind = iota
	// KindHeaderBegin opens a transfer: "FILE:<name>:<size>".
	KindHeaderBegin
	// KindEnd closes a transfer: the literal "END".
	KindEnd
)

// Frame is one classified notification payload.
type Frame struct {
	Kind Kind

	// HeaderBegin only.
	Filename     string
	DeclaredSize int64

	// Data only. Aliases the input payload, not a copy.
	Payload []byte
}

// Classify inspects one payload and returns its frame. Control frames are
// matched on a best-effort text reading; a payload that merely resembles a
// header but does not parse falls through to data rather than failing the
// stream. Raw bytes pass through untouched, invalid UTF-8 included.
func Classify(payload []byte) Frame {
	text := string(payload)
	if text == endSentinel {
		return Frame{Kind: KindEnd}
	}
	if strings.HasPrefix(text, headerTag) {
		if f, ok := parseHeader(text); ok {
			return f
		}
	}
	return Frame{Kind: KindData, Payload: payload}
}

// parseHeader parses "FILE:<name>:<size>". At least two fields must follow
// the tag. Trailing fields beyond the size are ignored.
func parseHeader(text string) (Frame, bool) {
	parts := strings.Split(text, ":")
	if len(parts) < 3 {
		return Frame{}, false
	}
	name := parts[1]
	size, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
	if err != nil || name == "" || size < 0 {
		return Frame{}, false
	}
	return Frame{Kind: KindHeaderBegin, Filename: name, DeclaredSize: size}, true
}
