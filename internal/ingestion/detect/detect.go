// Package detect classifies datagram payloads as ASCII, UTF-8 or binary.
package detect

// ContentType is the classification of a payload.
type ContentType uint8

const (
	ContentTypeASCII ContentType = iota
	ContentTypeUTF8
	ContentTypeBinary
)

// String returns the tag written into records.
func (c ContentType) String() string {
	switch c {
	case ContentTypeASCII:
		return "ascii"
	case ContentTypeUTF8:
		return "utf8"
	default:
		return "bin"
	}
}

// Classify scans b once, left to right, and stops at the first invalid
// sequence.
//
// Multi-byte sequences are checked structurally: the lead byte selects the
// length and every following byte must be a continuation (10xxxxxx). Two-byte
// sequences led by 0xC0 or 0xC1 are overlong and rejected. Longer sequences
// are not checked for overlong forms, surrogates or the U+10FFFF ceiling.
// An empty buffer is ASCII.
func Classify(b []byte) ContentType {
	ascii := true

	for i := 0; i < len(b); {
		c := b[i]
		if c < 0x80 {
			i++
			continue
		}
		ascii = false

		var n int
		switch {
		case c&0xE0 == 0xC0:
			if c < 0xC2 {
				return ContentTypeBinary
			}
			n = 1
		case c&0xF0 == 0xE0:
			n = 2
		case c&0xF8 == 0xF0:
			n = 3
		default:
			return ContentTypeBinary
		}

		if i+n >= len(b) {
			return ContentTypeBinary
		}
		for j := 1; j <= n; j++ {
			if b[i+j]&0xC0 != 0x80 {
				return ContentTypeBinary
			}
		}
		i += n + 1
	}

	if ascii {
		return ContentTypeASCII
	}
	return ContentTypeUTF8
}
