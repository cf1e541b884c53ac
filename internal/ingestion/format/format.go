// Package format renders received packets as semicolon-delimited records.
package format

import (
	"encoding/hex"
	"strconv"

	"github.com/zsiec/udplog/internal/ingestion/detect"
	"github.com/zsiec/udplog/internal/ingestion/types"
)

// Formatter turns a packet into an output record.
type Formatter interface {
	// Format renders p into out and returns the detected content type.
	Format(p *types.ReceivedPacket, out *types.FormattedRecord) detect.ContentType
}

const (
	maxTimestampDigits = 20 // "-9223372036854775808"
	maxTypeTag         = len("ascii")

	// "ts;" ts ";addr;" addr ";type;" tag ";data;" payload "\n"
	maxHeaderSize = len("ts;") + maxTimestampDigits + len(";addr;") + types.MaxAddrSize +
		len(";type;") + maxTypeTag + len(";data;")

	maxRecordSize = maxHeaderSize + 2*types.MaxPayloadSize + 1
)

// A worst-case record must fit the output buffer; this fails to compile if
// the header grows past the slack.
var _ [types.MaxRecordSize - maxRecordSize]struct{}

// BasicFormatter writes every packet. The filter expression is carried for
// future selection and currently matches everything.
type BasicFormatter struct {
	filter string
}

func NewBasicFormatter(filter string) *BasicFormatter {
	return &BasicFormatter{filter: filter}
}

// Filter returns the configured filter expression.
func (f *BasicFormatter) Filter() string {
	return f.filter
}

// Format renders
//
//	ts;<unix secs>;addr;<ip>;type;bin;data;<lowercase hex>\n
//	ts;<unix secs>;addr;<ip>;type;<ascii|utf8>;data;<raw bytes>\n
//
// directly into the record's fixed buffer. Output is cut short rather than
// overflowing, and the newline is always kept.
func (f *BasicFormatter) Format(p *types.ReceivedPacket, out *types.FormattedRecord) detect.ContentType {
	payload := p.Payload()
	ct := detect.Classify(payload)

	buf := out.Buffer()
	w := recordWriter{buf: buf[:len(buf)-1]}

	w.str("ts;")
	w.int(p.Timestamp)
	w.str(";addr;")
	w.bytes(p.Addr())
	w.str(";type;")
	w.str(ct.String())
	w.str(";data;")
	if ct == detect.ContentTypeBinary {
		w.hex(payload)
	} else {
		w.bytes(payload)
	}

	buf[w.n] = '\n'
	out.SetLen(w.n + 1)
	return ct
}

type recordWriter struct {
	buf []byte
	n   int
}

func (w *recordWriter) str(s string) {
	w.n += copy(w.buf[w.n:], s)
}

func (w *recordWriter) bytes(b []byte) {
	w.n += copy(w.buf[w.n:], b)
}

func (w *recordWriter) int(v int64) {
	var tmp [maxTimestampDigits]byte
	w.bytes(strconv.AppendInt(tmp[:0], v, 10))
}

func (w *recordWriter) hex(b []byte) {
	if room := (len(w.buf) - w.n) / 2; len(b) > room {
		b = b[:room]
	}
	w.n += hex.Encode(w.buf[w.n:], b)
}
