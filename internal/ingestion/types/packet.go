// Package types holds the value types that travel through the packet
// pipeline. Both carry fixed-size arrays so a queue slot owns its bytes and
// nothing on the hand-off path allocates.
package types

import "time"

const (
	// MaxPayloadSize is the largest payload kept per datagram. Anything
	// beyond it is cut off before the packet is queued.
	MaxPayloadSize = 1500

	// MaxAddrSize holds the text form of any IPv6 address. Longer
	// addresses (zones) are cut off.
	MaxAddrSize = 46

	// MaxRecordSize is the output buffer of one formatted record, sized for
	// a fully hex-encoded payload plus its header.
	MaxRecordSize = MaxPayloadSize * 3
)

// ReceivedPacket is one datagram as captured by the receiver.
type ReceivedPacket struct {
	Timestamp int64 // Unix seconds at capture

	addrLen int
	addr    [MaxAddrSize]byte

	dataLen int
	data    [MaxPayloadSize]byte
}

// NewReceivedPacket copies addr and payload into a packet stamped with now.
// It reports whether the payload had to be truncated.
func NewReceivedPacket(now time.Time, addr string, payload []byte) (ReceivedPacket, bool) {
	var p ReceivedPacket
	truncated := p.Fill(now, []byte(addr), payload)
	return p, truncated
}

// Fill overwrites p in place, the allocation-free form of NewReceivedPacket.
func (p *ReceivedPacket) Fill(now time.Time, addr, payload []byte) bool {
	p.Timestamp = now.Unix()
	p.addrLen = copy(p.addr[:], addr)
	p.dataLen = copy(p.data[:], payload)
	return len(payload) > MaxPayloadSize
}

// Addr returns the source address text.
func (p *ReceivedPacket) Addr() []byte {
	return p.addr[:p.addrLen]
}

// Payload returns the captured payload bytes.
func (p *ReceivedPacket) Payload() []byte {
	return p.data[:p.dataLen]
}

// FormattedRecord is one rendered output line, newline included.
type FormattedRecord struct {
	n   int
	buf [MaxRecordSize]byte
}

// Bytes returns the rendered record.
func (r *FormattedRecord) Bytes() []byte {
	return r.buf[:r.n]
}

func (r *FormattedRecord) Len() int {
	return r.n
}

// Buffer exposes the full backing array for renderers; SetLen publishes how
// much of it is used.
func (r *FormattedRecord) Buffer() []byte {
	return r.buf[:]
}

func (r *FormattedRecord) SetLen(n int) {
	if n < 0 {
		n = 0
	}
	if n > MaxRecordSize {
		n = MaxRecordSize
	}
	r.n = n
}
