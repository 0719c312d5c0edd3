package dns

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ResourceRecord is an owned decoded view of a single resource record
// (RFC 1035 Section 4.1.3). RDATA is kept opaque: callers that need to
// interpret it (e.g. to read an A record's address) do so explicitly.
// Type 41 (OPT, RFC 6891) decodes like any other record — its RDATA is
// preserved as opaque bytes by whatever code walks the record chain,
// satisfying passthrough. The only OPT-specific handling is in Marshal,
// which always writes the root name for it.
type ResourceRecord struct {
	Name     []string // labels, in on-the-wire order, not dot-joined
	Type     uint16
	Class    uint16
	TTL      uint32
	RDLength uint16
	RData    []byte

	// Size is the number of bytes this record occupied on the wire,
	// including its name, so callers can locate the next record.
	Size int

	// ttlFieldOffset is the byte offset of this record's 4-byte TTL
	// field within the buffer it was decoded from, letting
	// Message.SetResponseTTL overwrite it in place.
	ttlFieldOffset int
}

// ParseResourceRecord decodes one resource record from msg starting at
// *off, advancing *off past it.
func ParseResourceRecord(msg []byte, off *int) (ResourceRecord, error) {
	start := *off
	name, err := DecodeLabels(msg, off)
	if err != nil {
		return ResourceRecord{}, err
	}
	if *off+10 > len(msg) {
		return ResourceRecord{}, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrDNSError)
	}
	rrType := binary.BigEndian.Uint16(msg[*off : *off+2])
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttlFieldOffset := *off + 4
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := binary.BigEndian.Uint16(msg[*off+8 : *off+10])
	*off += 10

	if *off+int(rdlen) > len(msg) {
		return ResourceRecord{}, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrDNSError)
	}
	rdata := make([]byte, rdlen)
	copy(rdata, msg[*off:*off+int(rdlen)])
	*off += int(rdlen)

	return ResourceRecord{
		Name:           name,
		Type:           rrType,
		Class:          rrClass,
		TTL:            ttl,
		RDLength:       rdlen,
		RData:          rdata,
		Size:           *off - start,
		ttlFieldOffset: ttlFieldOffset,
	}, nil
}

// Marshal serializes the record to wire format. OPT records (type 41)
// always encode the root name, matching RFC 6891.
func (rr ResourceRecord) Marshal() ([]byte, error) {
	nameWire := []byte{0}
	if rr.Type != uint16(TypeOPT) {
		b, err := EncodeName(JoinLabels(rr.Name))
		if err != nil {
			return nil, err
		}
		nameWire = b
	}
	out := make([]byte, 0, len(nameWire)+10+len(rr.RData))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], rr.Type)
	binary.BigEndian.PutUint16(fixed[2:4], rr.Class)
	binary.BigEndian.PutUint32(fixed[4:8], rr.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rr.RData)))
	out = append(out, fixed...)
	out = append(out, rr.RData...)
	return out, nil
}

// NewARecord builds an A resource record for name pointing at addr. This
// is the shape used by deny and override response synthesis.
func NewARecord(name string, addr [4]byte, ttl uint32) ResourceRecord {
	return ResourceRecord{
		Name:     SplitLabels(name),
		Type:     uint16(TypeA),
		Class:    uint16(ClassIN),
		TTL:      ttl,
		RDLength: 4,
		RData:    addr[:],
	}
}

// IPv4 returns the dotted-decimal address carried by an A record's RDATA.
func (rr ResourceRecord) IPv4() (string, bool) {
	if RecordType(rr.Type) != TypeA || len(rr.RData) != 4 {
		return "", false
	}
	return net.IPv4(rr.RData[0], rr.RData[1], rr.RData[2], rr.RData[3]).String(), true
}
