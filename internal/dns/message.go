package dns

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Message is a DNS packet held as an owned byte buffer. Field access is
// by bit/byte arithmetic directly against the buffer; mutation happens
// in place when the new value has the same wire width, or via splicing
// when a record is added. Mutators never shrink the buffer.
type Message struct {
	buf []byte
}

// HeaderSize is the fixed size of a DNS message header in bytes
// (RFC 1035 Section 4.1.1): ID, flags, and four 16-bit section counts.
const HeaderSize = 12

// MinMessageSize is the smallest legal DNS message: the 12-byte header
// with no questions or records.
const MinMessageSize = HeaderSize

// ParseMessage wraps buf as a Message. It validates only that the header
// fits; section contents are validated lazily by the accessors that
// decode them (Question, Answers).
func ParseMessage(buf []byte) (*Message, error) {
	if len(buf) < MinMessageSize {
		return nil, fmt.Errorf("%w: message shorter than DNS header (%d bytes)", ErrDNSError, len(buf))
	}
	return &Message{buf: buf}, nil
}

// Bytes returns the underlying buffer. Callers must not retain it past
// a subsequent mutating call, since AddAnswer may reallocate.
func (m *Message) Bytes() []byte { return m.buf }

// Clone returns a Message over an independent copy of the buffer, used
// when synthesizing a response from a query or storing a response in
// the cache.
func (m *Message) Clone() *Message {
	cp := make([]byte, len(m.buf))
	copy(cp, m.buf)
	return &Message{buf: cp}
}

func (m *Message) ID() uint16      { return binary.BigEndian.Uint16(m.buf[0:2]) }
func (m *Message) Flags() uint16   { return binary.BigEndian.Uint16(m.buf[2:4]) }
func (m *Message) QDCount() uint16 { return binary.BigEndian.Uint16(m.buf[4:6]) }
func (m *Message) ANCount() uint16 { return binary.BigEndian.Uint16(m.buf[6:8]) }
func (m *Message) NSCount() uint16 { return binary.BigEndian.Uint16(m.buf[8:10]) }
func (m *Message) ARCount() uint16 { return binary.BigEndian.Uint16(m.buf[10:12]) }

func (m *Message) QR() bool   { return m.Flags()&QRFlag != 0 }
func (m *Message) RD() bool   { return m.Flags()&RDFlag != 0 }
func (m *Message) AD() bool   { return m.Flags()&ADFlag != 0 }
func (m *Message) Opcode() uint16 {
	return (m.Flags() & OpcodeMask) >> 11
}
func (m *Message) RCode() RCode { return RCodeFromFlags(m.Flags()) }

// SetID overwrites the transaction ID in place.
func (m *Message) SetID(id uint16) {
	binary.BigEndian.PutUint16(m.buf[0:2], id)
}

// SetQR sets or clears the QR (query/response) flag bit.
func (m *Message) SetQR(qr bool) {
	m.setFlagBit(QRFlag, qr)
}

// SetAD sets or clears the AD (authenticated data) flag bit. Synthesized
// responses always clear it, since this forwarder performs no DNSSEC
// validation.
func (m *Message) SetAD(ad bool) {
	m.setFlagBit(ADFlag, ad)
}

func (m *Message) setFlagBit(bit uint16, set bool) {
	flags := m.Flags()
	if set {
		flags |= bit
	} else {
		flags &^= bit
	}
	binary.BigEndian.PutUint16(m.buf[2:4], flags)
}

// SetANCount overwrites the answer count field in place.
func (m *Message) SetANCount(n uint16) {
	binary.BigEndian.PutUint16(m.buf[6:8], n)
}

// Question decodes the first question in the message. Per the pipeline's
// single-question contract, any additional questions are skipped over
// (so the answer section is located correctly) but never exposed.
func (m *Message) Question() (Question, error) {
	off := HeaderSize
	if m.QDCount() == 0 {
		return Question{}, fmt.Errorf("%w: message has no question", ErrDNSError)
	}
	q, err := ParseQuestion(m.buf, &off)
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

// answerSectionStart walks past every declared question to find the byte
// offset where the answer section begins.
func (m *Message) answerSectionStart() (int, error) {
	off := HeaderSize
	for i := uint16(0); i < m.QDCount(); i++ {
		if _, err := ParseQuestion(m.buf, &off); err != nil {
			return 0, err
		}
	}
	return off, nil
}

// Answers decodes every record in the answer section.
func (m *Message) Answers() ([]ResourceRecord, error) {
	off, err := m.answerSectionStart()
	if err != nil {
		return nil, err
	}
	out := make([]ResourceRecord, 0, m.ANCount())
	for i := uint16(0); i < m.ANCount(); i++ {
		rr, err := ParseResourceRecord(m.buf, &off)
		if err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, nil
}

// SetResponseTTL walks every answer record and overwrites its TTL field
// in place, leaving record count, names and rdata untouched.
func (m *Message) SetResponseTTL(ttl uint32) error {
	off, err := m.answerSectionStart()
	if err != nil {
		return err
	}
	for i := uint16(0); i < m.ANCount(); i++ {
		rr, err := ParseResourceRecord(m.buf, &off)
		if err != nil {
			return err
		}
		binary.BigEndian.PutUint32(m.buf[rr.ttlFieldOffset:rr.ttlFieldOffset+4], ttl)
	}
	return nil
}

// AddAnswer splices the encoded record between the question section and
// the first existing answer (or immediately after the questions when
// there are none yet), and increments ANCount. The new answer becomes
// the first in the answer list.
func (m *Message) AddAnswer(rr ResourceRecord) error {
	encoded, err := rr.Marshal()
	if err != nil {
		return err
	}
	at, err := m.answerSectionStart()
	if err != nil {
		return err
	}
	out := make([]byte, 0, len(m.buf)+len(encoded))
	out = append(out, m.buf[:at]...)
	out = append(out, encoded...)
	out = append(out, m.buf[at:]...)
	m.buf = out
	m.SetANCount(m.ANCount() + 1)
	return nil
}

// SendTo emits the current buffer as a single UDP datagram.
func (m *Message) SendTo(conn *net.UDPConn, dst *net.UDPAddr) error {
	_, err := conn.WriteToUDP(m.buf, dst)
	return err
}

// BuildDenyResponse clones the query and synthesizes a response that
// answers with a literal address (0.0.0.0 for a block, or an override's
// configured address), ttl seconds, qr set and ad cleared. Any
// additional-section OPT record in the query is left untouched at the
// end of the buffer, since it sits after the (empty) answer section the
// query started with.
func BuildDenyResponse(query *Message, name string, addr [4]byte, ttl uint32) (*Message, error) {
	resp := query.Clone()
	resp.SetQR(true)
	resp.SetAD(false)
	if err := resp.AddAnswer(NewARecord(name, addr, ttl)); err != nil {
		return nil, err
	}
	return resp, nil
}
