package dns

import "fmt"

// Limits for incoming DNS messages to prevent resource exhaustion attacks.
const (
	MaxIncomingDNSMessageSize = 4096 // Maximum size of incoming DNS message
	MaxQuestions              = 4    // Maximum questions per query (RFC allows 1 typically)
	MaxRRPerSection           = 100  // Maximum resource records per section
	MaxTotalRR                = 200  // Maximum total resource records
)

// ParseRequestBounded parses a DNS request with security bounds checking.
// It validates that the message is a standard query (not a response),
// uses opcode 0 (QUERY), and carries exactly one question — multi-question
// messages are RFC-permitted but unsupported here.
//
// A failure here is wire-malformed: the caller drops the query and logs,
// it never synthesizes a response (spec §4.7 — no FORMERR, no SERVFAIL).
func ParseRequestBounded(buf []byte) (*Message, error) {
	if len(buf) > MaxIncomingDNSMessageSize {
		return nil, fmt.Errorf("%w: DNS message too large (%d bytes)", ErrDNSError, len(buf))
	}
	m, err := ParseMessage(buf)
	if err != nil {
		return nil, err
	}
	if m.QR() {
		return nil, fmt.Errorf("%w: response packet received where query expected", ErrDNSError)
	}
	if opcode := m.Opcode(); opcode != 0 {
		return nil, fmt.Errorf("%w: unsupported opcode %d", ErrDNSError, opcode)
	}
	if err := validateSectionCounts(m); err != nil {
		return nil, err
	}
	return m, nil
}

// validateSectionCounts checks that section counts don't exceed limits.
func validateSectionCounts(m *Message) error {
	qd := int(m.QDCount())
	an := int(m.ANCount())
	ns := int(m.NSCount())
	ar := int(m.ARCount())

	if qd > MaxQuestions {
		return fmt.Errorf("%w: too many questions (%d)", ErrDNSError, qd)
	}
	if qd != 1 {
		return fmt.Errorf("%w: unsupported question count (%d)", ErrDNSError, qd)
	}
	if an > MaxRRPerSection || ns > MaxRRPerSection || ar > MaxRRPerSection {
		return fmt.Errorf("%w: too many resource records in one section", ErrDNSError)
	}
	if (an + ns + ar) > MaxTotalRR {
		return fmt.Errorf("%w: too many total resource records (%d)", ErrDNSError, an+ns+ar)
	}
	return nil
}
