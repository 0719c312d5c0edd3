package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceRecordMarshalA(t *testing.T) {
	rr := NewARecord("example.com", [4]byte{192, 0, 2, 1}, 300)

	b, err := rr.Marshal()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(b), 17)

	rdlenPos := len(b) - 4 - 2
	rdlen := int(b[rdlenPos])<<8 | int(b[rdlenPos+1])
	assert.Equal(t, 4, rdlen)
}

func TestParseResourceRecord(t *testing.T) {
	msg := []byte{
		7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0, // name
		0, 1, // type A
		0, 1, // class IN
		0, 0, 1, 44, // ttl = 300
		0, 4, // rdlength
		192, 0, 2, 1,
	}
	off := 0
	rr, err := ParseResourceRecord(msg, &off)
	require.NoError(t, err)
	assert.Equal(t, []string{"example", "com"}, rr.Name)
	assert.Equal(t, uint16(TypeA), rr.Type)
	assert.Equal(t, uint32(300), rr.TTL)
	assert.Equal(t, uint16(4), rr.RDLength)
	assert.Equal(t, len(msg), off)
	ip, ok := rr.IPv4()
	assert.True(t, ok)
	assert.Equal(t, "192.0.2.1", ip)
}

func TestResourceRecordRoundTrip(t *testing.T) {
	rr := NewARecord("www.imateapot.org", [4]byte{0, 0, 0, 0}, 86400)
	b, err := rr.Marshal()
	require.NoError(t, err)

	off := 0
	parsed, err := ParseResourceRecord(b, &off)
	require.NoError(t, err)
	assert.Equal(t, rr.Name, parsed.Name)
	assert.Equal(t, rr.Type, parsed.Type)
	assert.Equal(t, rr.TTL, parsed.TTL)
	assert.Equal(t, rr.RData, parsed.RData)
}

func TestParseResourceRecordTruncatedRData(t *testing.T) {
	msg := []byte{
		0,    // root name
		0, 1, // type A
		0, 1, // class IN
		0, 0, 0, 0, // ttl
		0, 4, // rdlength says 4
		1, 2, // but only 2 bytes follow
	}
	off := 0
	_, err := ParseResourceRecord(msg, &off)
	assert.Error(t, err)
}

func TestParseResourceRecordOPTPassthrough(t *testing.T) {
	// root name, type OPT(41), class=4096 (udp size), ttl=0, empty rdata
	msg := []byte{
		0,
		0, 41,
		0x10, 0x00,
		0, 0, 0, 0,
		0, 0,
	}
	off := 0
	rr, err := ParseResourceRecord(msg, &off)
	require.NoError(t, err)
	assert.Equal(t, uint16(41), rr.Type)
	assert.Equal(t, uint16(0x1000), rr.Class)
	assert.Empty(t, rr.RData)
}
