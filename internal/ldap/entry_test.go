package ldap

import (
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testGUIDBytes = []byte{0x78, 0x56, 0x34, 0x12, 0x34, 0x12, 0x78, 0x56, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	testSIDBytes  = []byte{
		0x01, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05,
		0x15, 0x00, 0x00, 0x00,
		0xdc, 0xf4, 0xdc, 0x3b,
		0x83, 0x3d, 0x2b, 0x46,
		0x82, 0x8b, 0xa6, 0x28,
		0x00, 0x02, 0x00, 0x00,
	}
)

func TestGUIDBytesToString(t *testing.T) {
	got, err := GUIDBytesToString(testGUIDBytes)
	require.NoError(t, err)
	assert.Equal(t, "12345678-1234-5678-1234-56789abcdef0", got)

	_, err = GUIDBytesToString(testGUIDBytes[:15])
	assert.ErrorContains(t, err, "expected 16, got 15")
}

func TestSIDBytesToString(t *testing.T) {
	got, err := SIDBytesToString(testSIDBytes)
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-21-1004336348-1177238915-682003330-512", got)

	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "empty", raw: nil},
		{name: "truncated", raw: testSIDBytes[:20]},
		{name: "wrong revision", raw: append([]byte{0x02}, testSIDBytes[1:]...)},
		{name: "text value", raw: []byte("S-1-5-21-1004336348")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SIDBytesToString(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestDecodeEntry(t *testing.T) {
	assert.Nil(t, DecodeEntry(nil))

	entry := &ldap.Entry{
		DN: "cn=Alice A.,ou=people,dc=example,dc=com",
		Attributes: []*ldap.EntryAttribute{
			{Name: "cn", Values: []string{"Alice A."}},
			{Name: "mail", Values: []string{"alice@example.com", "a.a@example.com"}},
			{Name: "objectGUID", Values: []string{string(testGUIDBytes)}, ByteValues: [][]byte{testGUIDBytes}},
			{Name: "objectSid", Values: []string{string(testSIDBytes)}, ByteValues: [][]byte{testSIDBytes}},
		},
	}

	got := DecodeEntry(entry)
	assert.Equal(t, map[string][]string{
		"dn":         {"cn=Alice A.,ou=people,dc=example,dc=com"},
		"cn":         {"Alice A."},
		"mail":       {"alice@example.com", "a.a@example.com"},
		"objectGUID": {"12345678-1234-5678-1234-56789abcdef0"},
		"objectSid":  {"S-1-5-21-1004336348-1177238915-682003330-512"},
	}, got)

	// values must not alias the entry
	got["mail"][0] = "changed"
	assert.Equal(t, "alice@example.com", entry.Attributes[1].Values[0])
}

func TestDecodeEntry_TextualGUID(t *testing.T) {
	// Some servers return objectGUID already rendered.
	text := "12345678-1234-5678-1234-56789abcdef0"
	entry := &ldap.Entry{
		DN: "cn=x,dc=example,dc=com",
		Attributes: []*ldap.EntryAttribute{
			{Name: "objectGUID", Values: []string{text}, ByteValues: [][]byte{[]byte(text)}},
		},
	}

	assert.Equal(t, []string{text}, DecodeEntry(entry)["objectGUID"])
}
