package ldap

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// DNAttribute is the pseudo attribute carrying an entry's distinguished name.
const DNAttribute = "dn"

// binary attributes that have a canonical string form.
var binaryDecoders = map[string]func([]byte) (string, error){
	"objectguid": GUIDBytesToString,
	"objectsid":  SIDBytesToString,
}

// DecodeEntry converts an LDAP entry into attribute name to string values.
// objectGUID and objectSid are rendered in their canonical text forms and
// the entry DN is exposed as the "dn" attribute.
func DecodeEntry(entry *ldap.Entry) map[string][]string {
	if entry == nil {
		return nil
	}

	out := make(map[string][]string, len(entry.Attributes)+1)
	if entry.DN != "" {
		out[DNAttribute] = []string{entry.DN}
	}

	for _, attr := range entry.Attributes {
		decode, binary := binaryDecoders[strings.ToLower(attr.Name)]
		if !binary {
			out[attr.Name] = append([]string(nil), attr.Values...)
			continue
		}

		values := make([]string, 0, len(attr.ByteValues))
		for _, raw := range attr.ByteValues {
			s, err := decode(raw)
			if err != nil {
				// Not binary after all, keep what the server sent.
				s = string(raw)
			}
			values = append(values, s)
		}
		out[attr.Name] = values
	}

	return out
}

// GUIDBytesToString converts a 16 byte Active Directory objectGUID into the
// canonical hyphenated form. The first three GUID fields are little-endian on
// the wire.
func GUIDBytesToString(b []byte) (string, error) {
	if len(b) != 16 {
		return "", fmt.Errorf("invalid GUID byte length: expected 16, got %d", len(b))
	}

	var standard [16]byte
	standard[0], standard[1], standard[2], standard[3] = b[3], b[2], b[1], b[0]
	standard[4], standard[5] = b[5], b[4]
	standard[6], standard[7] = b[7], b[6]
	copy(standard[8:], b[8:])

	id, err := uuid.FromBytes(standard[:])
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SIDBytesToString converts a binary objectSid into S-1-5-21-... form.
func SIDBytesToString(b []byte) (string, error) {
	// revision, sub-authority count, 6 byte authority, 4 bytes per sub-authority
	if len(b) < 8 || b[0] != 1 || len(b) != 8+4*int(b[1]) {
		return "", fmt.Errorf("invalid SID encoding (%d bytes)", len(b))
	}
	return objectsid.Decode(b).String(), nil
}
