package ldap

import (
	"strings"
)

// EscapeDNValue escapes an attribute value for use in a DN (RFC 4514):
// the characters , + " \ < > ; anywhere, # at the start, a space at either end,
// and NUL as \00.
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var b strings.Builder
	b.Grow(len(value) + 8)

	last := len(value) - 1
	for i, r := range value {
		switch {
		case strings.ContainsRune(`,+"\<>;`, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '#' && i == 0:
			b.WriteString(`\#`)
		case r == ' ' && (i == 0 || i == last):
			b.WriteString(`\ `)
		case r == 0:
			b.WriteString(`\00`)
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// UserDN builds <attribute>=<login>,<baseDN> with the login escaped.
func UserDN(attribute, login, baseDN string) string {
	rdn := attribute + "=" + EscapeDNValue(login)
	if baseDN == "" {
		return rdn
	}
	return rdn + "," + baseDN
}
