package ldap

import (
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// PasswordMethod selects how a new password is written to the directory.
type PasswordMethod string

const (
	// PasswordMethodExop uses the RFC 3062 password modify extended operation.
	PasswordMethodExop PasswordMethod = "exop"

	// PasswordMethodAD replaces unicodePwd, as Active Directory requires.
	PasswordMethodAD PasswordMethod = "ad"
)

// Valid reports whether m is a known method.
func (m PasswordMethod) Valid() bool {
	return m == PasswordMethodExop || m == PasswordMethodAD
}

// EncodeADPassword encodes password for the unicodePwd attribute: the quoted
// password in UTF-16LE without a byte order mark.
func EncodeADPassword(password string) (string, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, err := encoder.String(`"` + password + `"`)
	if err != nil {
		return "", fmt.Errorf("encoding unicodePwd: %w", err)
	}
	return encoded, nil
}
