// utils/address.go
package utils

import (
	"regexp"
)

// Classic ledger addresses: 'r' followed by 24-34 base58 characters
// (no 0, O, I or l).
var addressPattern = regexp.MustCompile(`^r[1-9A-HJ-NP-Za-km-z]{24,34}$`)

// IsValidAddress reports whether addr looks like a well-formed ledger
// address. Boundary check only; no checksum verification here.
func IsValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}
