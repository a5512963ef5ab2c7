package linkage

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	codeMin = 100000
	codeMax = 999999
)

var codeSpan = big.NewInt(codeMax - codeMin + 1)

// GenerateCode returns a uniformly chosen 6 digit code in [100000, 999999].
// Codes are not unique; the store rejects a code already active elsewhere.
func GenerateCode() string {
	// crypto/rand.Reader never returns an error since go1.24.
	n, _ := rand.Int(rand.Reader, codeSpan)
	return strconv.FormatInt(n.Int64()+codeMin, 10)
}

// ValidCodeFormat reports whether s can be an invitation code at all.
func ValidCodeFormat(s string) bool {
	if len(s) != 6 || s[0] < '1' || s[0] > '9' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
