package util

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns s in Unicode NFKC form with surrounding space removed.
// Channel user ids are normalized before they key sessions or ledger
// records, so visually identical ids map to one user.
func Normalize(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}
