package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes the deterministic join key for a canonical
// address within a jurisdiction: the hex SHA-256 digest of the
// pipe-joined, uppercased (address, county, state) triple. It returns
// "" when the canonical address is empty, since an unresolvable address
// cannot participate in matching.
//
// The digest is the sole join key across ingestion jobs run at
// different times, so there is no salt and no randomness.
func Fingerprint(canonical, county, state string) string {
	if canonical == "" {
		return ""
	}
	key := strings.ToUpper(canonical + "|" + county + "|" + state)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
