package places

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// DealerKey is the canonical entity key: the first 12 hex characters of the
// SHA-1 of the case-folded, trimmed "name | address" pair. It is a pure
// function, stable across processes, so downstream subsystems can join on it.
func DealerKey(name, address string) string {
	parts := make([]string, 0, 2)
	for _, part := range []string{name, address} {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			parts = append(parts, part)
		}
	}
	base := strings.Join(parts, " | ")
	if base == "" {
		base = "unknown"
	}
	sum := sha1.Sum([]byte(base))
	return hex.EncodeToString(sum[:])[:12]
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
