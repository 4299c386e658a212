package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash returns the hex SHA-256 of data. File cache entries and locator
// addresses are named by it.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Key builds a metadata cache key such as "left-pad:1.3.0". Clients add
// their own registry prefix.
func Key(parts ...string) string { return strings.Join(parts, ":") }
