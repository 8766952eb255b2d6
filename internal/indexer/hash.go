package indexer

import (
	"crypto/sha256"
	"encoding/hex"
)

// EmptyDigest is the SHA-256 of zero bytes: the distinguished hash for
// empty or unreadable files, which are skipped downstream.
const EmptyDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// HashBytes returns the hex SHA-256 digest of content. This is the
// persisted hash format; nothing faster may land on disk.
func HashBytes(content []byte) string {
	if len(content) == 0 {
		return EmptyDigest
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
