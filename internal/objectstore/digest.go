package objectstore

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// metadataDigest is the metadata key each backend stores the object digest under.
const metadataDigest = "blake3"

// Digest returns the hex encoded BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)

	return hex.EncodeToString(sum[:])
}

func publicURL(baseURL, fallbackBase, key string) string {
	if baseURL == "" {
		baseURL = fallbackBase
	}

	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(key, "/")
}
