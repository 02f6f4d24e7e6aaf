package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/zeebo/blake3"
)

// Digest identifies a metadata document by its bytes. SHA256 names the blob
// in a Store; BLAKE3 is the faster key used for caching and catalog lookups.
type Digest struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// hexPattern matches a lowercase 256-bit hex digest.
var hexPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Sum computes both digests of data.
func Sum(data []byte) Digest {
	return Digest{SHA256: Hash(data), BLAKE3: Blake3Hash(data)}
}

// Hash computes the SHA-256 digest of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Blake3Hash computes the BLAKE3 digest of data.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns the first twelve characters of the BLAKE3 digest, enough to
// tell documents apart in logs.
func (d Digest) Short() string {
	if len(d.BLAKE3) < 12 {
		return d.BLAKE3
	}
	return d.BLAKE3[:12]
}

func isValidHash(hash string) bool {
	return hexPattern.MatchString(hash)
}
