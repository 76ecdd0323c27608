// Package fingerprint computes content identifiers for uploaded documents.
package fingerprint

import (
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// ShortLen is the number of hex characters returned by Short.
const ShortLen = 12

// Of returns the hex-encoded BLAKE3-256 digest of data.
func Of(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Reader hashes everything read from r.
func Reader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Short returns a prefix of the digest of data, suitable for log lines
// and cache keys shown to humans.
func Short(data []byte) string {
	return Of(data)[:ShortLen]
}

// Combine returns a digest over several payloads. Each part is length
// prefixed so that moving bytes between parts changes the result.
func Combine(parts ...[]byte) string {
	h := blake3.New()
	var size [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := range size {
			size[i] = byte(n >> (8 * i))
		}
		h.Write(size[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
