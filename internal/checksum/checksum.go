// Package checksum computes the content digests sent alongside uploads.
package checksum

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// New returns a fresh hash for alg. An empty algorithm selects SHA256.
func New(alg domain.ChecksumAlgorithm) (hash.Hash, error) {
	switch alg {
	case domain.ChecksumSHA256, "":
		return sha256.New(), nil
	case domain.ChecksumCRC32C:
		return crc32.New(castagnoli), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", alg)
	}
}

// Sum returns the Base64 digest of data, the encoding storage providers use
// in checksum headers.
func Sum(alg domain.ChecksumAlgorithm, data []byte) (string, error) {
	h, err := New(alg)
	if err != nil {
		return "", err
	}
	_, _ = h.Write(data)
	return Base64(h), nil
}

// Base64 encodes the current digest of h.
func Base64(h hash.Hash) string {
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Hex encodes the current digest of h.
func Hex(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
