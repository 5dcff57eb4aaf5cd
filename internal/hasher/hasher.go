// Package hasher derives short content hashes for encoded artifacts.
package hasher

import (
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// ShortLen is the hex length used when a hash is embedded in a file name.
const ShortLen = 8

// Sum returns the xxHash64 of data as 16 lowercase hex chars.
func Sum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// SumReader streams r through xxHash64.
func SumReader(r io.Reader) (string, error) {
	h := xxhash.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// Short truncates a hash produced by Sum for use in file names.
func Short(sum string) string {
	if len(sum) <= ShortLen {
		return sum
	}
	return sum[:ShortLen]
}
