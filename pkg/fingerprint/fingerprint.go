// Package fingerprint computes algorithm-tagged content digests used to
// decide whether a previously installed file has been modified since it
// was put in place. Digests are formatted as "<algorithm>:<hex>" so the
// algorithm can change without invalidating stored values wholesale.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Algorithm identifies the digest algorithm in use.
const Algorithm = "sha256"

// Reader digests the full content of r.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return Algorithm + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

// File digests the content of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Reader(f)
}

// Bytes digests an in-memory buffer.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return Algorithm + ":" + hex.EncodeToString(sum[:])
}

// Valid reports whether s looks like a digest this package produced.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, Algorithm+":")
	if !ok {
		return false
	}
	if len(rest) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}
