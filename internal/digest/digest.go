// Package digest defines the content-derived identity used throughout the
// engine. A Digest names an immutable blob or directory tree by the SHA-256
// of its canonical bytes plus its length; identical content always yields
// the same Digest.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// HashSize is the length in bytes of a Digest's hash component.
const HashSize = sha256.Size

// Digest identifies immutable content by hash and size. The zero value is
// not a valid digest; use FromBytes or Parse.
type Digest struct {
	Hash [HashSize]byte
	Size int64
}

// FromBytes computes the Digest of a byte slice.
func FromBytes(b []byte) Digest {
	return Digest{Hash: sha256.Sum256(b), Size: int64(len(b))}
}

// FromReader computes the Digest of everything readable from r.
func FromReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Digest{}, err
	}
	var d Digest
	copy(d.Hash[:], h.Sum(nil))
	d.Size = n
	return d, nil
}

// String renders the digest as "<hex hash>/<size>".
func (d Digest) String() string {
	return hex.EncodeToString(d.Hash[:]) + "/" + strconv.FormatInt(d.Size, 10)
}

// Short returns an abbreviated hash prefix suitable for log lines.
func (d Digest) Short() string {
	return hex.EncodeToString(d.Hash[:6])
}

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Parse is the inverse of String.
func Parse(s string) (Digest, error) {
	hexPart, sizePart, ok := strings.Cut(s, "/")
	if !ok {
		return Digest{}, fmt.Errorf("malformed digest %q: missing size separator", s)
	}
	raw, err := hex.DecodeString(hexPart)
	if err != nil {
		return Digest{}, fmt.Errorf("malformed digest %q: %w", s, err)
	}
	if len(raw) != HashSize {
		return Digest{}, fmt.Errorf("malformed digest %q: hash is %d bytes, want %d", s, len(raw), HashSize)
	}
	size, err := strconv.ParseInt(sizePart, 10, 64)
	if err != nil || size < 0 {
		return Digest{}, fmt.Errorf("malformed digest %q: bad size", s)
	}
	var d Digest
	copy(d.Hash[:], raw)
	d.Size = size
	return d, nil
}
