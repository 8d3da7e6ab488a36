package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint derives a Digest identifying a typed value for memoization
// keying. The kind tag keeps values of different registered types distinct
// even when their encoded forms collide. Values must encode
// deterministically; encoding/json sorts map keys, and struct fields encode
// in declaration order, so any JSON-encodable value qualifies.
func Fingerprint(kind string, v any) (Digest, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Digest{}, fmt.Errorf("fingerprint %s: %w", kind, err)
	}
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(body)
	var d Digest
	copy(d.Hash[:], h.Sum(nil))
	d.Size = int64(len(body))
	return d, nil
}

// Combine folds an ordered label and a set of digests into one Digest. The
// inputs are sorted first, so Combine is order-insensitive; callers that
// need ordering bake it into the label.
func Combine(label string, digests ...Digest) Digest {
	sorted := make([]Digest, len(digests))
	copy(sorted, digests)
	sort.Slice(sorted, func(i, j int) bool {
		for b := range sorted[i].Hash {
			if sorted[i].Hash[b] != sorted[j].Hash[b] {
				return sorted[i].Hash[b] < sorted[j].Hash[b]
			}
		}
		return sorted[i].Size < sorted[j].Size
	})
	h := sha256.New()
	h.Write([]byte(label))
	h.Write([]byte{0})
	var total int64
	for _, d := range sorted {
		h.Write(d.Hash[:])
		var sz [8]byte
		binary.BigEndian.PutUint64(sz[:], uint64(d.Size))
		h.Write(sz[:])
		total += d.Size
	}
	var out Digest
	copy(out.Hash[:], h.Sum(nil))
	out.Size = total
	return out
}
