package rule

import (
	"fmt"
	"sort"

	"github.com/vk/rulegraph/internal/digest"
)

// Param is a typed value consumed by rules as implicit context. Params are
// compared by content: two params of the same kind with the same
// fingerprint are the same param.
type Param interface {
	// ParamKind returns a stable tag naming the param's type, unique
	// across all registered param types (conventionally
	// "module.TypeName").
	ParamKind() string
}

// Fingerprinter lets a param control its own identity. Params that do not
// implement it are fingerprinted by their canonical JSON encoding.
type Fingerprinter interface {
	Fingerprint() (digest.Digest, error)
}

// ParamSet is an ordered, kind-deduplicated set of params. When two params
// share a kind, the later one replaces the earlier, which lets callers
// narrow an inherited set. The zero value is the empty set.
type ParamSet struct {
	params []Param
}

// NewParamSet builds a set from the given params, deduplicating by kind.
func NewParamSet(params ...Param) ParamSet {
	var s ParamSet
	return s.With(params...)
}

// With returns a new set extending s, with later params replacing
// same-kind earlier ones. s itself is unchanged.
func (s ParamSet) With(params ...Param) ParamSet {
	out := make([]Param, 0, len(s.params)+len(params))
	out = append(out, s.params...)
	for _, p := range params {
		replaced := false
		for i, existing := range out {
			if existing.ParamKind() == p.ParamKind() {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return ParamSet{params: out}
}

// Get returns the param of the given kind, if present.
func (s ParamSet) Get(kind string) (Param, bool) {
	for _, p := range s.params {
		if p.ParamKind() == kind {
			return p, true
		}
	}
	return nil, false
}

// Kinds returns the sorted kind tags present in the set.
func (s ParamSet) Kinds() []string {
	kinds := make([]string, 0, len(s.params))
	for _, p := range s.params {
		kinds = append(kinds, p.ParamKind())
	}
	sort.Strings(kinds)
	return kinds
}

// Len returns the number of params in the set.
func (s ParamSet) Len() int { return len(s.params) }

// Fingerprint derives the set's content identity. Order does not matter;
// the set fingerprints identically however its params were supplied.
func (s ParamSet) Fingerprint() (digest.Digest, error) {
	fps := make([]digest.Digest, 0, len(s.params))
	for _, p := range s.params {
		fp, err := ParamFingerprint(p)
		if err != nil {
			return digest.Digest{}, err
		}
		fps = append(fps, fp)
	}
	return digest.Combine("params", fps...), nil
}

// ParamFingerprint computes the identity of a single param.
func ParamFingerprint(p Param) (digest.Digest, error) {
	if fp, ok := p.(Fingerprinter); ok {
		d, err := fp.Fingerprint()
		if err != nil {
			return digest.Digest{}, fmt.Errorf("param %s: %w", p.ParamKind(), err)
		}
		return d, nil
	}
	return digest.Fingerprint(p.ParamKind(), p)
}
