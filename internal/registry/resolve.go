package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/rulegraph/internal/ctxlog"
	"github.com/vk/rulegraph/internal/rule"
)

// Resolved is the closed dispatch table built from a Registry: every
// output tag maps to exactly one producer, and every union base maps to
// its member rules keyed by selector param kind. Resolved is immutable and
// safe for concurrent use.
type Resolved struct {
	byOutput map[string]*rule.Rule
	unions   map[string]map[string]*rule.Rule
	decoders map[string]RequestDecoder
}

// Resolve validates all registrations and builds the dispatch table.
// Every problem found is reported at once so a broken plugin set fails
// startup with the full list, not one error per restart.
func (r *Registry) Resolve(ctx context.Context) (*Resolved, error) {
	logger := ctxlog.FromContext(ctx)
	var errs []string

	res := &Resolved{
		byOutput: make(map[string]*rule.Rule),
		unions:   make(map[string]map[string]*rule.Rule),
		decoders: make(map[string]RequestDecoder),
	}
	for base := range r.unions {
		res.unions[base] = make(map[string]*rule.Rule)
	}
	for output, d := range r.decoders {
		res.decoders[output] = d
	}

	for i := range r.rules {
		rl := &r.rules[i]
		switch {
		case rl.Name == "":
			errs = append(errs, fmt.Sprintf("rule producing %q has no name", rl.Output))
			continue
		case rl.Output == "":
			errs = append(errs, fmt.Sprintf("rule %q declares no output type", rl.Name))
			continue
		case rl.Body == nil:
			errs = append(errs, fmt.Sprintf("rule %q has no body", rl.Name))
			continue
		}

		if prev, ok := res.byOutput[rl.Output]; ok {
			errs = append(errs, (&AmbiguousRuleError{
				Output: rl.Output,
				Rules:  []string{prev.Name, rl.Name},
			}).Error())
			continue
		}
		res.byOutput[rl.Output] = rl

		if rl.UnionBase == "" {
			continue
		}
		if rl.Selector == "" {
			errs = append(errs, fmt.Sprintf("union member %q (base %q) declares no selector param", rl.Name, rl.UnionBase))
			continue
		}
		members, ok := res.unions[rl.UnionBase]
		if !ok {
			errs = append(errs, fmt.Sprintf("rule %q joins undeclared union %q", rl.Name, rl.UnionBase))
			continue
		}
		if prev, ok := members[rl.Selector]; ok {
			errs = append(errs, (&AmbiguousRuleError{
				Output: rl.UnionBase,
				Rules:  []string{prev.Name, rl.Name},
			}).Error())
			continue
		}
		members[rl.Selector] = rl
	}

	for base, members := range res.unions {
		if len(members) == 0 {
			errs = append(errs, (&NoRuleError{Output: base}).Error())
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("rule registry resolution failed:\n- %s", strings.Join(errs, "\n- "))
	}
	logger.Debug("Rule registry resolved.", "rules", len(res.byOutput), "unions", len(res.unions))
	return res, nil
}

// RuleFor dispatches a request to its producing rule. Union bases select
// the member whose selector param is present in the request; a request
// carrying selectors for several members is ambiguous.
func (r *Resolved) RuleFor(req rule.Request) (*rule.Rule, error) {
	if members, ok := r.unions[req.Output]; ok {
		var matched []*rule.Rule
		for selector, member := range members {
			if _, present := req.Params.Get(selector); present {
				matched = append(matched, member)
			}
		}
		switch len(matched) {
		case 1:
			return matched[0], nil
		case 0:
			return nil, &NoRuleError{Output: req.Output}
		default:
			names := make([]string, len(matched))
			for i, m := range matched {
				names[i] = m.Name
			}
			return nil, &AmbiguousRuleError{Output: req.Output, Rules: names}
		}
	}
	rl, ok := r.byOutput[req.Output]
	if !ok {
		return nil, &NoRuleError{Output: req.Output}
	}
	return rl, nil
}

// Decoder returns the request decoder for an output type, if registered.
func (r *Resolved) Decoder(output string) (RequestDecoder, bool) {
	d, ok := r.decoders[output]
	return d, ok
}

// Outputs returns the number of directly addressable output types.
func (r *Resolved) Outputs() int { return len(r.byOutput) }
