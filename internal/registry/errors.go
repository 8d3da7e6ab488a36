package registry

import (
	"fmt"
	"strings"
)

// AmbiguousRuleError reports two or more rules claiming the same output
// slot without disambiguation.
type AmbiguousRuleError struct {
	Output string
	Rules  []string
}

func (e *AmbiguousRuleError) Error() string {
	return fmt.Sprintf("ambiguous rules for output %q: %s", e.Output, strings.Join(e.Rules, ", "))
}

// NoRuleError reports a requested output with zero registered producers.
type NoRuleError struct {
	Output string
}

func (e *NoRuleError) Error() string {
	return fmt.Sprintf("no rule registered for output %q", e.Output)
}
