package graph

import "strings"

// CycleError reports a dependency edge that would close a cycle. Chain
// lists the node keys along the cycle, starting and ending at the node
// whose request was rejected.
type CycleError struct {
	Chain []NodeKey
}

func (e *CycleError) Error() string {
	var b strings.Builder
	b.WriteString("dependency cycle: ")
	for i, key := range e.Chain {
		if i > 0 {
			b.WriteString(" -> ")
		}
		b.WriteString(key.String())
	}
	if len(e.Chain) > 0 {
		b.WriteString(" -> ")
		b.WriteString(e.Chain[0].String())
	}
	return b.String()
}
