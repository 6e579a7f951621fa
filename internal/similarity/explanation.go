package similarity

import (
	"fmt"
	"strings"
)

// Explanation is a tree describing how a score was computed. Leaves carry
// the raw operands, inner nodes the operation applied to their children.
type Explanation struct {
	IsMatch     bool           `json:"match"`
	Value       float32        `json:"value"`
	Description string         `json:"description"`
	Details     []*Explanation `json:"details,omitempty"`
}

// Match builds an explanation for a matching document.
func Match(value float32, description string, details ...*Explanation) *Explanation {
	return &Explanation{
		IsMatch:     true,
		Value:       value,
		Description: description,
		Details:     details,
	}
}

// NoMatch builds an explanation for a document that does not match.
func NoMatch(description string, details ...*Explanation) *Explanation {
	return &Explanation{
		Description: description,
		Details:     details,
	}
}

// Summary renders this node without its details.
func (e *Explanation) Summary() string {
	return fmt.Sprintf("%v = %v", e.Value, e.Description)
}

func (e *Explanation) String() string {
	var sb strings.Builder
	e.write(&sb, 0)
	return sb.String()
}

func (e *Explanation) write(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(e.Summary())
	sb.WriteByte('\n')
	for _, d := range e.Details {
		d.write(sb, depth+1)
	}
}
