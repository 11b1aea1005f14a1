// ABOUTME: System prompt assembly from optional fragments
// ABOUTME: Pure string merge; empty fragments are skipped, joined by blank lines

package prompt

import "strings"

// ToolCallUnsupportedCaveat is appended when the selected model cannot
// call tools, so it doesn't hallucinate tool syntax.
const ToolCallUnsupportedCaveat = "Note: tool calling is not available for this model. " +
	"Answer directly from your own knowledge and say so when a lookup would be required."

// Builder accumulates system prompt fragments in order
type Builder struct {
	fragments []string
}

// NewBuilder creates an empty prompt builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a fragment. Empty or whitespace-only fragments are dropped.
func (b *Builder) Add(fragment string) *Builder {
	trimmed := strings.TrimSpace(fragment)
	if trimmed != "" {
		b.fragments = append(b.fragments, trimmed)
	}
	return b
}

// AddIf appends the fragment only when cond holds
func (b *Builder) AddIf(cond bool, fragment string) *Builder {
	if cond {
		b.Add(fragment)
	}
	return b
}

// Build joins the fragments with blank lines. Returns "" when nothing
// was added, so callers can omit the system message entirely.
func (b *Builder) Build() string {
	return strings.Join(b.fragments, "\n\n")
}

// Merge joins the given fragments directly, skipping empties.
// Convenience for call sites that have all fragments at hand.
func Merge(fragments ...string) string {
	b := NewBuilder()
	for _, f := range fragments {
		b.Add(f)
	}
	return b.Build()
}
