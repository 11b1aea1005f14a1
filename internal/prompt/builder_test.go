// ABOUTME: Tests for system prompt assembly
// ABOUTME: Covers empty-fragment skipping, ordering and conditional caveats

package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilder_SkipsEmptyFragments(t *testing.T) {
	got := NewBuilder().
		Add("You are a support agent.").
		Add("").
		Add("   \n  ").
		Add("Answer briefly.").
		Build()

	assert.Equal(t, "You are a support agent.\n\nAnswer briefly.", got)
}

func TestBuilder_EmptyResult(t *testing.T) {
	assert.Equal(t, "", NewBuilder().Add("").Build())
	assert.Equal(t, "", Merge("", "  "))
}

func TestBuilder_AddIf(t *testing.T) {
	got := NewBuilder().
		Add("Base prompt.").
		AddIf(false, "should not appear").
		AddIf(true, ToolCallUnsupportedCaveat).
		Build()

	assert.Contains(t, got, "Base prompt.")
	assert.NotContains(t, got, "should not appear")
	assert.Contains(t, got, "tool calling is not available")
}

func TestMerge_PreservesOrder(t *testing.T) {
	got := Merge("first", "", "second", "third")
	assert.Equal(t, "first\n\nsecond\n\nthird", got)
}
