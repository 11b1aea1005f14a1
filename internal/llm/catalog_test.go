// ABOUTME: Tests for the static model catalog
// ABOUTME: Covers lookups, fallbacks and capability flags

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup_KnownModel(t *testing.T) {
	info := Lookup(ProviderOpenAI, "gpt-4o")
	assert.True(t, info.SupportsTools)
	assert.False(t, info.ImageOnly)
}

func TestLookup_ImageOnlyModel(t *testing.T) {
	assert.True(t, Lookup(ProviderOpenAI, "gpt-image-1").ImageOnly)
	assert.True(t, Lookup(ProviderGoogle, "imagen-3.0-generate-002").ImageOnly)
}

func TestLookup_ImageCapableChatModel(t *testing.T) {
	info := Lookup(ProviderGoogle, "gemini-2.0-flash-preview-image-generation")
	assert.True(t, info.ImageCapable)
	assert.False(t, info.ImageOnly)
	assert.False(t, info.SupportsTools)
}

func TestLookup_UnknownModelAssumesToolSupport(t *testing.T) {
	assert.True(t, Lookup(ProviderOpenAI, "gpt-99").SupportsTools)
	// Aggregator and local models default to no tool support
	assert.False(t, Lookup(ProviderOpenRouter, "some/new-model").SupportsTools)
	assert.False(t, Lookup(ProviderOllama, "mystery").SupportsTools)
}

func TestKnownProvider(t *testing.T) {
	assert.True(t, KnownProvider(ProviderAnthropic))
	assert.False(t, KnownProvider("cohere"))
}

func TestDefaultModels_CoverAllProviders(t *testing.T) {
	for _, p := range []string{
		ProviderOpenAI, ProviderAnthropic, ProviderGoogle,
		ProviderXAI, ProviderOpenRouter, ProviderOllama,
	} {
		assert.NotEmpty(t, DefaultModels[p], p)
	}
}
