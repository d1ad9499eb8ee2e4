package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogOnlyListsBuildableFamilies(t *testing.T) {
	registerFake(t, "ollama", &fakeBackend{id: "ollama"})

	var ids []string
	for _, meta := range Catalog() {
		ids = append(ids, meta.ID)
	}
	assert.Contains(t, ids, "ollama")
	assert.NotContains(t, ids, "azure")
}

func TestProfiles(t *testing.T) {
	registerFake(t, "ollama", &fakeBackend{id: "ollama"})
	registerFake(t, "openai", &fakeBackend{id: "openai"})

	profiles := Profiles()
	byID := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	t.Run("LocalGroupHasBuildableMembersOnly", func(t *testing.T) {
		local, ok := byID["local"]
		require.True(t, ok, "local profile must be offered when ollama is buildable")
		require.Len(t, local.Backends, 1)
		assert.Equal(t, "ollama", local.Backends[0].ID)
		assert.NotEmpty(t, local.Name)
		assert.NotEmpty(t, local.Description)
	})

	t.Run("StarterGroupResolvesMetadata", func(t *testing.T) {
		starter, ok := byID["starter"]
		require.True(t, ok)
		require.Len(t, starter.Backends, 1)
		assert.Equal(t, "openai", starter.Backends[0].ID)
		assert.Equal(t, "OpenAI", starter.Backends[0].Name)
	})

	t.Run("EmptyGroupsAreDropped", func(t *testing.T) {
		_, ok := byID["enterprise"]
		assert.False(t, ok, "no enterprise family is buildable in this test binary")
	})
}
