package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAgentID(t *testing.T) {
	valid := []string{"a", "agent-7", "research.bot_01", "A1B2"}
	for _, id := range valid {
		assert.NoError(t, ValidateAgentID(id), "id %q should be valid", id)
	}

	invalid := []string{"", "-leading-dash", ".dot", "has space", "slash/y", "émile", "x\n"}
	for _, id := range invalid {
		assert.ErrorIs(t, ValidateAgentID(id), ErrInvalidArgument, "id %q should be invalid", id)
	}

	// 64 chars total is the maximum.
	long := "a"
	for len(long) < 64 {
		long += "b"
	}
	assert.NoError(t, ValidateAgentID(long))
	assert.ErrorIs(t, ValidateAgentID(long+"c"), ErrInvalidArgument)
}

func TestTenancyKey_CollectionName(t *testing.T) {
	assert.Equal(t, "agent_private_memory_atlas", Private("atlas").CollectionName())
	assert.Equal(t, "shared_organizational_knowledge", Shared().CollectionName())

	// Distinct agents map to distinct collections.
	assert.NotEqual(t, Private("atlas").CollectionName(), Private("borealis").CollectionName())

	assert.False(t, Private("atlas").IsShared())
	assert.True(t, Shared().IsShared())
	assert.Equal(t, "atlas", Private("atlas").AgentID())
	assert.Empty(t, Shared().AgentID())
}
