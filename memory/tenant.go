package memory

import (
	"fmt"
	"regexp"
)

// Collection naming. Every agent gets a private collection; one shared
// collection holds organization-wide knowledge visible to all agents.
const (
	privateCollectionPrefix = "agent_private_memory_"
	sharedCollectionName    = "shared_organizational_knowledge"
)

// agentIDPattern constrains agent IDs so collection names stay valid for
// both the embedded store's on-disk layout and remote backends. One leading
// alphanumeric, then up to 63 of [A-Za-z0-9._-].
var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateAgentID reports whether id is usable as a tenant identifier.
func ValidateAgentID(id string) error {
	if !agentIDPattern.MatchString(id) {
		return fmt.Errorf("%w: agent id %q (want %s)", ErrInvalidArgument, id, agentIDPattern)
	}
	return nil
}

// TenancyKey identifies one logical collection: either a single agent's
// private memory or the shared organizational pool. The zero value is not
// valid; construct via Private or Shared.
type TenancyKey struct {
	agentID string
	shared  bool
}

// Private returns the key for an agent's private collection.
// The agent ID is not validated here; Manager validates before use.
func Private(agentID string) TenancyKey {
	return TenancyKey{agentID: agentID}
}

// Shared returns the key for the shared organizational collection.
func Shared() TenancyKey {
	return TenancyKey{shared: true}
}

// IsShared reports whether the key addresses the shared pool.
func (k TenancyKey) IsShared() bool {
	return k.shared
}

// AgentID returns the owning agent for a private key, or "" for shared.
func (k TenancyKey) AgentID() string {
	if k.shared {
		return ""
	}
	return k.agentID
}

// CollectionName returns the backend collection name for this key.
// Distinct agent IDs always map to distinct names.
func (k TenancyKey) CollectionName() string {
	if k.shared {
		return sharedCollectionName
	}
	return privateCollectionPrefix + k.agentID
}

func (k TenancyKey) String() string {
	return k.CollectionName()
}
