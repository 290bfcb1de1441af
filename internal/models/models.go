package models

// Entity represents a node in the knowledge graph, backed by a single
// markdown file in the vault.
type Entity struct {
	Name          string         `json:"name"`
	Observations  []string       `json:"observations"`
	Relationships []Relationship `json:"relationships"`
	// Warnings holds non-fatal parse notes (malformed relationship
	// lines, heading mismatches) for this entity's file. They are
	// never written back to disk.
	Warnings []string `json:"warnings,omitempty"`
}

// Relationship is a directed, verbed link from its owning entity to a
// target name. The target need not exist. Context is optional: a nil
// context and an empty-string context are distinct for identity.
type Relationship struct {
	Verb    string  `json:"verb"`
	Target  string  `json:"target"`
	Context *string `json:"context,omitempty"`
}

// Matches reports whether two relationships are the same tuple:
// identical verb, target, and context, including context
// presence/absence.
func (r Relationship) Matches(other Relationship) bool {
	if r.Verb != other.Verb || r.Target != other.Target {
		return false
	}
	if (r.Context == nil) != (other.Context == nil) {
		return false
	}
	return r.Context == nil || *r.Context == *other.Context
}

// GraphRelationship is a relationship annotated with its owning entity,
// used in the flattened relationship list of a full graph dump.
type GraphRelationship struct {
	Source  string  `json:"source"`
	Verb    string  `json:"verb"`
	Target  string  `json:"target"`
	Context *string `json:"context,omitempty"`
}

// KnowledgeGraph is the full graph: entity name to entity, plus a
// flattened list of every relationship with its source attached.
type KnowledgeGraph struct {
	Entities      map[string]Entity   `json:"entities"`
	Relationships []GraphRelationship `json:"relationships"`
}

// BatchResult reports the outcome of a single item within a batch tool
// call.
type BatchResult struct {
	EntityName string `json:"entity_name,omitempty"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
}
