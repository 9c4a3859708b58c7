package companion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cyberFlowTech/zapry-companion-go/persona"
	"github.com/cyberFlowTech/zapry-companion-go/store"
)

// ProfileProvider is the read side of the external memory/profile store.
type ProfileProvider interface {
	Relationship(ctx context.Context) (persona.RelationshipState, error)
}

const keyRelationship = "relationship"

// StoreProfile keeps the relationship state as a JSON document in a Store.
type StoreProfile struct {
	Store store.Store
}

// Relationship loads the stored state. A missing document reads as the
// first-run default.
func (p StoreProfile) Relationship(ctx context.Context) (persona.RelationshipState, error) {
	raw, err := p.Store.Get(ctx, keyRelationship)
	if errors.Is(err, store.ErrNotFound) {
		return *persona.DefaultRelationshipState(), nil
	}
	if err != nil {
		return *persona.DefaultRelationshipState(), fmt.Errorf("load relationship: %w", err)
	}
	rel := *persona.DefaultRelationshipState()
	if err := json.Unmarshal([]byte(raw), &rel); err != nil {
		return *persona.DefaultRelationshipState(), fmt.Errorf("decode relationship: %w", err)
	}
	return rel.Normalize(), nil
}

// SaveRelationship stores rel.
func (p StoreProfile) SaveRelationship(ctx context.Context, rel persona.RelationshipState) error {
	data, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("encode relationship: %w", err)
	}
	return p.Store.Set(ctx, keyRelationship, string(data))
}
