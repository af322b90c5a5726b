package federation

import (
	"fmt"

	"github.com/nodeweave/nodeweave/pkg/models"
	"github.com/nodeweave/nodeweave/pkg/store"
)

// Resolver finds or creates local stub rows for remote entities. Resolution
// is keyed on puid only; the stub records the entity's origin hostname from
// the reference, so an entity learned about through a relaying third node is
// still stubbed under its home node. Display fields refresh on every
// sighting, for users and groups alike.
type Resolver struct {
	localHostname string
	entities      store.EntityStore
}

func NewResolver(localHostname string, entities store.EntityStore) *Resolver {
	return &Resolver{
		localHostname: localHostname,
		entities:      entities,
	}
}

// ResolveUser returns the entity row for a remote user reference.
func (r *Resolver) ResolveUser(ref models.EntityRef) (*models.Entity, error) {
	ref.EntityType = models.EntityTypeUser
	return r.resolve(ref)
}

// ResolveGroup returns the entity row for a remote group reference.
func (r *Resolver) ResolveGroup(ref models.EntityRef) (*models.Entity, error) {
	ref.EntityType = models.EntityTypeGroup
	return r.resolve(ref)
}

// ResolvePage returns the entity row for a remote page reference.
func (r *Resolver) ResolvePage(ref models.EntityRef) (*models.Entity, error) {
	ref.EntityType = models.EntityTypePage
	return r.resolve(ref)
}

func (r *Resolver) resolve(ref models.EntityRef) (*models.Entity, error) {
	if ref.PUID == "" {
		return nil, fmt.Errorf("entity reference missing puid")
	}
	if ref.Hostname == "" {
		return nil, fmt.Errorf("entity reference missing origin hostname")
	}
	// A reference whose origin is this node names a local entity. It must
	// already exist here; stubbing it would shadow the authoritative row.
	if ref.Hostname == r.localHostname {
		entity, err := r.entities.GetByPUID(ref.PUID)
		if err != nil {
			return nil, err
		}
		if entity == nil || entity.IsRemote() {
			return nil, ErrLocalEntity
		}
		return entity, nil
	}
	return r.entities.ResolveStub(ref)
}
