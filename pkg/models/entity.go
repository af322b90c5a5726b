package models

import "time"

// Entity types.
const (
	EntityTypeUser  = "user"
	EntityTypeGroup = "group"
	EntityTypePage  = "page"
)

// Entity is a row in the shared users/groups/pages table. Local entities and
// remote stubs live side by side: Hostname is nil for local entities and
// names the entity's *origin* node for stubs. The numeric ID is node-local
// and never crosses the wire; PUID is the only cross-node identifier.
type Entity struct {
	ID                 int       `db:"id"`
	PUID               string    `db:"puid"`
	Hostname           *string   `db:"hostname"`
	EntityType         string    `db:"entity_type"`
	DisplayName        string    `db:"display_name"`
	ProfilePicturePath *string   `db:"profile_picture_path"`
	Created            time.Time `db:"created"`
}

// IsRemote reports whether this row is a stub for a remote entity.
func (e *Entity) IsRemote() bool {
	return e.Hostname != nil && *e.Hostname != ""
}

// HomeHostname returns the entity's origin hostname, or "" for local entities.
func (e *Entity) HomeHostname() string {
	if e.Hostname == nil {
		return ""
	}
	return *e.Hostname
}

// EntityRef is the wire-side description of an entity: what one node tells
// another when referencing a user/group/page. Hostname always names the
// entity's origin node, not whichever node is relaying the reference.
type EntityRef struct {
	PUID               string `json:"puid"`
	Hostname           string `json:"hostname"`
	DisplayName        string `json:"display_name"`
	ProfilePicturePath string `json:"profile_picture_path,omitempty"`
	EntityType         string `json:"entity_type,omitempty"`
}

// Ref converts a stub or local entity into its wire representation.
// localHostname fills in the origin for local entities.
func (e *Entity) Ref(localHostname string) EntityRef {
	host := e.HomeHostname()
	if host == "" {
		host = localHostname
	}
	pic := ""
	if e.ProfilePicturePath != nil {
		pic = *e.ProfilePicturePath
	}
	return EntityRef{
		PUID:               e.PUID,
		Hostname:           host,
		DisplayName:        e.DisplayName,
		ProfilePicturePath: pic,
		EntityType:         e.EntityType,
	}
}
