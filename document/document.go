// Package document holds document metadata: ownership, collaborators,
// and the repository URL backing its persistence, independent of the CRDT
// content itself.
package document

import (
	"time"

	"github.com/google/uuid"
)

// ID uniquely identifies a document across the whole swarm.
type ID = uuid.UUID

// NewID generates a fresh document identifier.
func NewID() ID { return uuid.New() }

// Document is the metadata record for one collaborative document.
type Document struct {
	ID             ID
	Title          string
	Owner          string
	Collaborators  map[string]struct{}
	RepositoryURL  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// New creates a document owned by owner with the given title.
func New(id ID, title, owner string) *Document {
	now := time.Now()
	return &Document{
		ID:            id,
		Title:         title,
		Owner:         owner,
		Collaborators: map[string]struct{}{owner: {}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AddCollaborator grants userID access and bumps UpdatedAt.
func (d *Document) AddCollaborator(userID string) {
	d.Collaborators[userID] = struct{}{}
	d.UpdatedAt = time.Now()
}

// RemoveCollaborator revokes userID's access.
func (d *Document) RemoveCollaborator(userID string) {
	delete(d.Collaborators, userID)
	d.UpdatedAt = time.Now()
}

// IsCollaborator reports whether userID may edit this document.
func (d *Document) IsCollaborator(userID string) bool {
	_, ok := d.Collaborators[userID]
	return ok
}

// SetRepositoryURL records where this document's git repository lives.
func (d *Document) SetRepositoryURL(url string) {
	d.RepositoryURL = url
	d.UpdatedAt = time.Now()
}

// UpdateTitle renames the document.
func (d *Document) UpdateTitle(title string) {
	d.Title = title
	d.UpdatedAt = time.Now()
}
