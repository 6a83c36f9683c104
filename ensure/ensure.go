// Package ensure implements the branch ensurer: it masks the race where a
// remote operation for a document arrives before that document's local
// branch has been created, by lazily creating the branch instead of
// dropping the operation.
package ensure

import (
	"sync"

	"texswarm/apperr"
	"texswarm/crdt"
	"texswarm/document"
)

// Ensurer lazily creates a document's branch on first touch, coalescing
// concurrent misses for the same document into a single create.
type Ensurer struct {
	engine *crdt.Engine

	mu      sync.Mutex
	pending map[document.ID]string // id -> best-known title while creation is in flight
}

// New returns an Ensurer backed by engine.
func New(engine *crdt.Engine) *Ensurer {
	return &Ensurer{engine: engine, pending: make(map[document.ID]string)}
}

// RegisterPendingTitle records a title to use if id needs to be lazily
// created later (e.g. learned from a MetadataUpdate before any operation
// arrives).
func (e *Ensurer) RegisterPendingTitle(id document.ID, title string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pending[id]; !ok {
		e.pending[id] = title
	}
}

// EnsureDocument returns the document for id, creating it if the engine
// does not yet know about it locally. It matches on the typed NotFound
// kind, never on error text.
func (e *Ensurer) EnsureDocument(id document.ID, owner string) (*document.Document, error) {
	doc, err := e.engine.GetDocument(id)
	if err == nil {
		return doc, nil
	}
	if !apperr.Is(err, apperr.NotFound) {
		return nil, err
	}

	e.mu.Lock()
	title, hasPending := e.pending[id]
	delete(e.pending, id)
	e.mu.Unlock()
	if !hasPending {
		title = "untitled"
	}

	// Re-check: another goroutine may have created it while we waited for
	// the pending-title lock.
	if doc, err := e.engine.GetDocument(id); err == nil {
		return doc, nil
	}

	created := e.engine.CreateDocumentWithID(id, title, owner)
	return created, nil
}
