package ensure

import (
	"testing"

	"texswarm/document"

	"texswarm/crdt"
)

func TestEnsureDocumentCreatesMissing(t *testing.T) {
	engine := crdt.NewEngine()
	ensurer := New(engine)

	id := document.NewID()
	doc, err := ensurer.EnsureDocument(id, "u1")
	if err != nil {
		t.Fatalf("ensure document: %v", err)
	}
	if doc.ID != id {
		t.Fatalf("created document has id %v, want %v", doc.ID, id)
	}

	again, err := ensurer.EnsureDocument(id, "u1")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if again != doc {
		t.Fatalf("second ensure returned a different document instance")
	}
}

func TestEnsureDocumentUsesPendingTitle(t *testing.T) {
	engine := crdt.NewEngine()
	ensurer := New(engine)

	id := document.NewID()
	ensurer.RegisterPendingTitle(id, "Shared Paper")

	doc, err := ensurer.EnsureDocument(id, "u1")
	if err != nil {
		t.Fatalf("ensure document: %v", err)
	}
	if doc.Title != "Shared Paper" {
		t.Fatalf("title = %q, want %q", doc.Title, "Shared Paper")
	}
}
