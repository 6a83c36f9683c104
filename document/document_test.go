package document

import "testing"

func TestNewOwnerIsImplicitCollaborator(t *testing.T) {
	doc := New(NewID(), "T", "u1")
	if !doc.IsCollaborator("u1") {
		t.Fatalf("owner should be an implicit collaborator")
	}
	if doc.UpdatedAt.Before(doc.CreatedAt) {
		t.Fatalf("updated_at must never precede created_at")
	}
}

func TestAddRemoveCollaborator(t *testing.T) {
	doc := New(NewID(), "T", "u1")
	doc.AddCollaborator("u2")
	if !doc.IsCollaborator("u2") {
		t.Fatalf("u2 should be a collaborator after AddCollaborator")
	}

	doc.RemoveCollaborator("u2")
	if doc.IsCollaborator("u2") {
		t.Fatalf("u2 should no longer be a collaborator after RemoveCollaborator")
	}
	if !doc.IsCollaborator("u1") {
		t.Fatalf("removing u2 must not affect the owner's access")
	}
}

func TestSetRepositoryURLAndUpdateTitle(t *testing.T) {
	doc := New(NewID(), "T", "u1")
	before := doc.UpdatedAt

	doc.SetRepositoryURL("https://example.com/doc.git")
	if doc.RepositoryURL != "https://example.com/doc.git" {
		t.Fatalf("repository url not set")
	}

	doc.UpdateTitle("New Title")
	if doc.Title != "New Title" {
		t.Fatalf("title = %q, want %q", doc.Title, "New Title")
	}
	if doc.UpdatedAt.Before(before) {
		t.Fatalf("updated_at must not move backwards")
	}
}
