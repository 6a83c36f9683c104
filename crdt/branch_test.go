package crdt

import "testing"

func TestBranchInsertDelete(t *testing.T) {
	b := NewBranch()
	pos := b.GeneratePositionAt(0, 1)
	b.Insert(pos, 'a', 1, 1)
	if b.Text() != "a" {
		t.Fatalf("text = %q, want %q", b.Text(), "a")
	}

	b.Delete(pos)
	if b.Text() != "" {
		t.Fatalf("text after delete = %q, want empty", b.Text())
	}
}

func TestBranchInsertIdempotent(t *testing.T) {
	b := NewBranch()
	pos := b.GeneratePositionAt(0, 1)
	b.Insert(pos, 'a', 1, 1)
	b.Insert(pos, 'z', 1, 1) // same position, re-insertion must be ignored

	if b.Text() != "a" {
		t.Fatalf("text = %q, want %q (re-insert should be a no-op)", b.Text(), "a")
	}
}

func TestBranchDeleteUnknownPositionIsNoop(t *testing.T) {
	b := NewBranch()
	ghost := b.GeneratePositionAt(0, 1)
	b.Delete(ghost) // nothing inserted yet; must not panic
	if b.Len() != 0 {
		t.Fatalf("len = %d, want 0", b.Len())
	}
}

func TestBranchOrderedInserts(t *testing.T) {
	b := NewBranch()
	for i, r := range "hello" {
		pos := b.GeneratePositionAt(i, 1)
		b.Insert(pos, r, 1, i)
	}
	if b.Text() != "hello" {
		t.Fatalf("text = %q, want %q", b.Text(), "hello")
	}
}
