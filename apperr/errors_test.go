package apperr

import (
	"errors"
	"testing"
)

func TestIsMatchesKindNotText(t *testing.T) {
	err := Wrap(NotFound, "document branch not found", errors.New("boom"))

	if !Is(err, NotFound) {
		t.Fatalf("expected Is(err, NotFound) to be true")
	}
	if Is(err, MergeConflict) {
		t.Fatalf("expected Is(err, MergeConflict) to be false")
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if KindOf(errors.New("plain")) != Internal {
		t.Fatalf("plain errors should default to Internal")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(RepositoryError, "save failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is should see through to the wrapped cause")
	}
}
