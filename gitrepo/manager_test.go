package gitrepo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"texswarm/apperr"
	"texswarm/document"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "repos"), Signature{}, nil)
}

func (m *Manager) testAuthor() *object.Signature {
	return &object.Signature{Name: m.Signature.Name, Email: m.Signature.Email, When: time.Now()}
}

func TestSaveThenReadRoundTrip(t *testing.T) {
	m := newTestManager(t)
	id := document.NewID()

	if err := m.Save(id, "document.tex", "hello", "Update document"); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := m.ReadFile(id, "document.tex")
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if got != "hello" {
		t.Fatalf("content = %q, want %q", got, "hello")
	}
}

func TestSaveIsIdempotentOnEmptyCommit(t *testing.T) {
	m := newTestManager(t)
	id := document.NewID()

	if err := m.Save(id, "document.tex", "same", "first"); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := m.Save(id, "document.tex", "same", "second"); err != nil {
		t.Fatalf("second save with unchanged content must not fail: %v", err)
	}
}

func TestCloneOrOpenReopensExistingRepository(t *testing.T) {
	m := newTestManager(t)
	id := document.NewID()

	repoA, err := m.CloneOrOpen(id, "")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	repoB, err := m.CloneOrOpen(id, "")
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	headA, errA := repoA.Head()
	headB, errB := repoB.Head()
	if errA == nil && errB == nil && headA.Hash() != headB.Hash() {
		t.Fatalf("reopened repository should reference the same history")
	}
}

func writeAndCommit(t *testing.T, m *Manager, repo *git.Repository, content string) {
	t.Helper()
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	path := filepath.Join(wt.Filesystem.Root(), "document.tex")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := wt.Add("document.tex"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := wt.Commit("Update document", &git.CommitOptions{Author: m.testAuthor()}); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// TestPullReconcilesDivergedHistoryWhenContentAgrees exercises merge
// reconciliation: two independent clones each commit the same document
// content, producing diverged histories with identical document.tex
// content, and Pull must fold that into a merge commit rather than
// reporting a conflict.
func TestPullReconcilesDivergedHistoryWhenContentAgrees(t *testing.T) {
	bareDir := t.TempDir()
	barePath := filepath.Join(bareDir, "origin.git")
	if _, err := git.PlainInit(barePath, true); err != nil {
		t.Fatalf("init bare origin: %v", err)
	}

	id := document.NewID()
	branch := "master"

	m1 := New(filepath.Join(t.TempDir(), "repos1"), Signature{}, nil)
	repo1, err := m1.CloneOrOpen(id, "")
	if err != nil {
		t.Fatalf("open repo1: %v", err)
	}
	writeAndCommit(t, m1, repo1, "content")
	if _, err := repo1.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{barePath}}); err != nil {
		t.Fatalf("create remote: %v", err)
	}
	refSpec := config.RefSpec("refs/heads/" + branch + ":refs/heads/" + branch)
	if err := repo1.Push(&git.PushOptions{RemoteName: "origin", RefSpecs: []config.RefSpec{refSpec}}); err != nil {
		t.Fatalf("push repo1: %v", err)
	}

	m2 := New(filepath.Join(t.TempDir(), "repos2"), Signature{}, nil)
	repo2, err := m2.CloneOrOpen(id, barePath)
	if err != nil {
		t.Fatalf("clone repo2: %v", err)
	}
	wt2, err := repo2.Worktree()
	if err != nil {
		t.Fatalf("worktree2: %v", err)
	}
	if err := wt2.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch), Force: true}); err != nil {
		t.Fatalf("checkout2: %v", err)
	}

	// repo1 commits again locally and pushes, diverging repo2's history,
	// but repo2 independently ends up with the same document content.
	writeAndCommit(t, m1, repo1, "content-v2")
	if err := repo1.Push(&git.PushOptions{RemoteName: "origin", RefSpecs: []config.RefSpec{refSpec}}); err != nil {
		t.Fatalf("push repo1 v2: %v", err)
	}

	path2 := filepath.Join(wt2.Filesystem.Root(), "document.tex")
	if err := os.WriteFile(path2, []byte("content-v2"), 0o644); err != nil {
		t.Fatalf("write repo2 content: %v", err)
	}
	if _, err := wt2.Add("document.tex"); err != nil {
		t.Fatalf("add repo2: %v", err)
	}
	if _, err := wt2.Commit("local update", &git.CommitOptions{Author: m2.testAuthor()}); err != nil {
		t.Fatalf("commit repo2: %v", err)
	}

	if err := m2.Pull(id, branch); err != nil {
		t.Fatalf("pull should reconcile identical content, got: %v", err)
	}
}

func TestPullReportsConflictWhenContentDiffers(t *testing.T) {
	bareDir := t.TempDir()
	barePath := filepath.Join(bareDir, "origin.git")
	if _, err := git.PlainInit(barePath, true); err != nil {
		t.Fatalf("init bare origin: %v", err)
	}

	id := document.NewID()
	branch := "master"

	m1 := New(filepath.Join(t.TempDir(), "repos1"), Signature{}, nil)
	repo1, err := m1.CloneOrOpen(id, "")
	if err != nil {
		t.Fatalf("open repo1: %v", err)
	}
	writeAndCommit(t, m1, repo1, "alpha")
	if _, err := repo1.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{barePath}}); err != nil {
		t.Fatalf("create remote: %v", err)
	}
	refSpec := config.RefSpec("refs/heads/" + branch + ":refs/heads/" + branch)
	if err := repo1.Push(&git.PushOptions{RemoteName: "origin", RefSpecs: []config.RefSpec{refSpec}}); err != nil {
		t.Fatalf("push repo1: %v", err)
	}

	m2 := New(filepath.Join(t.TempDir(), "repos2"), Signature{}, nil)
	repo2, err := m2.CloneOrOpen(id, barePath)
	if err != nil {
		t.Fatalf("clone repo2: %v", err)
	}
	wt2, err := repo2.Worktree()
	if err != nil {
		t.Fatalf("worktree2: %v", err)
	}
	if err := wt2.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch), Force: true}); err != nil {
		t.Fatalf("checkout2: %v", err)
	}

	writeAndCommit(t, m1, repo1, "beta")
	if err := repo1.Push(&git.PushOptions{RemoteName: "origin", RefSpecs: []config.RefSpec{refSpec}}); err != nil {
		t.Fatalf("push repo1 v2: %v", err)
	}

	path2 := filepath.Join(wt2.Filesystem.Root(), "document.tex")
	if err := os.WriteFile(path2, []byte("gamma"), 0o644); err != nil {
		t.Fatalf("write repo2 content: %v", err)
	}
	if _, err := wt2.Add("document.tex"); err != nil {
		t.Fatalf("add repo2: %v", err)
	}
	if _, err := wt2.Commit("local update", &git.CommitOptions{Author: m2.testAuthor()}); err != nil {
		t.Fatalf("commit repo2: %v", err)
	}

	err = m2.Pull(id, branch)
	if !apperr.Is(err, apperr.MergeConflict) {
		t.Fatalf("expected MergeConflict for differing content, got: %v", err)
	}
}
