// Package gitrepo persists documents into per-document git repositories
// and synchronizes them with a remote, mirroring the conventions of a
// push/pull-based collaboration backend.
package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"texswarm/apperr"
	"texswarm/document"
)

const defaultAuthorName = "P2P LaTeX Collaborator"
const defaultAuthorEmail = "collab@example.com"

// Signature identifies the author of commits this manager makes.
type Signature struct {
	Name  string
	Email string
}

// Auth carries optional credentials for push/pull against a remote.
type Auth struct {
	Username string
	Password string // a personal access token, for HTTPS remotes
}

// Manager owns one git repository per document, rooted under BaseDir.
type Manager struct {
	BaseDir   string
	Signature Signature
	Auth      *Auth
}

// New returns a Manager storing repositories under baseDir. An empty
// signature falls back to the collaboration bot identity.
func New(baseDir string, sig Signature, auth *Auth) *Manager {
	if sig.Name == "" {
		sig.Name = defaultAuthorName
	}
	if sig.Email == "" {
		sig.Email = defaultAuthorEmail
	}
	return &Manager{BaseDir: baseDir, Signature: sig, Auth: auth}
}

func (m *Manager) repoPath(id document.ID) string {
	return filepath.Join(m.BaseDir, id.String())
}

func (m *Manager) authMethod() *http.BasicAuth {
	if m.Auth == nil {
		return nil
	}
	return &http.BasicAuth{Username: m.Auth.Username, Password: m.Auth.Password}
}

// CloneOrOpen returns the repository for id, opening it if it is already
// present locally. Otherwise it clones it from remoteURL, or, if remoteURL
// is empty, initializes a fresh local-only repository.
func (m *Manager) CloneOrOpen(id document.ID, remoteURL string) (*git.Repository, error) {
	path := m.repoPath(id)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, apperr.Wrap(apperr.RepositoryError, "open repository", err)
	}

	if remoteURL == "" {
		repo, err = git.PlainInit(path, false)
		if err != nil {
			return nil, apperr.Wrap(apperr.RepositoryError, "init repository", err)
		}
		return repo, nil
	}

	repo, err = git.PlainClone(path, false, &git.CloneOptions{
		URL:  remoteURL,
		Auth: authOrNil(m.authMethod()),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.RepositoryError, "clone repository", err)
	}
	return repo, nil
}

func authOrNil(a *http.BasicAuth) *http.BasicAuth {
	if a == nil || a.Username == "" {
		return nil
	}
	return a
}

// RepoFilePath returns the absolute on-disk path of fileName inside id's
// repository worktree, cloning or initializing the repository first if it
// isn't present locally yet.
func (m *Manager) RepoFilePath(id document.ID, fileName string) (string, error) {
	repo, err := m.CloneOrOpen(id, "")
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", apperr.Wrap(apperr.RepositoryError, "worktree", err)
	}
	return filepath.Join(wt.Filesystem.Root(), fileName), nil
}

// ReadFile reads fileName from id's repository.
func (m *Manager) ReadFile(id document.ID, fileName string) (string, error) {
	path, err := m.RepoFilePath(id, fileName)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.Wrap(apperr.RepositoryError, "read document file", err)
	}
	return string(data), nil
}

// Save writes content to fileName inside the document's repository, stages
// it, commits with the configured signature, and pushes if a remote is
// configured.
func (m *Manager) Save(id document.ID, fileName, content, commitMessage string) error {
	path, err := m.RepoFilePath(id, fileName)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return apperr.Wrap(apperr.RepositoryError, "write document file", err)
	}
	if commitMessage == "" {
		commitMessage = fmt.Sprintf("Update %s", fileName)
	}
	return m.CommitFile(id, fileName, commitMessage)
}

// CommitFile stages an already-written fileName inside id's repository,
// commits it with the configured signature, and pushes if a remote is
// configured. Used for files written directly to the worktree (e.g. the
// bootstrap file) without going through Save's write step.
func (m *Manager) CommitFile(id document.ID, fileName, commitMessage string) error {
	repo, err := m.CloneOrOpen(id, "")
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return apperr.Wrap(apperr.RepositoryError, "worktree", err)
	}
	if _, err := wt.Add(fileName); err != nil {
		return apperr.Wrap(apperr.RepositoryError, "stage document file", err)
	}

	_, err = wt.Commit(commitMessage, &git.CommitOptions{
		Author: &object.Signature{
			Name:  m.Signature.Name,
			Email: m.Signature.Email,
			When:  time.Now(),
		},
	})
	if err != nil && !errors.Is(err, git.ErrEmptyCommit) {
		return apperr.Wrap(apperr.RepositoryError, "commit document", err)
	}

	if hasRemote(repo) {
		if err := m.push(repo); err != nil {
			return err
		}
	}
	return nil
}

func hasRemote(repo *git.Repository) bool {
	remotes, err := repo.Remotes()
	return err == nil && len(remotes) > 0
}

func (m *Manager) push(repo *git.Repository) error {
	err := repo.Push(&git.PushOptions{Auth: authOrNil(m.authMethod())})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return apperr.Wrap(apperr.RepositoryError, "push", err)
	}
	return nil
}

// DocumentFileName is the single materialized file Pull reconciles against
// when histories have diverged.
const DocumentFileName = "document.tex"

// Pull fetches from origin and reconciles the local branch with it: a
// fast-forward when the remote is strictly ahead, a synthesized merge
// commit (with both tips as parents) when histories diverged but
// DocumentFileName's content already agrees, and apperr.MergeConflict when
// the content genuinely differs.
func (m *Manager) Pull(id document.ID, branch string) error {
	repo, err := m.CloneOrOpen(id, "")
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return apperr.Wrap(apperr.RepositoryError, "worktree", err)
	}

	if !hasRemote(repo) {
		return nil // nothing to pull for a local-only document
	}

	err = wt.Pull(&git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		Auth:          authOrNil(m.authMethod()),
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return m.reconcileDiverged(repo, wt, id, branch)
	default:
		if strings.Contains(err.Error(), "non-fast-forward") {
			return m.reconcileDiverged(repo, wt, id, branch)
		}
		return apperr.Wrap(apperr.RepositoryError, "pull", err)
	}
}

// reconcileDiverged handles a non-fast-forward pull: if DocumentFileName's
// content at the remote tip already matches the local worktree, the
// divergence is purely historical and gets folded into a synthesized
// merge commit; otherwise the caller must resolve it manually.
func (m *Manager) reconcileDiverged(repo *git.Repository, wt *git.Worktree, id document.ID, branch string) error {
	localRef, err := repo.Head()
	if err != nil {
		return apperr.Wrap(apperr.RepositoryError, "head", err)
	}
	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return apperr.Wrap(apperr.RepositoryError, "remote ref", err)
	}

	remoteCommit, err := repo.CommitObject(remoteRef.Hash())
	if err != nil {
		return apperr.Wrap(apperr.RepositoryError, "remote commit", err)
	}
	remoteTree, err := remoteCommit.Tree()
	if err != nil {
		return apperr.Wrap(apperr.RepositoryError, "remote tree", err)
	}
	remoteFile, err := remoteTree.File(DocumentFileName)
	if err != nil {
		return apperr.New(apperr.MergeConflict, "remote missing "+DocumentFileName+" for "+id.String())
	}
	remoteContent, err := remoteFile.Contents()
	if err != nil {
		return apperr.Wrap(apperr.RepositoryError, "remote file contents", err)
	}

	localBytes, err := os.ReadFile(filepath.Join(wt.Filesystem.Root(), DocumentFileName))
	if err != nil {
		return apperr.Wrap(apperr.RepositoryError, "local file", err)
	}

	if string(localBytes) != remoteContent {
		return apperr.New(apperr.MergeConflict, "local and remote history diverged for "+id.String())
	}

	_, err = wt.Commit(commitMergeMessage(branch), &git.CommitOptions{
		Author: &object.Signature{
			Name:  m.Signature.Name,
			Email: m.Signature.Email,
			When:  time.Now(),
		},
		Parents:           []plumbing.Hash{localRef.Hash(), remoteRef.Hash()},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return apperr.Wrap(apperr.RepositoryError, "merge commit", err)
	}
	return nil
}

func commitMergeMessage(branch string) string {
	return fmt.Sprintf("Merge remote-tracking branch 'origin/%s'", branch)
}

// RemoteConfig describes a remote to attach to a document's repository.
type RemoteConfig struct {
	Name string
	URL  string
}

// SetRemote adds or updates a named remote on the document's repository.
func (m *Manager) SetRemote(id document.ID, rc RemoteConfig) error {
	repo, err := m.CloneOrOpen(id, "")
	if err != nil {
		return err
	}
	_, err = repo.CreateRemote(&config.RemoteConfig{Name: rc.Name, URLs: []string{rc.URL}})
	if err != nil && !errors.Is(err, git.ErrRemoteExists) {
		return apperr.Wrap(apperr.RepositoryError, "set remote", err)
	}
	return nil
}
