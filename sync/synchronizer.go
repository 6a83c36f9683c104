// Package sync runs the periodic persistence loop that materializes each
// tracked document's current content into its per-document git repository,
// publishes the current active-peer list as that repository's bootstrap
// file, and reconciles local content with the remote on pull.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"texswarm/apperr"
	"texswarm/crdt"
	"texswarm/document"
	"texswarm/gitrepo"
	"texswarm/peer"
)

const (
	// wakeupInterval is how often the scheduler checks whether any tracked
	// document is due for a sync, independent of each document's own
	// sync_interval.
	wakeupInterval = 30 * time.Second

	documentFile  = "document.tex"
	bootstrapFile = "bootstrap.txt"
)

// Synchronizer periodically reconciles every tracked document's CRDT
// content with its git repository, and answers on-demand save requests.
type Synchronizer struct {
	engine   *crdt.Engine
	peers    *peer.Registry
	git      *gitrepo.Manager
	interval time.Duration
	branch   string
	log      *zap.SugaredLogger

	mu             sync.Mutex
	lastSync       map[document.ID]time.Time
	needsAttention map[document.ID]bool
	tracked        map[document.ID]struct{}
}

// New returns a Synchronizer that saves every tracked document once every
// interval (default 300s, matching git.sync_interval_secs), checked on a
// fixed 30s wakeup tick.
func New(engine *crdt.Engine, peers *peer.Registry, git *gitrepo.Manager, interval time.Duration, branch string, log *zap.SugaredLogger) *Synchronizer {
	if interval <= 0 {
		interval = 300 * time.Second
	}
	if branch == "" {
		branch = "main"
	}
	return &Synchronizer{
		engine:         engine,
		peers:          peers,
		git:            git,
		interval:       interval,
		branch:         branch,
		log:            log,
		lastSync:       make(map[document.ID]time.Time),
		needsAttention: make(map[document.ID]bool),
		tracked:        make(map[document.ID]struct{}),
	}
}

// Track adds id to the set of documents this synchronizer saves.
func (s *Synchronizer) Track(id document.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[id] = struct{}{}
}

// Untrack removes id from the sync set, e.g. once a document is deleted.
func (s *Synchronizer) Untrack(id document.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracked, id)
	delete(s.lastSync, id)
	delete(s.needsAttention, id)
}

// NeedsAttention reports whether id's last sync ended in a merge conflict
// that has not yet been cleared by an explicit SaveDocument call.
func (s *Synchronizer) NeedsAttention(id document.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsAttention[id]
}

// Run ticks every wakeupInterval until ctx is cancelled, saving every
// tracked document whose own sync_interval has elapsed.
func (s *Synchronizer) Run(ctx context.Context) {
	ticker := time.NewTicker(wakeupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Synchronizer) tick() {
	for _, id := range s.dueDocuments() {
		if err := s.SaveDocument(id); err != nil {
			s.log.Warnw("sync: periodic save failed", "doc", id, "err", err)
		}
	}
}

func (s *Synchronizer) dueDocuments() []document.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := make([]document.ID, 0, len(s.tracked))
	for id := range s.tracked {
		if s.needsAttention[id] {
			continue // paused until an explicit SaveDocument call clears the conflict
		}
		last, ok := s.lastSync[id]
		if !ok || time.Since(last) >= s.interval {
			due = append(due, id)
		}
	}
	return due
}

// SaveDocument runs the save protocol for id immediately: materialize the
// engine's current content into the document's repository, commit and push
// it, publish the current active-peer list as the bootstrap file, and
// stamp last_sync. A successful explicit save clears any prior
// needs-attention flag, resuming periodic auto-sync for id.
func (s *Synchronizer) SaveDocument(id document.ID) error {
	doc, err := s.engine.GetDocument(id)
	if err != nil {
		return err
	}
	content, err := s.engine.Content(id)
	if err != nil {
		return err
	}

	if _, err := s.git.CloneOrOpen(id, doc.RepositoryURL); err != nil {
		s.recordResult(id, err)
		return err
	}

	commitMsg := fmt.Sprintf("Update document %s", doc.Title)
	if err := s.git.Save(id, documentFile, content, commitMsg); err != nil {
		s.recordResult(id, err)
		return err
	}

	if err := s.saveBootstrap(id); err != nil {
		s.recordResult(id, err)
		return err
	}

	s.recordResult(id, nil)
	return nil
}

func (s *Synchronizer) saveBootstrap(id document.ID) error {
	active := make(map[peer.ID]bool)
	for _, info := range s.peers.ActivePeers() {
		active[info.PeerID] = true
	}
	peers := make([]gitrepo.BootstrapPeer, 0)
	for _, info := range s.peers.DocumentPeers(id) {
		if !active[info.PeerID] {
			continue
		}
		peers = append(peers, gitrepo.BootstrapPeer{
			PeerID:    info.PeerID.String(),
			Addresses: info.Addresses,
		})
	}
	path, err := s.git.RepoFilePath(id, bootstrapFile)
	if err != nil {
		return err
	}
	if err := gitrepo.CreateBootstrapFile(path, peers); err != nil {
		return err
	}
	return s.git.CommitFile(id, bootstrapFile, "Update bootstrap peers")
}

func (s *Synchronizer) recordResult(id document.ID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync[id] = time.Now()
	s.needsAttention[id] = err != nil && apperr.Is(err, apperr.MergeConflict)
}

// PullDocument fetches and reconciles id's repository with its remote,
// then overwrites the engine's content from the repository's document.tex.
// A merge conflict marks id as needing attention and pauses its periodic
// auto-save until the next explicit SaveDocument call.
func (s *Synchronizer) PullDocument(id document.ID) error {
	if err := s.git.Pull(id, s.branch); err != nil {
		s.mu.Lock()
		s.needsAttention[id] = apperr.Is(err, apperr.MergeConflict)
		s.mu.Unlock()
		if apperr.Is(err, apperr.MergeConflict) {
			s.log.Warnw("sync: merge conflict, document needs attention", "doc", id)
		}
		return err
	}

	content, err := s.git.ReadFile(id, documentFile)
	if err != nil {
		return err
	}
	return s.engine.Overwrite(id, content)
}
