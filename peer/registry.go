// Package peer tracks every peer this node currently knows about: identity,
// the documents they are actively editing, and their last-known cursor
// position within each.
package peer

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"texswarm/document"
)

// ID is a libp2p peer identity.
type ID = peer.ID

// Info is everything the registry tracks about one peer.
type Info struct {
	PeerID         ID
	UserID         string
	DisplayName    string
	ActiveDocs     map[document.ID]struct{}
	Addresses      []string
	LastSeen       time.Time
	cursors        map[document.ID]int
}

func newInfo(id ID) *Info {
	return &Info{
		PeerID:     id,
		ActiveDocs: make(map[document.ID]struct{}),
		cursors:    make(map[document.ID]int),
		LastSeen:   time.Now(),
	}
}

func (i *Info) markSeen() { i.LastSeen = time.Now() }

// IsActive reports whether this peer was seen within timeout.
func (i *Info) IsActive(timeout time.Duration) bool {
	return time.Since(i.LastSeen) < timeout
}

// Registry is the set of known peers, guarded for concurrent access from
// the dispatcher and from gossip handlers.
type Registry struct {
	mu            sync.RWMutex
	peers         map[ID]*Info
	activeTimeout time.Duration
}

// NewRegistry returns a registry that considers a peer inactive once
// activeTimeout or more has passed since it was last seen.
func NewRegistry(activeTimeout time.Duration) *Registry {
	return &Registry{peers: make(map[ID]*Info), activeTimeout: activeTimeout}
}

// UpdatePeer returns the Info for id, creating it on first sight and
// refreshing LastSeen.
func (r *Registry) UpdatePeer(id ID) *Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.peers[id]
	if !ok {
		info = newInfo(id)
		r.peers[id] = info
	}
	info.markSeen()
	return info
}

// AddPeer registers id if not already present.
func (r *Registry) AddPeer(id ID) *Info { return r.UpdatePeer(id) }

// Get returns the Info for id, if known.
func (r *Registry) Get(id ID) (*Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.peers[id]
	return info, ok
}

// Remove drops a peer from the registry, e.g. on disconnect.
func (r *Registry) Remove(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// AllPeers returns every peer the registry currently knows.
func (r *Registry) AllPeers() []*Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Info, 0, len(r.peers))
	for _, info := range r.peers {
		out = append(out, info)
	}
	return out
}

// ActivePeers returns every peer seen within the active timeout.
func (r *Registry) ActivePeers() []*Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Info, 0, len(r.peers))
	for _, info := range r.peers {
		if info.IsActive(r.activeTimeout) {
			out = append(out, info)
		}
	}
	return out
}

// DocumentPeers returns every peer currently editing docID.
func (r *Registry) DocumentPeers(docID document.ID) []*Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Info, 0)
	for _, info := range r.peers {
		if _, ok := info.ActiveDocs[docID]; ok {
			out = append(out, info)
		}
	}
	return out
}

// MarkEditing records that id is actively editing docID, returning true if
// this is a newly observed document for that peer. A peer not in the
// registry is ignored and reports false.
func (r *Registry) MarkEditing(id ID, docID document.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.peers[id]
	if !ok {
		return false
	}
	info.markSeen()
	if _, already := info.ActiveDocs[docID]; already {
		return false
	}
	info.ActiveDocs[docID] = struct{}{}
	return true
}

// CleanupInactive drops every peer not seen within the active timeout.
func (r *Registry) CleanupInactive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, info := range r.peers {
		if !info.IsActive(r.activeTimeout) {
			delete(r.peers, id)
		}
	}
}

// UpdatePresence records id's last-known cursor offset within docID. This
// is the only presence state the engine tracks — no selections, no rich
// cursor metadata.
func (r *Registry) UpdatePresence(id ID, docID document.ID, cursorOffset int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.peers[id]
	if !ok {
		return
	}
	info.cursors[docID] = cursorOffset
	info.markSeen()
}

// Presences returns the last-known cursor offset for every peer currently
// tracked against docID.
func (r *Registry) Presences(docID document.ID) map[ID]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[ID]int)
	for id, info := range r.peers {
		if c, ok := info.cursors[docID]; ok {
			out[id] = c
		}
	}
	return out
}
