package peer

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"texswarm/document"
)

func testPeerID(t *testing.T) peer.ID {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		t.Fatalf("derive peer id: %v", err)
	}
	return id
}

func TestMarkEditingTracksDocuments(t *testing.T) {
	r := NewRegistry(time.Minute)
	id := testPeerID(t)
	r.AddPeer(id)

	docID := document.NewID()
	if !r.MarkEditing(id, docID) {
		t.Fatalf("first MarkEditing should report a newly observed document")
	}
	if r.MarkEditing(id, docID) {
		t.Fatalf("second MarkEditing for the same document should report false")
	}

	peers := r.DocumentPeers(docID)
	if len(peers) != 1 || peers[0].PeerID != id {
		t.Fatalf("DocumentPeers = %+v, want [%v]", peers, id)
	}
}

func TestCleanupInactiveRemovesStalePeers(t *testing.T) {
	r := NewRegistry(0) // zero timeout: every peer is immediately inactive
	id := testPeerID(t)
	r.AddPeer(id)

	r.CleanupInactive()
	if _, ok := r.Get(id); ok {
		t.Fatalf("peer should have been cleaned up")
	}
}

func TestPresenceTracksLastKnownCursor(t *testing.T) {
	r := NewRegistry(time.Minute)
	id := testPeerID(t)
	r.AddPeer(id)

	docID := document.NewID()
	r.UpdatePresence(id, docID, 42)

	presences := r.Presences(docID)
	if presences[id] != 42 {
		t.Fatalf("presence cursor = %d, want 42", presences[id])
	}
}
