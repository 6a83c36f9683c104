package dispatch

import (
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	libp2pPeer "github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"texswarm/crdt"
	"texswarm/document"
	"texswarm/ensure"
	"texswarm/overlay"
	"texswarm/peer"
)

func testSource(t *testing.T) libp2pPeer.ID {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	id, err := libp2pPeer.IDFromPrivateKey(priv)
	if err != nil {
		t.Fatalf("derive peer id: %v", err)
	}
	return id
}

func newTestDispatcher() (*Dispatcher, *crdt.Engine, *peer.Registry) {
	engine := crdt.NewEngine()
	ensurer := ensure.New(engine)
	registry := peer.NewRegistry(time.Minute)
	d := New(engine, ensurer, registry, nil, zap.NewNop().Sugar())
	return d, engine, registry
}

// TestApplyRemoteOpEnsuresMissingDocument checks that a remote operation for
// a document this node has never seen lazily creates it via the branch
// ensurer rather than being dropped.
func TestApplyRemoteOpEnsuresMissingDocument(t *testing.T) {
	d, engine, _ := newTestDispatcher()
	source := testSource(t)
	id := document.NewID()

	// Derive a valid insertion position from a seed engine that already
	// knows this document, mirroring what the remote peer that authored
	// the operation would have computed.
	seed := crdt.NewEngine()
	seed.CreateDocumentWithID(id, "T", "u1")
	pos, err := seed.PositionForInsert(id, 0, "u1")
	if err != nil {
		t.Fatalf("seed position: %v", err)
	}
	op := crdt.Operation{Type: crdt.OpInsert, Pos: pos, Value: 'a'}
	payload, err := json.Marshal(op)
	if err != nil {
		t.Fatalf("marshal op: %v", err)
	}

	msg := overlay.NetworkMessage{Kind: overlay.MsgOperation, DocumentID: id, UserID: "u1", OpPayload: payload}
	d.handleMessage(source, msg)

	content, err := engine.Content(id)
	if err != nil {
		t.Fatalf("content after ensure+apply: %v", err)
	}
	if content != "a" {
		t.Fatalf("content = %q, want %q", content, "a")
	}
}

func TestApplyRemoteOpMalformedPayloadIsDroppedNotFatal(t *testing.T) {
	d, _, _ := newTestDispatcher()
	source := testSource(t)
	id := document.NewID()

	msg := overlay.NetworkMessage{Kind: overlay.MsgOperation, DocumentID: id, UserID: "u1", OpPayload: []byte("not json")}
	d.handleMessage(source, msg) // must not panic
}

func TestPresenceMessageUpdatesRegistryCursor(t *testing.T) {
	d, _, registry := newTestDispatcher()
	source := testSource(t)
	registry.AddPeer(source)
	id := document.NewID()

	d.handleMessage(source, overlay.NetworkMessage{Kind: overlay.MsgPresence, DocumentID: id, CursorOffset: 7})

	presences := registry.Presences(id)
	if presences[source] != 7 {
		t.Fatalf("cursor = %d, want 7", presences[source])
	}
}

func TestMetadataUpdateOnKnownDocumentAppliesChanges(t *testing.T) {
	d, engine, _ := newTestDispatcher()
	source := testSource(t)
	doc := engine.CreateDocument("Old Title", "u1")

	d.handleMessage(source, overlay.NetworkMessage{
		Kind:          overlay.MsgMetadataUpdate,
		DocumentID:    doc.ID,
		Title:         "New Title",
		RepositoryURL: "https://example.com/doc.git",
	})

	got, err := engine.GetDocument(doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.Title != "New Title" {
		t.Fatalf("title = %q, want %q", got.Title, "New Title")
	}
	if got.RepositoryURL != "https://example.com/doc.git" {
		t.Fatalf("repository url not applied")
	}
}

func TestMetadataUpdateOnUnknownDocumentRegistersPendingTitle(t *testing.T) {
	d, _, _ := newTestDispatcher()
	source := testSource(t)
	id := document.NewID()

	d.handleMessage(source, overlay.NetworkMessage{Kind: overlay.MsgMetadataUpdate, DocumentID: id, Title: "Shared Paper"})

	doc, err := d.ensurer.EnsureDocument(id, "u1")
	if err != nil {
		t.Fatalf("ensure document: %v", err)
	}
	if doc.Title != "Shared Paper" {
		t.Fatalf("title = %q, want %q", doc.Title, "Shared Paper")
	}
}
