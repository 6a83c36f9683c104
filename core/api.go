package core

import (
	"context"
	"encoding/json"

	"texswarm/apperr"
	"texswarm/crdt"
	"texswarm/document"
	"texswarm/overlay"
)

// CreateDocument creates a new document owned by owner, joins its gossip
// topics, and returns its metadata.
func (c *Core) CreateDocument(ctx context.Context, title, owner string) (*document.Document, error) {
	doc := c.Engine.CreateDocument(title, owner)
	if err := c.Overlay.JoinDocument(ctx, doc.ID); err != nil {
		return doc, err
	}
	c.Sync.Track(doc.ID)
	return doc, nil
}

// ExportDocument returns a full binary snapshot of id's op-log, for
// out-of-band backup or hand-off to a peer that lacks a network path to
// the swarm.
func (c *Core) ExportDocument(id document.ID) ([]byte, error) {
	return c.Engine.Export(id)
}

// ImportDocument creates a new document titled title, owned by owner, with
// its op-log pre-populated from a previously exported snapshot, joins its
// gossip topics, and returns its metadata.
func (c *Core) ImportDocument(ctx context.Context, title, owner string, data []byte) (*document.Document, error) {
	id, err := c.Engine.Import(title, owner, data)
	if err != nil {
		return nil, err
	}
	doc, err := c.Engine.GetDocument(id)
	if err != nil {
		return nil, err
	}
	if err := c.Overlay.JoinDocument(ctx, id); err != nil {
		return doc, err
	}
	c.Sync.Track(id)
	return doc, nil
}

// ListDocuments returns metadata for every document this node currently
// holds.
func (c *Core) ListDocuments() []*document.Document {
	return c.Engine.ListDocuments()
}

// GetDocument returns the metadata record for id, failing NotFound if this
// node doesn't know about it.
func (c *Core) GetDocument(id document.ID) (*document.Document, error) {
	return c.Engine.GetDocument(id)
}

// EnsureDocumentExists returns id's document, lazily creating it under a
// synthetic owner if this node doesn't have it locally yet. Used by
// façades handling a join whose document hasn't arrived over gossip.
func (c *Core) EnsureDocumentExists(id document.ID, owner string) (*document.Document, error) {
	return c.Ensurer.EnsureDocument(id, owner)
}

// SubscribeDocument joins id's gossip topics on behalf of a local client
// and tracks it for periodic persistence.
func (c *Core) SubscribeDocument(ctx context.Context, id document.ID) error {
	if err := c.Overlay.JoinDocument(ctx, id); err != nil {
		return err
	}
	c.Sync.Track(id)
	return nil
}

// UnsubscribeDocument leaves id's gossip topics on behalf of a local
// client. Persistence tracking is left alone: other peers may still be
// actively editing the document even after this client stops watching it.
func (c *Core) UnsubscribeDocument(id document.ID) error {
	return c.Overlay.LeaveDocument(id)
}

// SaveDocument runs the persistence save protocol for id immediately,
// rather than waiting for the synchronizer's next tick, and clears any
// prior needs-attention flag left by a merge conflict.
func (c *Core) SaveDocument(id document.ID) error {
	return c.Sync.SaveDocument(id)
}

// Insert applies a local character insertion at offset and broadcasts it.
func (c *Core) Insert(ctx context.Context, id document.ID, userID string, offset int, value rune) error {
	pos, err := c.Engine.PositionForInsert(id, offset, userID)
	if err != nil {
		return err
	}
	op := crdt.Operation{Type: crdt.OpInsert, Pos: pos, Value: value}
	applied, err := c.Engine.ApplyLocalOperation(id, userID, op)
	if err != nil {
		return err
	}
	return c.broadcastOp(ctx, id, userID, applied)
}

// Delete applies a local character deletion at offset and broadcasts it.
// An offset at or beyond the current content length violates the range
// invariant and is rejected with BadRange, leaving the document unchanged.
func (c *Core) Delete(ctx context.Context, id document.ID, userID string, offset int) error {
	pos, ok, err := c.Engine.PositionAt(id, offset)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.BadRange, "delete offset out of range")
	}
	op := crdt.Operation{Type: crdt.OpDelete, Pos: pos}
	applied, err := c.Engine.ApplyLocalOperation(id, userID, op)
	if err != nil {
		return err
	}
	return c.broadcastOp(ctx, id, userID, applied)
}

// Replace applies an atomic delete-then-insert over [lo, hi) and broadcasts
// it as a single operation.
func (c *Core) Replace(ctx context.Context, id document.ID, userID string, lo, hi []crdt.Identifier, text string) error {
	op := crdt.Operation{Type: crdt.OpReplace, RangeLo: lo, RangeHi: hi, Text: text}
	applied, err := c.Engine.ApplyLocalOperation(id, userID, op)
	if err != nil {
		return err
	}
	return c.broadcastOp(ctx, id, userID, applied)
}

func (c *Core) broadcastOp(ctx context.Context, id document.ID, userID string, op crdt.Operation) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return err
	}
	msg := overlay.NetworkMessage{
		Kind:       overlay.MsgOperation,
		DocumentID: id,
		UserID:     userID,
		OpPayload:  payload,
	}
	return c.Overlay.Publish(ctx, overlay.OpsTopic(id), msg)
}
