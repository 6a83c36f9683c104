// Package dispatch is the single-consumer event loop translating overlay
// network events into CRDT engine and peer registry calls. No single bad
// event is allowed to take the process down: every handler logs and
// continues rather than propagating.
package dispatch

import (
	"context"
	"encoding/json"

	libp2pPeer "github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"texswarm/crdt"
	"texswarm/document"
	"texswarm/ensure"
	"texswarm/overlay"
	"texswarm/peer"
)

// Dispatcher drains a Service's event channel and applies each event to
// the engine/registry. It never calls into gitrepo/sync while holding an
// engine lock; git I/O happens out-of-band via callbacks below.
type Dispatcher struct {
	engine   *crdt.Engine
	ensurer  *ensure.Ensurer
	registry *peer.Registry
	svc      *overlay.Service
	log      *zap.SugaredLogger

	// OnDocumentMutated, if set, is invoked after a remote operation is
	// applied, outside any engine lock. Used to hand off to
	// the worker pool that persists to git.
	OnDocumentMutated func(id document.ID)
}

// New returns a Dispatcher wired to the given collaborators.
func New(engine *crdt.Engine, ensurer *ensure.Ensurer, registry *peer.Registry, svc *overlay.Service, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{engine: engine, ensurer: ensurer, registry: registry, svc: svc, log: log}
}

// Run drains events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	events := d.svc.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev overlay.NetworkEvent) {
	switch ev.Kind {
	case overlay.EventPeerDiscovered:
		d.registry.AddPeer(ev.Peer)
	case overlay.EventPeerConnected:
		d.registry.UpdatePeer(ev.Peer)
	case overlay.EventPeerDisconnected:
		d.registry.Remove(ev.Peer)
	case overlay.EventMessageReceived:
		d.handleMessage(ev.Source, ev.Message)
	case overlay.EventRequestReceived:
		d.handleRequest(ctx, ev)
	case overlay.EventResponseReceived:
		// Responses to outbound requests are consumed synchronously by
		// overlay.Service.Request; nothing to do here.
	default:
		d.log.Warnw("dispatch: unknown event kind", "kind", ev.Kind)
	}
}

func (d *Dispatcher) handleMessage(source libp2pPeer.ID, msg overlay.NetworkMessage) {
	switch msg.Kind {
	case overlay.MsgOperation:
		d.applyRemoteOp(msg)
	case overlay.MsgPresence:
		d.registry.UpdatePresence(source, msg.DocumentID, msg.CursorOffset)
	case overlay.MsgMetadataUpdate:
		d.handleMetadataUpdate(msg)
	case overlay.MsgLeave:
		// Leave is informational only; PeerDisconnected handles cleanup.
	default:
		d.log.Debugw("dispatch: ignoring unhandled message kind", "kind", msg.Kind)
	}
}

func (d *Dispatcher) applyRemoteOp(msg overlay.NetworkMessage) {
	var op crdt.Operation
	if err := json.Unmarshal(msg.OpPayload, &op); err != nil {
		d.log.Warnw("dispatch: malformed operation payload", "err", err)
		return
	}
	if _, err := d.ensurer.EnsureDocument(msg.DocumentID, msg.UserID); err != nil {
		d.log.Warnw("dispatch: ensure document failed", "doc", msg.DocumentID, "err", err)
		return
	}
	if err := d.engine.ApplyRemoteOperation(msg.DocumentID, msg.UserID, op); err != nil {
		d.log.Warnw("dispatch: apply remote operation failed", "doc", msg.DocumentID, "err", err)
		return
	}
	if d.OnDocumentMutated != nil {
		d.OnDocumentMutated(msg.DocumentID)
	}
}

func (d *Dispatcher) handleMetadataUpdate(msg overlay.NetworkMessage) {
	doc, err := d.engine.GetDocument(msg.DocumentID)
	if err != nil {
		d.ensurer.RegisterPendingTitle(msg.DocumentID, msg.Title)
		return
	}
	if msg.RepositoryURL != "" {
		doc.SetRepositoryURL(msg.RepositoryURL)
	}
	if msg.Title != "" {
		doc.UpdateTitle(msg.Title)
	}
}

func (d *Dispatcher) handleRequest(ctx context.Context, ev overlay.NetworkEvent) {
	switch ev.Request.Kind {
	case overlay.MsgJoinRequest:
		d.handleJoinRequest(ctx, ev)
	case overlay.MsgSyncRequest:
		d.handleSyncRequest(ev)
	default:
		d.log.Warnw("dispatch: unknown request kind", "kind", ev.Request.Kind)
		_ = ev.Reply.Respond(overlay.CollabResponse{})
	}
}

func (d *Dispatcher) handleJoinRequest(ctx context.Context, ev overlay.NetworkEvent) {
	req := ev.Request
	content, err := d.engine.Content(req.DocumentID)
	if err != nil {
		if _, ensureErr := d.ensurer.EnsureDocument(req.DocumentID, req.UserID); ensureErr != nil {
			d.log.Warnw("dispatch: join ensure failed", "doc", req.DocumentID, "err", ensureErr)
			resp := overlay.NetworkMessage{
				Kind:         overlay.MsgJoinResponse,
				DocumentID:   req.DocumentID,
				ErrorMessage: "unknown",
			}
			_ = ev.Reply.Respond(overlay.CollabResponse{Message: resp})
			return
		}
		content, _ = d.engine.Content(req.DocumentID)
	}

	d.registry.MarkEditing(ev.Source, req.DocumentID)
	if err := d.svc.JoinDocument(ctx, req.DocumentID); err != nil {
		d.log.Warnw("dispatch: join topic subscribe failed", "doc", req.DocumentID, "err", err)
	}

	peers := d.registry.DocumentPeers(req.DocumentID)
	subs := make([]string, 0, len(peers))
	for _, p := range peers {
		subs = append(subs, p.PeerID.String())
	}

	resp := overlay.NetworkMessage{
		Kind:       overlay.MsgJoinResponse,
		DocumentID: req.DocumentID,
		Content:    content,
		Subscriber: subs,
	}
	if err := ev.Reply.Respond(overlay.CollabResponse{Message: resp}); err != nil {
		d.log.Warnw("dispatch: join response failed", "err", err)
	}
}

func (d *Dispatcher) handleSyncRequest(ev overlay.NetworkEvent) {
	req := ev.Request
	data, err := d.engine.Export(req.DocumentID)
	if err != nil {
		d.log.Warnw("dispatch: sync export failed", "doc", req.DocumentID, "err", err)
		_ = ev.Reply.Respond(overlay.CollabResponse{})
		return
	}
	resp := overlay.NetworkMessage{
		Kind:         overlay.MsgSyncResponse,
		DocumentID:   req.DocumentID,
		OpLogPayload: data,
	}
	if err := ev.Reply.Respond(overlay.CollabResponse{Message: resp}); err != nil {
		d.log.Warnw("dispatch: sync response failed", "err", err)
	}

	if len(req.OpLogPayload) > 0 {
		remote, err := crdt.DecodeOpLog(req.OpLogPayload)
		if err != nil {
			d.log.Warnw("dispatch: decode peer oplog failed", "err", err)
			return
		}
		if err := d.engine.SyncDocument(req.DocumentID, remote); err != nil {
			d.log.Warnw("dispatch: merge peer oplog failed", "err", err)
		}
	}
}
