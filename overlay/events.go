package overlay

import (
	"github.com/libp2p/go-libp2p/core/peer"
)

// EventKind tags the variant carried by a NetworkEvent.
type EventKind string

const (
	EventPeerDiscovered   EventKind = "peer_discovered"
	EventPeerConnected    EventKind = "peer_connected"
	EventPeerDisconnected EventKind = "peer_disconnected"
	EventMessageReceived  EventKind = "message_received"
	EventRequestReceived  EventKind = "request_received"
	EventResponseReceived EventKind = "response_received"
)

// RequestChannel lets the dispatcher answer a RequestReceived event
// asynchronously; Respond must be called exactly once.
type RequestChannel interface {
	Respond(resp CollabResponse) error
}

// NetworkEvent is what the overlay service feeds into the dispatcher. Only
// one of the optional fields is populated, matching Kind.
type NetworkEvent struct {
	Kind EventKind

	Peer peer.ID

	// MessageReceived (Source is also set on RequestReceived)
	Topic   string
	Message NetworkMessage
	Source  peer.ID

	// RequestReceived
	RequestID string
	Request   NetworkMessage
	Reply     RequestChannel

	// ResponseReceived
	Response NetworkMessage
}

// NewMessageEvent builds a MessageReceived event.
func NewMessageEvent(source peer.ID, topic string, msg NetworkMessage) NetworkEvent {
	return NetworkEvent{Kind: EventMessageReceived, Source: source, Topic: topic, Message: msg}
}
