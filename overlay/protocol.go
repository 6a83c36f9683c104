// Package overlay is the libp2p networking layer: stream protocol,
// gossipsub topics, and peer discovery.
package overlay

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"texswarm/document"
)

// ProtocolID is the libp2p sub-protocol every node speaks for direct
// request/response exchanges (join, sync).
const ProtocolID = "/p2p-latex-collab/1.0.0"

// DocTopic names the three gossipsub topics kept per document.
type DocTopic string

// OpsTopic, PresenceTopic and MetaTopic return the exact topic string for
// one document's operation stream, presence stream, and metadata stream.
func OpsTopic(id document.ID) string      { return "doc-ops/" + id.String() }
func PresenceTopic(id document.ID) string { return "doc-presence/" + id.String() }
func MetaTopic(id document.ID) string     { return "doc-meta/" + id.String() }

// MessageKind tags the variant carried by a NetworkMessage.
type MessageKind string

const (
	MsgJoinRequest     MessageKind = "join_request"
	MsgJoinResponse    MessageKind = "join_response"
	MsgOperation       MessageKind = "operation"
	MsgSyncRequest     MessageKind = "sync_request"
	MsgSyncResponse    MessageKind = "sync_response"
	MsgPresence        MessageKind = "presence"
	MsgMetadataUpdate  MessageKind = "metadata_update"
	MsgLeave           MessageKind = "leave"
)

// NetworkMessage is the envelope for every message exchanged either over
// gossip topics or the direct request/response protocol.
type NetworkMessage struct {
	Kind MessageKind `json:"kind"`

	// JoinRequest / JoinResponse
	DocumentID   document.ID `json:"document_id,omitempty"`
	UserID       string      `json:"user_id,omitempty"`
	UserName     string      `json:"user_name,omitempty"`
	Title        string      `json:"title,omitempty"`
	Subscriber   []string    `json:"subscribers,omitempty"`
	Content      string      `json:"content,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`

	// Operation
	OpPayload json.RawMessage `json:"op,omitempty"`

	// SyncRequest / SyncResponse
	OpLogPayload []byte `json:"oplog,omitempty"`

	// Presence
	CursorOffset int `json:"cursor_offset,omitempty"`

	// MetadataUpdate
	RepositoryURL string `json:"repository_url,omitempty"`

	// Leave carries no extra fields beyond UserID/DocumentID.
}

// CollabRequest wraps an outbound request over the direct protocol.
type CollabRequest struct {
	Message NetworkMessage `json:"message"`
}

// CollabResponse wraps the corresponding reply.
type CollabResponse struct {
	Message NetworkMessage `json:"message"`
}

// writeFrame writes a length-prefixed JSON frame: a 4-byte big-endian
// length followed by the JSON payload.
func writeFrame(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// readFrame reads one length-prefixed JSON frame written by writeFrame.
func readFrame(r io.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}

// WriteRequest sends a length-prefixed CollabRequest frame.
func WriteRequest(w io.Writer, req CollabRequest) error { return writeFrame(w, req) }

// ReadRequest reads a length-prefixed CollabRequest frame.
func ReadRequest(r io.Reader) (CollabRequest, error) {
	var req CollabRequest
	err := readFrame(r, &req)
	return req, err
}

// WriteResponse sends a length-prefixed CollabResponse frame.
func WriteResponse(w io.Writer, resp CollabResponse) error { return writeFrame(w, resp) }

// ReadResponse reads a length-prefixed CollabResponse frame.
func ReadResponse(r io.Reader) (CollabResponse, error) {
	var resp CollabResponse
	err := readFrame(r, &resp)
	return resp, err
}
