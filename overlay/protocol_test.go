package overlay

import (
	"bytes"
	"testing"

	"texswarm/document"
)

func TestTopicNamesMatchExactFormat(t *testing.T) {
	id := document.NewID()
	if got, want := OpsTopic(id), "doc-ops/"+id.String(); got != want {
		t.Fatalf("OpsTopic = %q, want %q", got, want)
	}
	if got, want := PresenceTopic(id), "doc-presence/"+id.String(); got != want {
		t.Fatalf("PresenceTopic = %q, want %q", got, want)
	}
	if got, want := MetaTopic(id), "doc-meta/"+id.String(); got != want {
		t.Fatalf("MetaTopic = %q, want %q", got, want)
	}
}

func TestProtocolIDMatchesSpec(t *testing.T) {
	if ProtocolID != "/p2p-latex-collab/1.0.0" {
		t.Fatalf("ProtocolID = %q, want the exact spec identifier", ProtocolID)
	}
}

func TestRequestResponseFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	id := document.NewID()
	req := CollabRequest{Message: NetworkMessage{Kind: MsgJoinRequest, DocumentID: id, UserID: "u1", Title: "T"}}
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatalf("write request: %v", err)
	}

	got, err := ReadRequest(&buf)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if got.Message.Kind != MsgJoinRequest || got.Message.UserID != "u1" || got.Message.DocumentID != id {
		t.Fatalf("round-tripped request = %+v, want %+v", got.Message, req.Message)
	}

	resp := CollabResponse{Message: NetworkMessage{Kind: MsgJoinResponse, DocumentID: id, Subscriber: []string{"p1", "p2"}}}
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatalf("write response: %v", err)
	}
	gotResp, err := ReadResponse(&buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if len(gotResp.Message.Subscriber) != 2 || gotResp.Message.Subscriber[0] != "p1" {
		t.Fatalf("round-tripped response = %+v, want %+v", gotResp.Message, resp.Message)
	}
}
