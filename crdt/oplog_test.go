package crdt

import "testing"

func TestAgentForIsStable(t *testing.T) {
	l := NewOpLog()
	a := l.AgentFor("u1")
	b := l.AgentFor("u2")
	again := l.AgentFor("u1")

	if a == b {
		t.Fatalf("distinct users got the same agent id")
	}
	if a != again {
		t.Fatalf("AgentFor not stable across calls: %v != %v", a, again)
	}
}

func TestOpLogEncodeDecode(t *testing.T) {
	l := NewOpLog()
	agent := l.AgentFor("u1")
	l.Append("u1", Operation{Type: OpInsert, Value: 'x', Agent: agent, Clock: 1})

	data, err := l.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeOpLog(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Ops) != 1 || decoded.Ops[0].Op.Value != 'x' {
		t.Fatalf("decoded oplog mismatch: %+v", decoded.Ops)
	}
	if decoded.AgentFor("u1") != agent {
		t.Fatalf("agent allocation lost across encode/decode")
	}
}
