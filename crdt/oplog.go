package crdt

import (
	"bytes"
	"encoding/gob"
	"hash/fnv"
)

// LoggedOp is one entry of a document's causal op-log: the operation plus
// the user that authored it, kept in append order.
type LoggedOp struct {
	UserID string
	Op     Operation
}

// OpLog is the append-only causal history of one document, plus the
// UserId<->AgentId allocation table for that document. AgentId assignment
// is stable for the lifetime of the log and one-to-one unless two UserIds
// hash to the same AgentId (see AgentFor).
type OpLog struct {
	Ops    []LoggedOp
	agents map[string]AgentId
}

// NewOpLog returns an empty op-log.
func NewOpLog() *OpLog {
	return &OpLog{agents: make(map[string]AgentId)}
}

// AgentFor returns the stable AgentId for userID, allocating one on first
// use. The id is derived deterministically from userID itself rather than
// from a per-log sequential counter: a counter numbers each op-log's first
// agent 0, second agent 1, and so on, so two peers' independently-numbered
// op-logs collide on the very first user each of them sees (both land on
// agent 0). Identifier.Node embeds this value as the LSEQ site id, so a
// collision there makes two different peers' freshly generated positions
// compare equal and one side's insert silently disappears on merge. Hashing
// userID keeps AgentFor's allocate-on-first-sight contract (same string,
// same id, every time) while also making the id the same in every peer's
// op-log, not just the local one. Two distinct UserIds share an AgentId only
// if their 31-bit FNV-1a hashes collide.
func (l *OpLog) AgentFor(userID string) AgentId {
	if id, ok := l.agents[userID]; ok {
		return id
	}
	id := hashAgentID(userID)
	l.agents[userID] = id
	return id
}

// hashAgentID maps a UserId to a stable, effectively-unique non-negative
// AgentId shared by every op-log that ever sees that UserId.
func hashAgentID(userID string) AgentId {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return AgentId(h.Sum32() & 0x7fffffff)
}

// Append records op as authored by userID.
func (l *OpLog) Append(userID string, op Operation) {
	l.Ops = append(l.Ops, LoggedOp{UserID: userID, Op: op})
}

// gobOpLog is the exported shape gob encodes; OpLog's private fields are
// copied in/out of it so the allocation table survives export/import.
type gobOpLog struct {
	Ops    []LoggedOp
	Agents map[string]AgentId
}

// Encode produces a full binary snapshot of the op-log, used for the
// operator-facing export operation (distinct from the per-op wire codec).
func (l *OpLog) Encode() ([]byte, error) {
	var buf bytes.Buffer
	g := gobOpLog{Ops: l.Ops, Agents: l.agents}
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeOpLog restores an op-log previously produced by Encode.
func DecodeOpLog(data []byte) (*OpLog, error) {
	var g gobOpLog
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return nil, err
	}
	if g.Agents == nil {
		g.Agents = make(map[string]AgentId)
	}
	return &OpLog{Ops: g.Ops, agents: g.Agents}, nil
}
