package crdt

import (
	"strconv"
	"sync"
	"time"

	"texswarm/apperr"
	"texswarm/document"
)

// docState bundles the oplog and branch guarded together under one
// per-document lock, per the document -> oplog -> branch lock order.
type docState struct {
	mu     sync.RWMutex
	doc    *document.Document
	oplog  *OpLog
	branch *Branch
}

// Engine is the central CRDT store: a table of documents, each with its own
// op-log and text branch, guarded independently so unrelated documents
// never contend with each other.
type Engine struct {
	mu    sync.RWMutex
	table map[document.ID]*docState
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{table: make(map[document.ID]*docState)}
}

// CreateDocument registers a brand new document owned by owner.
func (e *Engine) CreateDocument(title, owner string) *document.Document {
	return e.CreateDocumentWithID(document.NewID(), title, owner)
}

// CreateDocumentWithID registers a document under a caller-chosen id, used
// by the branch ensurer to lazily create a document whose id is already
// known (e.g. from a remote operation) but whose local branch is missing.
func (e *Engine) CreateDocumentWithID(id document.ID, title, owner string) *document.Document {
	doc := document.New(id, title, owner)
	e.mu.Lock()
	if st, ok := e.table[id]; ok {
		e.mu.Unlock()
		return st.doc
	}
	e.table[id] = &docState{doc: doc, oplog: NewOpLog(), branch: NewBranch()}
	e.mu.Unlock()
	return doc
}

func (e *Engine) state(id document.ID) (*docState, error) {
	e.mu.RLock()
	st, ok := e.table[id]
	e.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.NotFound, "document not found: "+id.String())
	}
	return st, nil
}

// GetDocument returns the metadata record for id.
func (e *Engine) GetDocument(id document.ID) (*document.Document, error) {
	st, err := e.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.doc, nil
}

// ListDocuments returns every document this engine currently holds.
func (e *Engine) ListDocuments() []*document.Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	docs := make([]*document.Document, 0, len(e.table))
	for _, st := range e.table {
		docs = append(docs, st.doc)
	}
	return docs
}

// Content returns the current rendered text of a document.
func (e *Engine) Content(id document.ID) (string, error) {
	st, err := e.state(id)
	if err != nil {
		return "", err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.branch.Text(), nil
}

// PositionForInsert allocates a fresh LSEQ position for inserting at offset
// within id's current content, attributed to userID's agent. Rejects any
// offset beyond the current content length with BadRange, per the
// position <= current_length invariant.
func (e *Engine) PositionForInsert(id document.ID, offset int, userID string) ([]Identifier, error) {
	st, err := e.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if offset < 0 || offset > st.branch.Len() {
		return nil, apperr.New(apperr.BadRange, "insert position out of range")
	}
	agent := st.oplog.AgentFor(userID)
	return st.branch.GeneratePositionAt(offset, agent), nil
}

// PositionAt returns the LSEQ position of the offset-th visible character
// of id, or ok=false if offset is negative or beyond the last visible
// character.
func (e *Engine) PositionAt(id document.ID, offset int) ([]Identifier, bool, error) {
	st, err := e.state(id)
	if err != nil {
		return nil, false, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	pos, ok := st.branch.PositionAt(offset)
	return pos, ok, nil
}

// ApplyLocalOperation applies an operation authored locally by userID,
// allocating its Agent/Clock fields and appending it to the op-log. A
// Replace is committed as delete-then-insert under a single lock
// acquisition so no partial state is ever observable.
func (e *Engine) ApplyLocalOperation(id document.ID, userID string, op Operation) (Operation, error) {
	st, err := e.state(id)
	if err != nil {
		return Operation{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	agent := st.oplog.AgentFor(userID)
	op.Agent = agent
	op.Clock = len(st.oplog.Ops) + 1

	if err := applyToBranch(st.branch, op); err != nil {
		return Operation{}, err
	}
	st.oplog.Append(userID, op)
	st.doc.UpdatedAt = time.Now()
	return op, nil
}

// ApplyRemoteOperation replays an operation received from a peer. Replay is
// idempotent: re-applying an op whose positions are already present (or
// already tombstoned) is a no-op.
func (e *Engine) ApplyRemoteOperation(id document.ID, userID string, op Operation) error {
	st, err := e.state(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := applyToBranch(st.branch, op); err != nil {
		return err
	}
	st.oplog.Append(userID, op)
	return nil
}

func applyToBranch(b *Branch, op Operation) error {
	switch op.Type {
	case OpInsert:
		b.Insert(op.Pos, op.Value, op.Agent, op.Clock)
	case OpDelete:
		b.Delete(op.Pos)
	case OpReplace:
		deleteRange(b, op.RangeLo, op.RangeHi)
		insertText(b, op.RangeLo, op.Text, op.Agent, op.Clock)
	default:
		return apperr.New(apperr.BadRange, "unknown operation type")
	}
	return nil
}

// deleteRange tombstones every visible cell whose position falls within
// [lo, hi).
func deleteRange(b *Branch, lo, hi []Identifier) {
	for _, it := range b.items {
		if it.tombstone {
			continue
		}
		if comparePositions(it.pos, lo) >= 0 && comparePositions(it.pos, hi) < 0 {
			b.Delete(it.pos)
		}
	}
}

// insertText inserts each rune of text starting at position at, walking
// forward one generated position per rune.
func insertText(b *Branch, at []Identifier, text string, agent AgentId, clock int) {
	pos := at
	for _, r := range text {
		_, after := neighborsAround(b, pos)
		newPos := generatePositionBetween(pos, after, int(agent))
		b.Insert(newPos, r, agent, clock)
		pos = newPos
	}
}

// neighborsAround finds the position immediately following pos among all
// cells (tombstoned ones included), used while inserting a run of
// replacement text.
func neighborsAround(b *Branch, pos []Identifier) (before, after []Identifier) {
	i := b.findInsertionPoint(pos)
	if i < len(b.items) && comparePositions(b.items[i].pos, pos) == 0 {
		i++
	}
	if i < len(b.items) {
		after = b.items[i].pos
	}
	return pos, after
}

// SyncDocument merges another peer's full op-log into ours: every op we
// haven't seen yet is replayed. Already-seen ops are skipped by identity
// (user + operation type + agent + clock), keeping the merge idempotent.
func (e *Engine) SyncDocument(id document.ID, remote *OpLog) error {
	st, err := e.state(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	seen := make(map[string]bool, len(st.oplog.Ops))
	for _, lo := range st.oplog.Ops {
		seen[opKey(lo)] = true
	}
	for _, lo := range remote.Ops {
		if seen[opKey(lo)] {
			continue
		}
		if err := applyToBranch(st.branch, lo.Op); err != nil {
			continue
		}
		st.oplog.Append(lo.UserID, lo.Op)
		seen[opKey(lo)] = true
	}
	return nil
}

func opKey(lo LoggedOp) string {
	return lo.UserID + ":" + lo.Op.Type.String() + ":" + strconv.Itoa(int(lo.Op.Agent)) + ":" + strconv.Itoa(lo.Op.Clock)
}

func (t OpType) String() string { return string(t) }

// Overwrite replaces a document's entire content under a synthetic
// "system" agent: every visible character is tombstoned, then content is
// inserted fresh from position zero. Used only by external adapters (e.g.
// a git pull) rehydrating CRDT state from out-of-band content; never by
// ordinary local or remote edits.
func (e *Engine) Overwrite(id document.ID, content string) error {
	st, err := e.state(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	agent := st.oplog.AgentFor("system")

	for _, it := range st.branch.items {
		if it.tombstone {
			continue
		}
		st.branch.Delete(it.pos)
		clock := len(st.oplog.Ops) + 1
		st.oplog.Append("system", Operation{Type: OpDelete, Pos: it.pos, Agent: agent, Clock: clock})
	}

	pos := st.branch.GeneratePositionAt(0, agent)
	for _, r := range content {
		clock := len(st.oplog.Ops) + 1
		_, after := neighborsAround(st.branch, pos)
		newPos := generatePositionBetween(pos, after, int(agent))
		st.branch.Insert(newPos, r, agent, clock)
		st.oplog.Append("system", Operation{Type: OpInsert, Pos: newPos, Value: r, Agent: agent, Clock: clock})
		pos = newPos
	}

	st.doc.UpdatedAt = time.Now()
	return nil
}

// Export produces a full binary snapshot of a document's op-log.
func (e *Engine) Export(id document.ID) ([]byte, error) {
	st, err := e.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.oplog.Encode()
}

// Import creates a brand new document under owner/title whose op-log is
// pre-populated from a previously exported log, and returns its fresh id,
// per spec's import(title, owner, bytes) -> DocumentId. The decoded log's
// own UserId<->AgentId allocation table is kept as-is, so operations
// replayed from it keep the attribution (and LSEQ site ids) they were
// originally authored with.
func (e *Engine) Import(title, owner string, data []byte) (document.ID, error) {
	oplog, err := DecodeOpLog(data)
	if err != nil {
		return document.ID{}, apperr.Wrap(apperr.DecodeError, "decode oplog", err)
	}

	branch := NewBranch()
	for _, lo := range oplog.Ops {
		_ = applyToBranch(branch, lo.Op)
	}

	id := document.NewID()
	doc := document.New(id, title, owner)
	e.mu.Lock()
	e.table[id] = &docState{doc: doc, oplog: oplog, branch: branch}
	e.mu.Unlock()
	return id, nil
}
