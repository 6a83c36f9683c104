package crdt

import "sort"

// AgentId is the per-oplog stable integer assigned to a UserId, used as the
// Node field of every Identifier that agent creates.
type AgentId int

// item is one cell of the document: a character at a fixed LSEQ position,
// possibly tombstoned by a later delete. Cells are never removed from the
// slice, only marked, which is what makes remote-delete replay idempotent.
type item struct {
	pos       []Identifier
	agent     AgentId
	clock     int
	value     rune
	tombstone bool
}

// Branch is the flat, identifier-ordered text CRDT for one document. It
// replaces the line-oriented structure a terminal editor would need with a
// single sorted slice, since nothing here renders to a screen.
type Branch struct {
	items []item
}

// NewBranch returns an empty branch.
func NewBranch() *Branch {
	return &Branch{}
}

// findInsertionPoint returns the index of the first item whose position is
// >= pos.
func (b *Branch) findInsertionPoint(pos []Identifier) int {
	return sort.Search(len(b.items), func(i int) bool {
		return comparePositions(b.items[i].pos, pos) >= 0
	})
}

func (b *Branch) find(pos []Identifier) int {
	i := b.findInsertionPoint(pos)
	if i < len(b.items) && comparePositions(b.items[i].pos, pos) == 0 {
		return i
	}
	return -1
}

// Insert places value at pos, attributed to agent/clock. Re-inserting an
// already-present position is a no-op, making remote replay idempotent.
func (b *Branch) Insert(pos []Identifier, value rune, agent AgentId, clock int) {
	if b.find(pos) >= 0 {
		return
	}
	i := b.findInsertionPoint(pos)
	b.items = append(b.items, item{})
	copy(b.items[i+1:], b.items[i:])
	b.items[i] = item{pos: pos, agent: agent, clock: clock, value: value}
}

// Delete tombstones the cell at pos, if present and not already tombstoned.
// A delete of a position that does not exist (e.g. arrived before the
// matching insert, or was already deleted) is a silent no-op.
func (b *Branch) Delete(pos []Identifier) {
	i := b.find(pos)
	if i < 0 {
		return
	}
	b.items[i].tombstone = true
}

// Text renders the current visible content in position order.
func (b *Branch) Text() string {
	runes := make([]rune, 0, len(b.items))
	for _, it := range b.items {
		if !it.tombstone {
			runes = append(runes, it.value)
		}
	}
	return string(runes)
}

// Len returns the number of visible (non-tombstoned) characters.
func (b *Branch) Len() int {
	n := 0
	for _, it := range b.items {
		if !it.tombstone {
			n++
		}
	}
	return n
}

// PositionAt returns the LSEQ position of the offset-th visible character,
// or (nil, false) when offset is negative or at or beyond Len().
func (b *Branch) PositionAt(offset int) ([]Identifier, bool) {
	seen := 0
	for _, it := range b.items {
		if it.tombstone {
			continue
		}
		if seen == offset {
			return it.pos, true
		}
		seen++
	}
	return nil, false
}

// neighbors returns the neighboring visible positions
// around offset, used to generate a fresh insertion position.
func (b *Branch) neighbors(offset int) (before, after []Identifier) {
	seen := 0
	for _, it := range b.items {
		if it.tombstone {
			continue
		}
		if seen == offset {
			return before, it.pos
		}
		before = it.pos
		seen++
	}
	return before, nil
}

// GeneratePositionAt allocates a new LSEQ position for an insertion at
// offset (0 == start of document, Len() == end), attributed to agent.
func (b *Branch) GeneratePositionAt(offset int, agent AgentId) []Identifier {
	before, after := b.neighbors(offset)
	return generatePositionBetween(before, after, int(agent))
}
