package crdt

// Identifier is one digit of an LSEQ position path: a base-256 digit paired
// with the node (AgentId) that created it, used to break ties between
// concurrent inserts at the same digit.
type Identifier struct {
	Digit int
	Node  int
}

const base = 256

// fromIdentifierList extracts the raw digit sequence from a position path.
func fromIdentifierList(identifiers []Identifier) []int {
	digits := make([]int, len(identifiers))
	for i, ident := range identifiers {
		digits[i] = ident.Digit
	}
	return digits
}

// add computes n1+n2 as base-256 big numbers of equal width, panicking on
// overflow (positions never reach BASE^k).
func add(n1, n2 []int) []int {
	carry := 0
	sum := make([]int, maxInt(len(n1), len(n2)))
	for i := len(sum) - 1; i >= 0; i-- {
		s := carry
		if i < len(n1) {
			s += n1[i]
		}
		if i < len(n2) {
			s += n2[i]
		}
		carry = s / base
		sum[i] = s % base
	}
	if carry != 0 {
		panic("crdt: position overflow")
	}
	return sum
}

// subtractGreaterThan computes n1-n2 where n1 >= n2 digit-wise after
// borrowing.
func subtractGreaterThan(n1, n2 []int) []int {
	carry := 0
	diff := make([]int, maxInt(len(n1), len(n2)))
	for i := len(diff) - 1; i >= 0; i-- {
		d1 := 0
		if i < len(n1) {
			d1 = n1[i] - carry
		}
		d2 := 0
		if i < len(n2) {
			d2 = n2[i]
		}
		if d1 < d2 {
			carry = 1
			diff[i] = d1 + base - d2
		} else {
			carry = 0
			diff[i] = d1 - d2
		}
	}
	return diff
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// increment adds a value strictly between 0 and delta to n1, used to land
// strictly inside the gap between two positions.
func increment(n1, delta []int) []int {
	firstNonZero := -1
	for i, x := range delta {
		if x != 0 {
			firstNonZero = i
			break
		}
	}
	if firstNonZero == -1 {
		panic("crdt: delta has no room between positions")
	}

	inc := append(append([]int{}, delta[:firstNonZero]...), 0, 1)
	v1 := add(n1, inc)
	if v1[len(v1)-1] == 0 {
		v1 = add(v1, inc)
	}
	return v1
}

// toIdentifierList reattaches node ownership to a raw digit sequence,
// preferring the node already present in the surrounding positions so
// shared prefixes stay stable across concurrent edits.
func toIdentifierList(n []int, before, after []Identifier, creationNode int) []Identifier {
	identifiers := make([]Identifier, len(n))
	for i, digit := range n {
		switch {
		case i == len(n)-1:
			identifiers[i] = Identifier{Digit: digit, Node: creationNode}
		case i < len(before) && digit == before[i].Digit:
			identifiers[i] = Identifier{Digit: digit, Node: before[i].Node}
		case i < len(after) && digit == after[i].Digit:
			identifiers[i] = Identifier{Digit: digit, Node: after[i].Node}
		default:
			identifiers[i] = Identifier{Digit: digit, Node: creationNode}
		}
	}
	return identifiers
}

// generatePositionBetween allocates a fresh path strictly between position1
// and position2 (either may be empty, meaning "start"/"end" of the
// document), attributed to node.
func generatePositionBetween(position1, position2 []Identifier, node int) []Identifier {
	if len(position1) == 0 && len(position2) == 0 {
		// Empty document: there is no gap to subdivide, just plant the
		// first digit.
		return []Identifier{{Digit: 1, Node: node}}
	}

	var head1 Identifier
	if len(position1) > 0 {
		head1 = position1[0]
	} else {
		head1 = Identifier{Digit: 0, Node: node}
	}

	var head2 Identifier
	if len(position2) > 0 {
		head2 = position2[0]
	} else {
		head2 = Identifier{Digit: base, Node: node}
	}

	switch {
	case head1.Digit != head2.Digit:
		n1 := fromIdentifierList(position1)
		n2 := fromIdentifierList(position2)
		delta := subtractGreaterThan(n2, n1)
		next := increment(n1, delta)
		return toIdentifierList(next, position1, position2, node)
	case head1.Node < head2.Node:
		return append([]Identifier{head1}, generatePositionBetween(tail(position1), nil, node)...)
	case head1.Node == head2.Node:
		return append([]Identifier{head1}, generatePositionBetween(tail(position1), tail(position2), node)...)
	default:
		panic("crdt: invalid node ordering")
	}
}

func tail(ids []Identifier) []Identifier {
	if len(ids) == 0 {
		return nil
	}
	return ids[1:]
}

// comparePositions orders two position paths lexicographically by
// (Digit, Node) pairs; a shorter path that is a strict prefix of a longer
// one sorts first.
func comparePositions(a, b []Identifier) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].Digit != b[i].Digit {
			if a[i].Digit < b[i].Digit {
				return -1
			}
			return 1
		}
		if a[i].Node != b[i].Node {
			if a[i].Node < b[i].Node {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
