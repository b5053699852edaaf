package fleet

// Squad is the lowest level of the hierarchy. Members holds character ids.
type Squad struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Members []int64 `json:"members"`
}

// Wing groups squads.
type Wing struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Squads []Squad `json:"squads"`
}

// Tree is the ordered wing list. Index 0 is the operational wing and the
// last index the overflow wing.
type Tree []Wing

// BuildTree places members into the squads reported by the hierarchy query.
// Members whose (wing, squad) pair is not in wings are left out.
func BuildTree(wings []Wing, members []Member) Tree {
	tree := make(Tree, len(wings))
	for i, w := range wings {
		nw := Wing{ID: w.ID, Name: w.Name, Squads: make([]Squad, len(w.Squads))}
		for j, sq := range w.Squads {
			ns := Squad{ID: sq.ID, Name: sq.Name, Members: []int64{}}
			for _, m := range members {
				if m.WingID == w.ID && m.SquadID == sq.ID {
					ns.Members = append(ns.Members, m.CharacterID)
				}
			}
			nw.Squads[j] = ns
		}
		tree[i] = nw
	}
	return tree
}

// Operational returns the first wing.
func (t Tree) Operational() (*Wing, error) {
	if len(t) == 0 {
		return nil, ErrEmptyTree
	}
	return &t[0], nil
}

// Overflow returns the last wing.
func (t Tree) Overflow() (*Wing, error) {
	if len(t) == 0 {
		return nil, ErrEmptyTree
	}
	return &t[len(t)-1], nil
}

// SquadCount returns the total number of squads across all wings.
func (t Tree) SquadCount() int {
	n := 0
	for _, w := range t {
		n += len(w.Squads)
	}
	return n
}

// Clone returns a deep copy.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for i, w := range t {
		nw := Wing{ID: w.ID, Name: w.Name, Squads: make([]Squad, len(w.Squads))}
		for j, sq := range w.Squads {
			nw.Squads[j] = Squad{ID: sq.ID, Name: sq.Name, Members: append([]int64(nil), sq.Members...)}
		}
		out[i] = nw
	}
	return out
}
