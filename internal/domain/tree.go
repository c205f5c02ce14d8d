package domain

import "github.com/google/uuid"

// AccountTree is an in-memory index over the account hierarchy. It is built
// from a flat account list and answers descendant-closure queries, which the
// balance deriver needs for parent roll-ups.
type AccountTree struct {
	byID     map[uuid.UUID]*Account
	children map[uuid.UUID][]uuid.UUID
}

// NewAccountTree indexes the given accounts by id and parent pointer.
func NewAccountTree(accounts []*Account) *AccountTree {
	t := &AccountTree{
		byID:     make(map[uuid.UUID]*Account, len(accounts)),
		children: make(map[uuid.UUID][]uuid.UUID),
	}
	for _, a := range accounts {
		t.byID[a.ID] = a
		if a.ParentID != nil {
			t.children[*a.ParentID] = append(t.children[*a.ParentID], a.ID)
		}
	}
	return t
}

// Get returns the account with the given id, or nil if unknown.
func (t *AccountTree) Get(id uuid.UUID) *Account {
	return t.byID[id]
}

// All returns every indexed account in no particular order.
func (t *AccountTree) All() []*Account {
	out := make([]*Account, 0, len(t.byID))
	for _, a := range t.byID {
		out = append(out, a)
	}
	return out
}

// HasChildren reports whether any account names id as its parent.
func (t *AccountTree) HasChildren(id uuid.UUID) bool {
	return len(t.children[id]) > 0
}

// Descendants returns the closure of id: the account itself plus every
// account reachable through parent pointers, in breadth-first order.
func (t *AccountTree) Descendants(id uuid.UUID) []uuid.UUID {
	out := []uuid.UUID{id}
	for i := 0; i < len(out); i++ {
		out = append(out, t.children[out[i]]...)
	}
	return out
}

// Leaves returns the subset of the closure of id that has no children.
// Postings only ever land on leaves, so balance derivation sums over these.
func (t *AccountTree) Leaves(id uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, d := range t.Descendants(id) {
		if !t.HasChildren(d) {
			out = append(out, d)
		}
	}
	return out
}
