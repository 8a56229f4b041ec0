package pubsub

// idSet is an insertion-ordered set of subscriber ids. Lookup is O(1),
// iteration follows insertion order. Not safe for concurrent use - the
// owning type holds the lock.
type idSet struct {
	members map[int]bool
	order   []int
}

func newIDSet() *idSet {
	return &idSet{members: map[int]bool{}}
}

// Add returns false if the id was already a member.
func (s *idSet) Add(id int) bool {
	if s.members[id] {
		return false
	}
	s.members[id] = true
	s.order = append(s.order, id)
	return true
}

// Remove returns false if the id was not a member.
func (s *idSet) Remove(id int) bool {
	if !s.members[id] {
		return false
	}
	delete(s.members, id)
	for i, m := range s.order {
		if m == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *idSet) Contains(id int) bool {
	return s.members[id]
}

func (s *idSet) Size() int {
	return len(s.order)
}

// IDs returns a snapshot in insertion order, safe to iterate while the set
// is mutated.
func (s *idSet) IDs() []int {
	ids := make([]int, len(s.order))
	copy(ids, s.order)
	return ids
}
