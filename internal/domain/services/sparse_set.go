package services

// sparseSet is an ordered set with O(1) add, remove and membership.
// Removal swaps the last element into the freed position.
type sparseSet[K comparable] struct {
	dense []K
	index map[K]int
}

func newSparseSet[K comparable]() *sparseSet[K] {
	return &sparseSet[K]{index: make(map[K]int)}
}

// Add inserts k and reports whether it was absent.
func (s *sparseSet[K]) Add(k K) bool {
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = len(s.dense)
	s.dense = append(s.dense, k)
	return true
}

// Remove deletes k and reports whether it was present.
func (s *sparseSet[K]) Remove(k K) bool {
	i, ok := s.index[k]
	if !ok {
		return false
	}
	last := len(s.dense) - 1
	if i != last {
		moved := s.dense[last]
		s.dense[i] = moved
		s.index[moved] = i
	}
	var zero K
	s.dense[last] = zero
	s.dense = s.dense[:last]
	delete(s.index, k)
	return true
}

func (s *sparseSet[K]) Contains(k K) bool {
	_, ok := s.index[k]
	return ok
}

func (s *sparseSet[K]) Len() int {
	return len(s.dense)
}

// Values returns a copy of the members, safe to hold while the set is modified.
func (s *sparseSet[K]) Values() []K {
	out := make([]K, len(s.dense))
	copy(out, s.dense)
	return out
}
