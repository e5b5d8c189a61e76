// Package vecstore is the embedding store: a parallel identifier list and
// vector matrix, one row per identifier, no duplicates. Mutations return a
// new Snapshot instead of mutating in place, so readers holding the old
// value stay consistent during writes; snapshots share backing arrays until
// a write actually copies (arena-style copy-on-write).
package vecstore

// Snapshot is one immutable view of the store. The zero Snapshot is empty
// and usable.
//
// Invariant: len(ids) == len(vectors), and no identifier appears twice.
type Snapshot struct {
	ids     []string
	vectors [][]float32
	index   map[string]int
}

// Len returns the number of stored vectors.
func (s *Snapshot) Len() int {
	return len(s.ids)
}

// IDs returns the stored identifiers in insertion order. The returned slice
// is a copy.
func (s *Snapshot) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Lookup returns the vector for id, if present. The returned slice must be
// treated as read-only; snapshots share rows.
func (s *Snapshot) Lookup(id string) ([]float32, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.vectors[i], true
}

// Add returns a new snapshot with id mapped to vec. An existing id is
// replaced in place (new row, same position), keeping the parallel arrays
// duplicate-free.
func (s *Snapshot) Add(id string, vec []float32) *Snapshot {
	row := make([]float32, len(vec))
	copy(row, vec)

	if i, ok := s.index[id]; ok {
		vectors := make([][]float32, len(s.vectors))
		copy(vectors, s.vectors)
		vectors[i] = row
		return build(s.ids, vectors)
	}

	// Append with full-capacity slicing so an unrelated later append cannot
	// scribble into this snapshot's tail.
	ids := append(s.ids[:len(s.ids):len(s.ids)], id)
	vectors := append(s.vectors[:len(s.vectors):len(s.vectors)], row)
	return build(ids, vectors)
}

// Remove returns a new snapshot without id. Removing an absent id returns
// the receiver unchanged.
func (s *Snapshot) Remove(id string) *Snapshot {
	i, ok := s.index[id]
	if !ok {
		return s
	}
	ids := make([]string, 0, len(s.ids)-1)
	vectors := make([][]float32, 0, len(s.vectors)-1)
	ids = append(ids, s.ids[:i]...)
	ids = append(ids, s.ids[i+1:]...)
	vectors = append(vectors, s.vectors[:i]...)
	vectors = append(vectors, s.vectors[i+1:]...)
	return build(ids, vectors)
}

func build(ids []string, vectors [][]float32) *Snapshot {
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	return &Snapshot{ids: ids, vectors: vectors, index: index}
}
