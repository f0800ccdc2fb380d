package queue

import "github.com/google/uuid"

// priorityIndex orders pending task ids for dispatch: highest band first,
// FIFO within a band.
type priorityIndex struct {
	bands [len(priorities)][]uuid.UUID
	size  int
}

func newPriorityIndex() *priorityIndex {
	return &priorityIndex{}
}

// push appends a task id to the tail of its priority band.
func (ix *priorityIndex) push(p Priority, id uuid.UUID) {
	r := p.rank()
	ix.bands[r] = append(ix.bands[r], id)
	ix.size++
}

// pop removes and returns the next id to dispatch: the head of the highest
// non-empty band. Returns false when the index is empty.
func (ix *priorityIndex) pop() (uuid.UUID, bool) {
	for r := range ix.bands {
		if len(ix.bands[r]) == 0 {
			continue
		}
		id := ix.bands[r][0]
		ix.bands[r] = ix.bands[r][1:]
		ix.size--
		return id, true
	}
	return uuid.Nil, false
}

// remove deletes the given id from its band, preserving the order of the
// remaining entries. Returns false if the id is not present.
func (ix *priorityIndex) remove(p Priority, id uuid.UUID) bool {
	r := p.rank()
	for i, candidate := range ix.bands[r] {
		if candidate == id {
			ix.bands[r] = append(ix.bands[r][:i], ix.bands[r][i+1:]...)
			ix.size--
			return true
		}
	}
	return false
}

// len returns the number of pending ids across all bands.
func (ix *priorityIndex) len() int {
	return ix.size
}
