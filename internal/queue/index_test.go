package queue

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPriorityIndexOrdering(t *testing.T) {
	ix := newPriorityIndex()

	low := uuid.New()
	normal1 := uuid.New()
	normal2 := uuid.New()
	urgent := uuid.New()

	ix.push(PriorityLow, low)
	ix.push(PriorityNormal, normal1)
	ix.push(PriorityNormal, normal2)
	ix.push(PriorityUrgent, urgent)

	assert.Equal(t, 4, ix.len())

	// highest band first, FIFO within a band
	var popped []uuid.UUID
	for {
		id, ok := ix.pop()
		if !ok {
			break
		}
		popped = append(popped, id)
	}
	assert.Equal(t, []uuid.UUID{urgent, normal1, normal2, low}, popped)
	assert.Equal(t, 0, ix.len())
}

func TestPriorityIndexPopEmpty(t *testing.T) {
	ix := newPriorityIndex()

	id, ok := ix.pop()
	assert.False(t, ok)
	assert.Equal(t, uuid.Nil, id)
}

func TestPriorityIndexRemove(t *testing.T) {
	ix := newPriorityIndex()

	first := uuid.New()
	second := uuid.New()
	third := uuid.New()
	ix.push(PriorityNormal, first)
	ix.push(PriorityNormal, second)
	ix.push(PriorityNormal, third)

	assert.True(t, ix.remove(PriorityNormal, second))
	assert.False(t, ix.remove(PriorityNormal, second), "already removed")
	assert.False(t, ix.remove(PriorityUrgent, first), "wrong band")
	assert.Equal(t, 2, ix.len())

	// remaining order is preserved
	id, ok := ix.pop()
	assert.True(t, ok)
	assert.Equal(t, first, id)
	id, ok = ix.pop()
	assert.True(t, ok)
	assert.Equal(t, third, id)
}
