package candidates

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/trackfinder/internal/tracking/hits"
)

func keyed(id int, clusters ...int) *Candidate {
	c := &Candidate{ID: id, Alive: true}
	for _, k := range clusters {
		c.Keys = append(c.Keys, hits.Key{Detector: hits.DetectorStrip, Index: k})
	}
	return c
}

func TestOwnershipCounts(t *testing.T) {
	t.Parallel()

	a, b, c := keyed(0, 1, 2, 3), keyed(1, 3, 4), keyed(2, 7, 8)
	o := NewOwnership()
	o.Add(a, b, c)

	shared := hits.Key{Detector: hits.DetectorStrip, Index: 3}
	assert.Equal(t, 2, o.LiveCount(shared))
	assert.Equal(t, []*Candidate{a, b}, o.Overlapping())
	assert.Equal(t, 1, o.ConflictingPairs())

	o.Kill(b, RejectOverlap)
	assert.False(t, b.Alive)
	assert.Equal(t, RejectOverlap, b.Rejection)
	assert.Equal(t, 1, o.LiveCount(shared))
	assert.Empty(t, o.Overlapping())

	o.Kill(b, "again")
	assert.Equal(t, RejectOverlap, b.Rejection, "killing twice keeps the first reason")
	assert.Equal(t, 1, o.LiveCount(shared))

	o.SetAlive(b, true)
	assert.Equal(t, 2, o.LiveCount(shared))
	assert.Empty(t, b.Rejection)
	assert.Len(t, o.Alive(), 3)
}

func TestOwnershipIgnoresDeadOnAdd(t *testing.T) {
	t.Parallel()

	a, b := keyed(0, 1), keyed(1, 1)
	b.Alive = false
	o := NewOwnership()
	o.Add(a, b)
	assert.Equal(t, 1, o.LiveCount(hits.Key{Detector: hits.DetectorStrip, Index: 1}))
	assert.Len(t, o.Candidates(), 2)
}

func TestAssignRivals(t *testing.T) {
	t.Parallel()

	a, b, c := keyed(0, 1, 2), keyed(1, 2, 3), keyed(2, 3, 4)
	AssignRivals([]*Candidate{a, b, c})
	assert.Equal(t, []*Candidate{b}, a.Rivals)
	assert.Equal(t, []*Candidate{a, c}, b.Rivals)
	assert.Equal(t, []*Candidate{b}, c.Rivals)
}
