package candidates

import "github.com/banshee-data/trackfinder/internal/tracking/hits"

// Ownership is the per-cycle table of live candidates per hit key. All
// changes to a registered candidate's Alive flag go through it so the
// live counts stay consistent.
type Ownership struct {
	live map[hits.Key]int
	all  []*Candidate
}

// NewOwnership returns an empty table.
func NewOwnership() *Ownership {
	return &Ownership{live: make(map[hits.Key]int)}
}

// Add registers candidates; live ones count towards their keys.
func (o *Ownership) Add(cs ...*Candidate) {
	for _, c := range cs {
		o.all = append(o.all, c)
		if c.Alive {
			o.bump(c, 1)
		}
	}
}

func (o *Ownership) bump(c *Candidate, d int) {
	for _, k := range c.Keys {
		o.live[k] += d
		if o.live[k] == 0 {
			delete(o.live, k)
		}
	}
}

// SetAlive flips a candidate's Alive flag and updates the live counts.
func (o *Ownership) SetAlive(c *Candidate, alive bool) {
	if c.Alive == alive {
		return
	}
	c.Alive = alive
	if alive {
		c.Rejection = ""
		o.bump(c, 1)
	} else {
		o.bump(c, -1)
	}
}

// Kill deactivates c and records why.
func (o *Ownership) Kill(c *Candidate, reason string) {
	if !c.Alive {
		return
	}
	o.SetAlive(c, false)
	c.Rejection = reason
}

// LiveCount is the number of live candidates holding k.
func (o *Ownership) LiveCount(k hits.Key) int { return o.live[k] }

// Candidates returns every registered candidate in registration order.
func (o *Ownership) Candidates() []*Candidate { return o.all }

// Alive returns the live candidates in registration order.
func (o *Ownership) Alive() []*Candidate {
	var out []*Candidate
	for _, c := range o.all {
		if c.Alive {
			out = append(out, c)
		}
	}
	return out
}

// Shared reports whether a live candidate shares any key with another live
// candidate.
func (o *Ownership) Shared(c *Candidate) bool {
	if !c.Alive {
		return false
	}
	for _, k := range c.Keys {
		if o.live[k] > 1 {
			return true
		}
	}
	return false
}

// Overlapping returns the live candidates that share a key with another
// live candidate, in registration order.
func (o *Ownership) Overlapping() []*Candidate {
	var out []*Candidate
	for _, c := range o.all {
		if o.Shared(c) {
			out = append(out, c)
		}
	}
	return out
}

// AssignRivals fills Rivals for every candidate of cs with the live members
// of cs it conflicts with.
func AssignRivals(cs []*Candidate) {
	for _, c := range cs {
		c.Rivals = c.Rivals[:0]
	}
	for i, a := range cs {
		if !a.Alive {
			continue
		}
		for _, b := range cs[i+1:] {
			if b.Alive && a.Conflicts(b) {
				a.Rivals = append(a.Rivals, b)
				b.Rivals = append(b.Rivals, a)
			}
		}
	}
}

// ConflictingPairs counts live pairs that share a key.
func (o *Ownership) ConflictingPairs() int {
	live := o.Overlapping()
	n := 0
	for i, a := range live {
		for _, b := range live[i+1:] {
			if a.Conflicts(b) {
				n++
			}
		}
	}
	return n
}
