package core

import "maps"

// Write is a single proposed memory write, addressed relative to the session
// the run belongs to.
type Write struct {
	Category   Category       `json:"category"`
	Name       string         `json:"name"`
	Payload    map[string]any `json:"payload"`
	Importance float64        `json:"importance"`
	// Size overrides the computed record size when positive.
	Size int `json:"size,omitempty"`
}

func (w Write) key() string { return string(w.Category) + "/" + w.Name }

// Delta is a proposed set of memory writes plus scratch updates, uncommitted
// until the owning node succeeds. Writes are kept in first-write order and
// deduplicated by (category, name): setting an existing key replaces the
// earlier write in place. The zero value is ready to use.
type Delta struct {
	writes  []Write
	index   map[string]int
	scratch map[string]any
}

// Set stages a write, replacing any earlier write to the same key.
func (d *Delta) Set(w Write) {
	if d.index == nil {
		d.index = map[string]int{}
	}
	w.Payload = CloneMap(w.Payload)
	if i, ok := d.index[w.key()]; ok {
		d.writes[i] = w
		return
	}
	d.index[w.key()] = len(d.writes)
	d.writes = append(d.writes, w)
}

// SetScratch stages a session scratch update. A nil value removes the key on
// commit.
func (d *Delta) SetScratch(key string, value any) {
	if d.scratch == nil {
		d.scratch = map[string]any{}
	}
	d.scratch[key] = value
}

// Lookup returns the staged write for a key.
func (d Delta) Lookup(category Category, name string) (Write, bool) {
	i, ok := d.index[string(category)+"/"+name]
	if !ok {
		return Write{}, false
	}
	return d.writes[i], true
}

// Writes returns the staged writes in commit order.
func (d Delta) Writes() []Write {
	out := make([]Write, len(d.writes))
	copy(out, d.writes)
	return out
}

// Scratch returns a copy of the staged scratch updates.
func (d Delta) Scratch() map[string]any {
	return maps.Clone(d.scratch)
}

// Len returns the number of staged memory writes.
func (d Delta) Len() int { return len(d.writes) }

// IsEmpty reports whether nothing is staged.
func (d Delta) IsEmpty() bool { return len(d.writes) == 0 && len(d.scratch) == 0 }

// Merge applies other on top of d. Writes to keys d already holds supersede
// them; new keys are appended in other's order.
func (d *Delta) Merge(other Delta) {
	for _, w := range other.writes {
		d.Set(w)
	}
	for k, v := range other.scratch {
		d.SetScratch(k, v)
	}
}

// Clone returns an independent copy.
func (d Delta) Clone() Delta {
	var out Delta
	out.Merge(d)
	return out
}
