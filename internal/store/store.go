// Package store holds the in-memory working set the UI layer reads from.
// A Collection is owned by exactly one engine instance; it is never shared
// across sessions. Callers are responsible for locking — the engine
// serializes all access behind its own mutex.
package store

// Record is anything with a stable string identifier.
type Record interface {
	RecordID() string
}

// Collection is an ordered set of records, unique by id. Order is
// presentation order: newest first, with optimistic records at the head.
type Collection[T Record] struct {
	items []T
	index map[string]int
}

func NewCollection[T Record]() *Collection[T] {
	return &Collection[T]{index: make(map[string]int)}
}

func (c *Collection[T]) Len() int {
	return len(c.items)
}

// Items returns a copy of the collection in order. The caller may hold it
// across mutations without seeing them.
func (c *Collection[T]) Items() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[T]) Get(id string) (T, bool) {
	if i, ok := c.index[id]; ok {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

func (c *Collection[T]) IndexOf(id string) int {
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

// Prepend inserts rec at the head. If the id is already present the
// collection is left unchanged.
func (c *Collection[T]) Prepend(rec T) {
	if _, ok := c.index[rec.RecordID()]; ok {
		return
	}
	c.items = append([]T{rec}, c.items...)
	c.reindex(0)
}

// AppendUnique appends the records whose ids are not already present,
// keeping first-occurrence order. This is the merge path for fetched pages
// racing full resyncs: duplicates are dropped, never reordered.
func (c *Collection[T]) AppendUnique(recs []T) int {
	added := 0
	for _, rec := range recs {
		if _, ok := c.index[rec.RecordID()]; ok {
			continue
		}
		c.index[rec.RecordID()] = len(c.items)
		c.items = append(c.items, rec)
		added++
	}
	return added
}

// Replace swaps the record with the given id for rec, keeping its position.
// The replacement may carry a different id (provisional id -> server id).
// Returns false if id is not present.
func (c *Collection[T]) Replace(id string, rec T) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	if newID := rec.RecordID(); newID != id {
		if j, dup := c.index[newID]; dup && j != i {
			// Confirmed record already arrived through a resync; drop
			// the provisional copy instead of duplicating.
			c.removeAt(i)
			return true
		}
		delete(c.index, id)
		c.index[newID] = i
	}
	c.items[i] = rec
	return true
}

// Upsert replaces in place when the id exists and prepends otherwise.
// Applying the same confirmed record twice leaves the collection identical.
func (c *Collection[T]) Upsert(rec T) {
	if i, ok := c.index[rec.RecordID()]; ok {
		c.items[i] = rec
		return
	}
	c.Prepend(rec)
}

func (c *Collection[T]) Remove(id string) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.removeAt(i)
	return true
}

// Reset replaces the whole collection, deduplicating on entry.
func (c *Collection[T]) Reset(recs []T) {
	c.items = c.items[:0]
	c.index = make(map[string]int, len(recs))
	c.AppendUnique(recs)
}

// Snapshot captures the current ordered state for rollback.
func (c *Collection[T]) Snapshot() []T {
	return c.Items()
}

// Restore rewinds the collection to a previously taken snapshot.
func (c *Collection[T]) Restore(snapshot []T) {
	c.Reset(snapshot)
}

func (c *Collection[T]) removeAt(i int) {
	delete(c.index, c.items[i].RecordID())
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.reindex(i)
}

func (c *Collection[T]) reindex(from int) {
	for i := from; i < len(c.items); i++ {
		c.index[c.items[i].RecordID()] = i
	}
}
