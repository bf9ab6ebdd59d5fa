// Package gallery holds the per-session snapshot of enrolled identities
// and matches face embeddings against it.
package gallery

// Entry is one enrolled identity's embedding, read-only to the pipeline.
type Entry struct {
	IdentityID int64     `json:"identity_id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	Embedding  []float32 `json:"embedding"`
}

// Snapshot is an immutable set of gallery entries in load order. A
// session holds one snapshot for its whole lifetime; overlapping
// sessions may hold different snapshots without inconsistency.
type Snapshot struct {
	entries []Entry
}

// NewSnapshot copies the entries so later mutation of the input slice
// cannot leak into a live session.
func NewSnapshot(entries []Entry) *Snapshot {
	copied := make([]Entry, len(entries))
	copy(copied, entries)
	return &Snapshot{entries: copied}
}

// Len reports the number of enrolled identities.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries exposes the snapshot contents for serialization. Callers must
// not mutate the returned slice.
func (s *Snapshot) Entries() []Entry {
	if s == nil {
		return nil
	}
	return s.entries
}
