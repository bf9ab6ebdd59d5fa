package gallery

import "math"

// UnknownName is reported for faces with no acceptable gallery match.
const UnknownName = "Unknown"

// Match is the outcome of matching one embedding against a snapshot.
// Known is false when the best distance exceeds the rejection distance
// or the gallery is empty; an unknown match is never confirmable.
type Match struct {
	IdentityID int64
	Name       string
	Code       string
	Distance   float64
	Confidence float64
	Known      bool
}

// Matcher finds the nearest gallery entry for an embedding and derives a
// confidence in [0,1] from the cosine distance.
type Matcher struct {
	snapshot          *Snapshot
	rejectionDistance float64
}

// NewMatcher builds a matcher over an immutable snapshot.
func NewMatcher(snapshot *Snapshot, rejectionDistance float64) *Matcher {
	return &Matcher{snapshot: snapshot, rejectionDistance: rejectionDistance}
}

// Match scans every entry and returns the minimum-distance one.
// prevIdentity breaks exact-distance ties in favor of the identity the
// same track matched on the previous frame, else load order wins, so
// results stay deterministic.
func (m *Matcher) Match(embedding []float32, prevIdentity int64) Match {
	unknown := Match{Name: UnknownName, Distance: math.Inf(1)}
	if m.snapshot.Len() == 0 || len(embedding) == 0 {
		return unknown
	}

	best := -1
	bestDist := math.Inf(1)
	for i, entry := range m.snapshot.entries {
		d := CosineDistance(embedding, entry.Embedding)
		if d < bestDist {
			best = i
			bestDist = d
			continue
		}
		if d == bestDist && best >= 0 &&
			entry.IdentityID == prevIdentity && m.snapshot.entries[best].IdentityID != prevIdentity {
			best = i
		}
	}

	if best < 0 {
		return unknown
	}

	confidence := 1 - bestDist/m.rejectionDistance
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	if bestDist >= m.rejectionDistance {
		unknown.Distance = bestDist
		return unknown
	}

	entry := m.snapshot.entries[best]
	return Match{
		IdentityID: entry.IdentityID,
		Name:       entry.Name,
		Code:       entry.Code,
		Distance:   bestDist,
		Confidence: confidence,
		Known:      true,
	}
}

// CosineDistance computes the cosine distance between two vectors.
// Returns a value between 0 (identical) and 2 (opposite); mismatched or
// zero vectors yield the maximum distance.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return 1 - similarity
}
