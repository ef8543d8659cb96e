package model

import (
	"encoding/json"
	"sort"
	"sync"
)

// Triplet is three points within a reference-points grid overlaid on a
// template's bounding box, per spec.md §3. Points are stored as grid
// cell coordinates (not pixel coordinates); a triplet is mapped onto a
// concrete bounding box by the hasher at train/verify time.
type Triplet struct {
	P1, P2, P3 GridPoint
}

// GridPoint is a coordinate in the reference-points grid.
type GridPoint struct {
	Col, Row int
}

// HashKey is the 5-tuple (d1, d2, n1, n2, n3) of spec.md §3: two
// quantized relative depths (0..4) and three quantized surface normals
// (0..7). At most 5*5*8*8*8 = 12800 distinct keys exist per table.
type HashKey struct {
	D1, D2     int
	N1, N2, N3 int
}

// Valid reports whether every component of k lies in its quantization
// range, the invariant spec.md §8 requires of all generated HashKeys.
func (k HashKey) Valid() bool {
	return k.D1 >= 0 && k.D1 < 5 && k.D2 >= 0 && k.D2 < 5 &&
		k.N1 >= 0 && k.N1 < 8 && k.N2 >= 0 && k.N2 < 8 && k.N3 >= 0 && k.N3 < 8
}

// HashTable binds one Triplet to a map from HashKey to the set of
// template ids whose triplet signature produced that key. Ordering of
// stored templates is irrelevant to correctness (spec.md §3); this
// implementation stores buckets as sorted slices so iteration is
// deterministic without a separate canonicalization pass.
type HashTable struct {
	Triplet Triplet

	mu      sync.Mutex
	buckets map[HashKey][]int
}

// NewHashTable creates an empty table bound to triplet.
func NewHashTable(triplet Triplet) *HashTable {
	return &HashTable{Triplet: triplet, buckets: make(map[HashKey][]int)}
}

// Insert adds templateID to the bucket for key, keeping the bucket
// sorted and de-duplicated so repeated inserts (e.g. re-training) are
// idempotent and reads are canonical regardless of insertion order.
// Safe for concurrent use: training is data-parallel over templates
// (spec.md §5) and multiple workers may insert into the same table.
func (t *HashTable) Insert(key HashKey, templateID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bucket := t.buckets[key]
	i := 0
	for i < len(bucket) && bucket[i] < templateID {
		i++
	}
	if i < len(bucket) && bucket[i] == templateID {
		return
	}
	bucket = append(bucket, 0)
	copy(bucket[i+1:], bucket[i:])
	bucket[i] = templateID
	t.buckets[key] = bucket
}

// Lookup returns the (already-sorted) bucket of template ids for key,
// or nil if the key was never observed during training. Safe for
// concurrent use: hash tables are read-only during verification
// (spec.md §5).
func (t *HashTable) Lookup(key HashKey) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buckets[key]
}

// BucketCount returns the number of distinct non-empty keys, useful
// for test assertions and size diagnostics.
func (t *HashTable) BucketCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

// hashBucket is one (key, template ids) pair of a HashTable's
// persisted form. HashKey can't be a JSON object map key (encoding/json
// requires string-like keys), so the bucket map is flattened to a
// slice, sorted for canonical output, per spec.md §3's "bucket-internal
// order must be canonicalized on read".
type hashBucket struct {
	Key         HashKey `json:"key"`
	TemplateIDs []int   `json:"template_ids"`
}

func bucketLess(a, b HashKey) bool {
	if a.D1 != b.D1 {
		return a.D1 < b.D1
	}
	if a.D2 != b.D2 {
		return a.D2 < b.D2
	}
	if a.N1 != b.N1 {
		return a.N1 < b.N1
	}
	if a.N2 != b.N2 {
		return a.N2 < b.N2
	}
	return a.N3 < b.N3
}

type hashTableJSON struct {
	Triplet Triplet      `json:"triplet"`
	Buckets []hashBucket `json:"buckets"`
}

// MarshalJSON implements the persisted shape a caller's own storage
// collaborator serializes (spec.md §6's "no on-disk format defined by
// the core" note): triplet plus a canonically-ordered bucket list.
func (t *HashTable) MarshalJSON() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buckets := make([]hashBucket, 0, len(t.buckets))
	for k, ids := range t.buckets {
		buckets = append(buckets, hashBucket{Key: k, TemplateIDs: ids})
	}
	sort.Slice(buckets, func(i, j int) bool { return bucketLess(buckets[i].Key, buckets[j].Key) })

	return json.Marshal(hashTableJSON{Triplet: t.Triplet, Buckets: buckets})
}

// UnmarshalJSON restores a HashTable from its MarshalJSON form.
func (t *HashTable) UnmarshalJSON(data []byte) error {
	var aux hashTableJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.Triplet = aux.Triplet
	t.buckets = make(map[HashKey][]int, len(aux.Buckets))
	for _, b := range aux.Buckets {
		t.buckets[b.Key] = b.TemplateIDs
	}
	return nil
}
