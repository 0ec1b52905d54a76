// Package types defines core data structures for the metastore metadata layer.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ObjectType identifies the kind of definition an object carries.
// The type is fixed when the object is first saved (or preallocated)
// and every later version and tag must state the same type.
type ObjectType string

const (
	TypeData   ObjectType = "DATA"
	TypeModel  ObjectType = "MODEL"
	TypeFlow   ObjectType = "FLOW"
	TypeJob    ObjectType = "JOB"
	TypeFile   ObjectType = "FILE"
	TypeSchema ObjectType = "SCHEMA"
	TypeCustom ObjectType = "CUSTOM"
)

// Payload format constants recorded alongside every stored payload.
// The store never inspects payload bytes; these columns say how the
// producer encoded them.
const (
	FormatProto   = 1
	FormatCurrent = 1
)

// ObjectRef names an object without selecting a version.
// Used for ID preallocation.
type ObjectRef struct {
	ObjectType ObjectType `json:"object_type"`
	ObjectID   uuid.UUID  `json:"object_id"`
}

// Validate checks the ref is complete.
func (r ObjectRef) Validate() error {
	if r.ObjectType == "" {
		return fmt.Errorf("object ref: missing object type")
	}
	if r.ObjectID == uuid.Nil {
		return fmt.Errorf("object ref: missing object id")
	}
	return nil
}

// TagHeader carries the identity and version bookkeeping for one tag.
// Timestamps are assigned by the store at write time; callers supply
// the identity and version fields.
type TagHeader struct {
	ObjectType      ObjectType `json:"object_type"`
	ObjectID        uuid.UUID  `json:"object_id"`
	ObjectVersion   int        `json:"object_version"`
	ObjectTimestamp time.Time  `json:"object_timestamp,omitzero"`
	TagVersion      int        `json:"tag_version"`
	TagTimestamp    time.Time  `json:"tag_timestamp,omitzero"`
	IsLatestObject  bool       `json:"is_latest_object,omitempty"`
	IsLatestTag     bool       `json:"is_latest_tag,omitempty"`
}

// Tag is the versioned envelope the store persists and returns: a header,
// a typed attribute map and an opaque definition payload.
type Tag struct {
	Header TagHeader `json:"header"`

	// Attrs holds the searchable, typed attributes written with the tag.
	Attrs map[string]AttrValue `json:"attrs,omitempty"`

	// Format and FormatVersion record the payload encoding.
	Format        int `json:"format"`
	FormatVersion int `json:"format_version"`

	// Payload is the serialized object definition. Stored and returned
	// bit-exact, never inspected.
	Payload []byte `json:"payload,omitempty"`
}

// Validate checks a tag is well-formed for writing. It does not check
// version-sequencing rules; those are enforced by the store.
func (t *Tag) Validate() error {
	if t == nil {
		return fmt.Errorf("tag: nil")
	}
	if t.Header.ObjectType == "" {
		return fmt.Errorf("tag %s: missing object type", t.Header.ObjectID)
	}
	if t.Header.ObjectID == uuid.Nil {
		return fmt.Errorf("tag: missing object id")
	}
	if t.Header.ObjectVersion < 1 {
		return fmt.Errorf("tag %s: object version must be >= 1, got %d",
			t.Header.ObjectID, t.Header.ObjectVersion)
	}
	if t.Header.TagVersion < 1 {
		return fmt.Errorf("tag %s: tag version must be >= 1, got %d",
			t.Header.ObjectID, t.Header.TagVersion)
	}
	for name, v := range t.Attrs {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("tag %s: attr %q: %w", t.Header.ObjectID, name, err)
		}
	}
	return nil
}

// Ref returns the object identity portion of the header.
func (t *Tag) Ref() ObjectRef {
	return ObjectRef{ObjectType: t.Header.ObjectType, ObjectID: t.Header.ObjectID}
}

// TenantInfo describes one tenant as listed by the store.
type TenantInfo struct {
	ID          int    `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// BatchUpdate groups several write primitives into one atomic unit.
// Empty slices are skipped; the rest execute in the order below inside
// a single transaction.
type BatchUpdate struct {
	PreallocIDs     []ObjectRef    `json:"prealloc_ids,omitempty"`
	PreallocObjects []*Tag         `json:"prealloc_objects,omitempty"`
	NewObjects      []*Tag         `json:"new_objects,omitempty"`
	NewVersions     []*Tag         `json:"new_versions,omitempty"`
	NewTags         []*Tag         `json:"new_tags,omitempty"`
	ConfigEntries   []*ConfigEntry `json:"config_entries,omitempty"`
}

// IsEmpty reports whether the batch contains no work at all.
func (b *BatchUpdate) IsEmpty() bool {
	return b == nil ||
		len(b.PreallocIDs) == 0 &&
			len(b.PreallocObjects) == 0 &&
			len(b.NewObjects) == 0 &&
			len(b.NewVersions) == 0 &&
			len(b.NewTags) == 0 &&
			len(b.ConfigEntries) == 0
}

// UUIDHiLo splits a UUID into two signed 64-bit halves for storage.
// The split is big-endian: the first 8 bytes are the high half.
func UUIDHiLo(id uuid.UUID) (hi, lo int64) {
	for i := 0; i < 8; i++ {
		hi = hi<<8 | int64(id[i])
		lo = lo<<8 | int64(id[i+8])
	}
	return hi, lo
}

// UUIDFromHiLo reassembles a UUID stored as two signed 64-bit halves.
func UUIDFromHiLo(hi, lo int64) uuid.UUID {
	var id uuid.UUID
	for i := 7; i >= 0; i-- {
		id[i] = byte(hi)
		id[i+8] = byte(lo)
		hi >>= 8
		lo >>= 8
	}
	return id
}
