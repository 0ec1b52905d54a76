package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Criterion selects one version out of a versioned group: an explicit
// version number, an as-of instant, or the latest row. Exactly one of
// the three must be set.
type Criterion struct {
	Version int       `json:"version,omitempty"`
	AsOf    time.Time `json:"as_of,omitzero"`
	Latest  bool      `json:"latest,omitempty"`
}

// ByVersion selects an explicit version.
func ByVersion(v int) Criterion { return Criterion{Version: v} }

// ByAsOf selects the version current at the given instant.
func ByAsOf(t time.Time) Criterion { return Criterion{AsOf: t.UTC()} }

// ByLatest selects the current latest version.
func ByLatest() Criterion { return Criterion{Latest: true} }

// Kind discriminates the three criterion forms.
type CriterionKind int

const (
	CriterionNone CriterionKind = iota
	CriterionVersion
	CriterionAsOf
	CriterionLatest
)

// Kind returns which form the criterion takes, or CriterionNone when
// it is empty or over-specified.
func (c Criterion) Kind() CriterionKind {
	set := 0
	kind := CriterionNone
	if c.Version > 0 {
		set++
		kind = CriterionVersion
	}
	if !c.AsOf.IsZero() {
		set++
		kind = CriterionAsOf
	}
	if c.Latest {
		set++
		kind = CriterionLatest
	}
	if set != 1 {
		return CriterionNone
	}
	return kind
}

// Validate checks exactly one selection form is present.
func (c Criterion) Validate() error {
	if c.Kind() == CriterionNone {
		return fmt.Errorf("criterion must set exactly one of version, as-of, latest")
	}
	return nil
}

// TagSelector names one tag: an object identity plus a criterion for the
// object version and another for the tag version.
type TagSelector struct {
	ObjectType ObjectType `json:"object_type"`
	ObjectID   uuid.UUID  `json:"object_id"`
	Object     Criterion  `json:"object"`
	Tag        Criterion  `json:"tag"`
}

// Validate checks the selector is complete.
func (s TagSelector) Validate() error {
	if s.ObjectType == "" {
		return fmt.Errorf("selector %s: missing object type", s.ObjectID)
	}
	if s.ObjectID == uuid.Nil {
		return fmt.Errorf("selector: missing object id")
	}
	if err := s.Object.Validate(); err != nil {
		return fmt.Errorf("selector %s: object %w", s.ObjectID, err)
	}
	if err := s.Tag.Validate(); err != nil {
		return fmt.Errorf("selector %s: tag %w", s.ObjectID, err)
	}
	return nil
}

// SelectorFor builds the selector that picks out the given tag exactly.
func SelectorFor(t *Tag) TagSelector {
	return TagSelector{
		ObjectType: t.Header.ObjectType,
		ObjectID:   t.Header.ObjectID,
		Object:     ByVersion(t.Header.ObjectVersion),
		Tag:        ByVersion(t.Header.TagVersion),
	}
}

// LatestSelector builds a latest/latest selector for the given object.
func LatestSelector(objectType ObjectType, objectID uuid.UUID) TagSelector {
	return TagSelector{
		ObjectType: objectType,
		ObjectID:   objectID,
		Object:     ByLatest(),
		Tag:        ByLatest(),
	}
}
