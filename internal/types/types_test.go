package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUUIDHiLoRoundTrip(t *testing.T) {
	ids := []uuid.UUID{
		uuid.Nil,
		uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff"),
		uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		uuid.MustParse("80000000-0000-0000-8000-000000000000"), // sign bits set
	}
	for i := 0; i < 100; i++ {
		ids = append(ids, uuid.New())
	}
	for _, id := range ids {
		hi, lo := UUIDHiLo(id)
		if got := UUIDFromHiLo(hi, lo); got != id {
			t.Fatalf("round trip %s: hi=%d lo=%d got %s", id, hi, lo, got)
		}
	}
}

func TestUUIDHiLoBigEndian(t *testing.T) {
	id := uuid.MustParse("01020304-0506-0708-090a-0b0c0d0e0f10")
	hi, lo := UUIDHiLo(id)
	if hi != 0x0102030405060708 {
		t.Fatalf("hi = %#x", hi)
	}
	if lo != 0x090a0b0c0d0e0f10 {
		t.Fatalf("lo = %#x", lo)
	}
}

func TestTagValidate(t *testing.T) {
	good := &Tag{
		Header: TagHeader{
			ObjectType:    TypeData,
			ObjectID:      uuid.New(),
			ObjectVersion: 1,
			TagVersion:    1,
		},
		Attrs: map[string]AttrValue{"owner": StringAttr("core")},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid tag rejected: %v", err)
	}

	bad := []*Tag{
		nil,
		{Header: TagHeader{ObjectID: uuid.New(), ObjectVersion: 1, TagVersion: 1}},
		{Header: TagHeader{ObjectType: TypeData, ObjectVersion: 1, TagVersion: 1}},
		{Header: TagHeader{ObjectType: TypeData, ObjectID: uuid.New(), TagVersion: 1}},
		{Header: TagHeader{ObjectType: TypeData, ObjectID: uuid.New(), ObjectVersion: 1}},
		{
			Header: TagHeader{ObjectType: TypeData, ObjectID: uuid.New(), ObjectVersion: 1, TagVersion: 1},
			Attrs:  map[string]AttrValue{"x": {Type: "NOPE"}},
		},
	}
	for i, tag := range bad {
		if err := tag.Validate(); err == nil {
			t.Errorf("tag %d validated", i)
		}
	}
}

func TestBatchUpdateIsEmpty(t *testing.T) {
	var nilBatch *BatchUpdate
	if !nilBatch.IsEmpty() {
		t.Fatalf("nil batch not empty")
	}
	if !(&BatchUpdate{}).IsEmpty() {
		t.Fatalf("zero batch not empty")
	}
	b := &BatchUpdate{PreallocIDs: []ObjectRef{{ObjectType: TypeData, ObjectID: uuid.New()}}}
	if b.IsEmpty() {
		t.Fatalf("non-empty batch reported empty")
	}
}

func TestCriterionKind(t *testing.T) {
	if k := ByVersion(3).Kind(); k != CriterionVersion {
		t.Fatalf("ByVersion kind = %v", k)
	}
	if k := ByAsOf(time.Now()).Kind(); k != CriterionAsOf {
		t.Fatalf("ByAsOf kind = %v", k)
	}
	if k := ByLatest().Kind(); k != CriterionLatest {
		t.Fatalf("ByLatest kind = %v", k)
	}
	if k := (Criterion{}).Kind(); k != CriterionNone {
		t.Fatalf("empty criterion kind = %v", k)
	}
	over := Criterion{Version: 1, Latest: true}
	if k := over.Kind(); k != CriterionNone {
		t.Fatalf("over-specified criterion kind = %v", k)
	}
}

func TestTagSelectorValidate(t *testing.T) {
	id := uuid.New()
	ok := TagSelector{ObjectType: TypeModel, ObjectID: id, Object: ByLatest(), Tag: ByVersion(2)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid selector rejected: %v", err)
	}

	missing := TagSelector{ObjectType: TypeModel, ObjectID: id, Object: ByLatest()}
	if err := missing.Validate(); err == nil {
		t.Fatalf("selector without tag criterion validated")
	}
}

func TestConfigKeyValidate(t *testing.T) {
	if err := LatestConfigKey("pipelines", "batch-size").Validate(); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
	if err := (ConfigKey{ConfigClass: "pipelines", ConfigKey: "batch-size"}).Validate(); err == nil {
		t.Fatalf("key without criterion validated")
	}
	if err := (ConfigKey{ConfigKey: "batch-size", Latest: true}).Validate(); err == nil {
		t.Fatalf("key without class validated")
	}
	// Multiple criteria are allowed; they must agree at read time.
	multi := ConfigKey{ConfigClass: "pipelines", ConfigKey: "batch-size", Version: 1, Latest: true}
	if err := multi.Validate(); err != nil {
		t.Fatalf("multi-criterion key rejected: %v", err)
	}
}
