// Package metastore provides a minimal public API for embedding the
// metadata storage layer in other Go programs.
//
// The storage layer keeps versioned, tagged, immutable objects and typed
// key-value config entries in a relational database, one logical store
// per tenant. This package exports the essential types and an opener;
// the full implementation lives under internal/.
package metastore

import (
	"context"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/storage/dialect"
	"github.com/tagforge/metastore/internal/storage/sqlstore"
	"github.com/tagforge/metastore/internal/types"
)

// Core types for working with objects and tags.
type (
	ObjectType  = types.ObjectType
	ObjectRef   = types.ObjectRef
	Tag         = types.Tag
	TagHeader   = types.TagHeader
	TagSelector = types.TagSelector
	Criterion   = types.Criterion
	AttrValue   = types.AttrValue
	BatchUpdate = types.BatchUpdate
	ConfigEntry = types.ConfigEntry
	ConfigKey   = types.ConfigKey
	TenantInfo  = types.TenantInfo
)

// Object type constants.
const (
	TypeData   = types.TypeData
	TypeModel  = types.TypeModel
	TypeFlow   = types.TypeFlow
	TypeJob    = types.TypeJob
	TypeFile   = types.TypeFile
	TypeSchema = types.TypeSchema
	TypeCustom = types.TypeCustom
)

// Selector constructors.
var (
	ByVersion      = types.ByVersion
	ByAsOf         = types.ByAsOf
	ByLatest       = types.ByLatest
	LatestSelector = types.LatestSelector
)

// Database flavors.
const (
	SQLite     = dialect.SQLite
	MySQL      = dialect.MySQL
	MariaDB    = dialect.MariaDB
	PostgreSQL = dialect.PostgreSQL
	Dolt       = dialect.Dolt
)

// Store is the transactional facade over the metadata tables. Every
// operation is one database transaction.
type Store = storage.Store

// SearchQuery is a pre-built SQL search; see storage.SearchQuery.
type SearchQuery = storage.SearchQuery

// Options configures Open.
type Options = sqlstore.Options

// Sentinel errors returned by Store operations.
var (
	ErrTenantNotFound      = storage.ErrTenantNotFound
	ErrObjectNotFound      = storage.ErrObjectNotFound
	ErrConfigNotFound      = storage.ErrConfigNotFound
	ErrWrongObjectType     = storage.ErrWrongObjectType
	ErrDuplicateObjectID   = storage.ErrDuplicateObjectID
	ErrPriorVersionMissing = storage.ErrPriorVersionMissing
	ErrVersionSuperseded   = storage.ErrVersionSuperseded
	ErrInternal            = storage.ErrInternal
)

// Open connects to the configured database and returns a started store.
// Callers own the returned store and must Close it.
func Open(ctx context.Context, opts Options) (Store, error) {
	s, err := sqlstore.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the metastore tables and indexes if they do not
// exist. Run once per database, before the first Open+Start.
func InitSchema(ctx context.Context, opts Options) error {
	s, err := sqlstore.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return s.InitSchema(ctx)
}
