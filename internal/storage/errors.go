package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors forming the closed taxonomy exposed to callers.
// Driver-native failures are mapped onto these at the store boundary;
// anything unmappable surfaces wrapped in ErrInternal.
var (
	// ErrTenantNotFound indicates an unknown tenant code.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantExists indicates a create for a tenant code that is
	// already registered.
	ErrTenantExists = errors.New("tenant already exists")

	// ErrObjectNotFound indicates a selector that resolves to no row.
	ErrObjectNotFound = errors.New("object not found")

	// ErrWrongObjectType indicates a request whose object type disagrees
	// with the type recorded when the object was first saved.
	ErrWrongObjectType = errors.New("wrong object type")

	// ErrDuplicateObjectID indicates an insert for an object id that
	// already exists in the tenant.
	ErrDuplicateObjectID = errors.New("duplicate object id")

	// ErrIDAlreadyInUse indicates a preallocated-object save against an
	// id that already has a definition.
	ErrIDAlreadyInUse = errors.New("object id already in use")

	// ErrIDNotPreallocated indicates a preallocated-object save against
	// an id that was never reserved.
	ErrIDNotPreallocated = errors.New("object id not preallocated")

	// ErrPriorVersionMissing indicates an append of object version n
	// where version n-1 does not exist.
	ErrPriorVersionMissing = errors.New("prior object version missing")

	// ErrVersionSuperseded indicates the close-prior-latest step lost a
	// race: the expected latest definition row was already closed.
	ErrVersionSuperseded = errors.New("object version superseded")

	// ErrPriorTagMissing indicates an append of tag version n where
	// version n-1 does not exist.
	ErrPriorTagMissing = errors.New("prior tag version missing")

	// ErrTagSuperseded indicates the close-prior-latest step for a tag
	// lost a race.
	ErrTagSuperseded = errors.New("tag version superseded")

	// ErrPriorConfigMissing indicates an append of config version n
	// where version n-1 does not exist.
	ErrPriorConfigMissing = errors.New("prior config version missing")

	// ErrDuplicateConfig indicates an insert for a config version that
	// already exists.
	ErrDuplicateConfig = errors.New("duplicate config entry")

	// ErrConfigNotFound indicates a config key that resolves to no row.
	ErrConfigNotFound = errors.New("config entry not found")

	// ErrConfigClassNotFound indicates a config class with no entries.
	ErrConfigClassNotFound = errors.New("config class not found")

	// ErrInvalidObjectDefinition indicates a stored definition payload
	// that fails to decode.
	ErrInvalidObjectDefinition = errors.New("invalid object definition")

	// ErrInvalidConfigEntry indicates a stored config payload that fails
	// to decode.
	ErrInvalidConfigEntry = errors.New("invalid config entry")

	// ErrStartup indicates a configuration or schema problem discovered
	// at startup.
	ErrStartup = errors.New("startup failed")

	// ErrInternal indicates an unexpected driver error or an invariant
	// violation. Callers cannot recover from it.
	ErrInternal = errors.New("internal storage error")
)

// WrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to ErrObjectNotFound for consistent handling.
func WrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrObjectNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Internalf builds an ErrInternal with formatted context. Used for
// invariant violations (row-count mismatches, impossible states).
func Internalf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInternal)
}

// IsNotFound reports whether err is any of the not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) ||
		errors.Is(err, ErrConfigNotFound) ||
		errors.Is(err, ErrConfigClassNotFound) ||
		errors.Is(err, ErrTenantNotFound)
}

// IsDomainError reports whether err belongs to the caller-actionable part
// of the taxonomy (everything except ErrInternal and ErrStartup).
func IsDomainError(err error) bool {
	for _, sentinel := range []error{
		ErrTenantNotFound, ErrTenantExists, ErrObjectNotFound, ErrWrongObjectType,
		ErrDuplicateObjectID, ErrIDAlreadyInUse, ErrIDNotPreallocated,
		ErrPriorVersionMissing, ErrVersionSuperseded,
		ErrPriorTagMissing, ErrTagSuperseded,
		ErrPriorConfigMissing, ErrDuplicateConfig,
		ErrConfigNotFound, ErrConfigClassNotFound,
		ErrInvalidObjectDefinition, ErrInvalidConfigEntry,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
