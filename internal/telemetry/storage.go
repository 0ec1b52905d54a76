package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tagforge/metastore/internal/storage"
	"github.com/tagforge/metastore/internal/types"
)

const storageScopeName = "github.com/tagforge/metastore/storage"

// InstrumentedStore wraps storage.Store with OTel tracing and metrics.
// Every method gets a span and is counted in ms.storage.* metrics.
// Use WrapStore to create one; it returns the original store unchanged
// when telemetry is disabled.
type InstrumentedStore struct {
	inner  storage.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s storage.Store) storage.Store {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("ms.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("ms.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("ms.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func tenantAttr(tenant string) attribute.KeyValue {
	return attribute.String("ms.tenant", tenant)
}

// ── Lifecycle ───────────────────────────────────────────────────────────────

func (s *InstrumentedStore) Start(ctx context.Context) error {
	ctx, span, t := s.op(ctx, "Start")
	err := s.inner.Start(ctx)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) Stop() error {
	return s.inner.Stop()
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

// ── Tenants ─────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) ListTenants(ctx context.Context) ([]types.TenantInfo, error) {
	ctx, span, t := s.op(ctx, "ListTenants")
	v, err := s.inner.ListTenants(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CreateTenant(ctx context.Context, code, description string) error {
	attrs := []attribute.KeyValue{tenantAttr(code)}
	ctx, span, t := s.op(ctx, "CreateTenant", attrs...)
	err := s.inner.CreateTenant(ctx, code, description)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) RefreshTenants(ctx context.Context) error {
	ctx, span, t := s.op(ctx, "RefreshTenants")
	err := s.inner.RefreshTenants(ctx)
	s.done(ctx, span, t, err)
	return err
}

// ── Writes ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) SaveBatchUpdate(ctx context.Context, tenant string, batch *types.BatchUpdate) error {
	attrs := []attribute.KeyValue{
		tenantAttr(tenant),
		attribute.Int("ms.batch.new_objects", len(batch.NewObjects)),
		attribute.Int("ms.batch.new_versions", len(batch.NewVersions)),
		attribute.Int("ms.batch.new_tags", len(batch.NewTags)),
		attribute.Int("ms.batch.config_entries", len(batch.ConfigEntries)),
	}
	ctx, span, t := s.op(ctx, "SaveBatchUpdate", attrs...)
	err := s.inner.SaveBatchUpdate(ctx, tenant, batch)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) SavePreallocatedIDs(ctx context.Context, tenant string, refs []types.ObjectRef) error {
	attrs := []attribute.KeyValue{tenantAttr(tenant), attribute.Int("ms.count", len(refs))}
	ctx, span, t := s.op(ctx, "SavePreallocatedIDs", attrs...)
	err := s.inner.SavePreallocatedIDs(ctx, tenant, refs)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) SavePreallocatedObjects(ctx context.Context, tenant string, tags []*types.Tag) error {
	attrs := []attribute.KeyValue{tenantAttr(tenant), attribute.Int("ms.count", len(tags))}
	ctx, span, t := s.op(ctx, "SavePreallocatedObjects", attrs...)
	err := s.inner.SavePreallocatedObjects(ctx, tenant, tags)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) SaveNewObjects(ctx context.Context, tenant string, tags []*types.Tag) error {
	attrs := []attribute.KeyValue{tenantAttr(tenant), attribute.Int("ms.count", len(tags))}
	ctx, span, t := s.op(ctx, "SaveNewObjects", attrs...)
	err := s.inner.SaveNewObjects(ctx, tenant, tags)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) SaveNewVersions(ctx context.Context, tenant string, tags []*types.Tag) error {
	attrs := []attribute.KeyValue{tenantAttr(tenant), attribute.Int("ms.count", len(tags))}
	ctx, span, t := s.op(ctx, "SaveNewVersions", attrs...)
	err := s.inner.SaveNewVersions(ctx, tenant, tags)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) SaveNewTags(ctx context.Context, tenant string, tags []*types.Tag) error {
	attrs := []attribute.KeyValue{tenantAttr(tenant), attribute.Int("ms.count", len(tags))}
	ctx, span, t := s.op(ctx, "SaveNewTags", attrs...)
	err := s.inner.SaveNewTags(ctx, tenant, tags)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Reads ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) LoadObject(ctx context.Context, tenant string, sel types.TagSelector) (*types.Tag, error) {
	attrs := []attribute.KeyValue{
		tenantAttr(tenant),
		attribute.String("ms.object.type", string(sel.ObjectType)),
		attribute.String("ms.object.id", sel.ObjectID.String()),
	}
	ctx, span, t := s.op(ctx, "LoadObject", attrs...)
	v, err := s.inner.LoadObject(ctx, tenant, sel)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) LoadObjects(ctx context.Context, tenant string, sels []types.TagSelector) ([]*types.Tag, error) {
	attrs := []attribute.KeyValue{tenantAttr(tenant), attribute.Int("ms.count", len(sels))}
	ctx, span, t := s.op(ctx, "LoadObjects", attrs...)
	v, err := s.inner.LoadObjects(ctx, tenant, sels)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) LoadPriorObjects(ctx context.Context, tenant string, sels []types.TagSelector) ([]*types.Tag, error) {
	attrs := []attribute.KeyValue{tenantAttr(tenant), attribute.Int("ms.count", len(sels))}
	ctx, span, t := s.op(ctx, "LoadPriorObjects", attrs...)
	v, err := s.inner.LoadPriorObjects(ctx, tenant, sels)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) LoadPriorTags(ctx context.Context, tenant string, sels []types.TagSelector) ([]*types.Tag, error) {
	attrs := []attribute.KeyValue{tenantAttr(tenant), attribute.Int("ms.count", len(sels))}
	ctx, span, t := s.op(ctx, "LoadPriorTags", attrs...)
	v, err := s.inner.LoadPriorTags(ctx, tenant, sels)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) Search(ctx context.Context, tenant string, query storage.SearchQuery) ([]*types.Tag, error) {
	attrs := []attribute.KeyValue{tenantAttr(tenant)}
	ctx, span, t := s.op(ctx, "Search", attrs...)
	v, err := s.inner.Search(ctx, tenant, query)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Config entries ──────────────────────────────────────────────────────────

func (s *InstrumentedStore) SaveConfigEntries(ctx context.Context, tenant string, entries []*types.ConfigEntry) error {
	attrs := []attribute.KeyValue{tenantAttr(tenant), attribute.Int("ms.count", len(entries))}
	ctx, span, t := s.op(ctx, "SaveConfigEntries", attrs...)
	err := s.inner.SaveConfigEntries(ctx, tenant, entries)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) LoadConfigEntry(ctx context.Context, tenant string, key types.ConfigKey, includeDeleted bool) (*types.ConfigEntry, error) {
	attrs := []attribute.KeyValue{
		tenantAttr(tenant),
		attribute.String("ms.config.class", key.ConfigClass),
		attribute.String("ms.config.key", key.ConfigKey),
	}
	ctx, span, t := s.op(ctx, "LoadConfigEntry", attrs...)
	v, err := s.inner.LoadConfigEntry(ctx, tenant, key, includeDeleted)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) LoadConfigEntries(ctx context.Context, tenant string, keys []types.ConfigKey, includeDeleted bool) ([]*types.ConfigEntry, error) {
	attrs := []attribute.KeyValue{tenantAttr(tenant), attribute.Int("ms.count", len(keys))}
	ctx, span, t := s.op(ctx, "LoadConfigEntries", attrs...)
	v, err := s.inner.LoadConfigEntries(ctx, tenant, keys, includeDeleted)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListConfigEntries(ctx context.Context, tenant string, configClass string, includeDeleted bool) ([]*types.ConfigEntry, error) {
	attrs := []attribute.KeyValue{
		tenantAttr(tenant),
		attribute.String("ms.config.class", configClass),
	}
	ctx, span, t := s.op(ctx, "ListConfigEntries", attrs...)
	v, err := s.inner.ListConfigEntries(ctx, tenant, configClass, includeDeleted)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

var _ storage.Store = (*InstrumentedStore)(nil)
