package sqlstore

import (
	"context"

	"github.com/tagforge/metastore/internal/storage"
)

// executeSearch runs a pre-built query from the external search builder.
// The query's first and only column must be tag primary keys; order is
// whatever the query specifies, and the result set is capped at the
// configured limit.
func (tx *storeTx) executeSearch(ctx context.Context, query storage.SearchQuery) ([]int64, error) {
	rows, err := tx.query(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, storage.Internalf("execute search: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var pks []int64
	for rows.Next() {
		if len(pks) >= tx.searchLimit {
			break
		}
		var pk int64
		if err := rows.Scan(&pk); err != nil {
			return nil, storage.Internalf("scan search result: %v", err)
		}
		pks = append(pks, pk)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Internalf("execute search: %v", err)
	}
	return pks, nil
}
