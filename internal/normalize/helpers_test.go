package normalize

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/store"
)

var testEncodings = map[ir.ListOp]compiler.ListEncodings{
	ir.ListAnd:      {Flat: true, Key: true, Linked: true},
	ir.ListOr:       {Flat: true, Key: true, Linked: true},
	ir.ListNot:      {Flat: true, SingleElement: true},
	ir.ListDisjoint: {Flat: true},
}

// beginRun opens a store in a temp dir and starts a run on it.
func beginRun(t *testing.T) *store.Tx {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { tx.Rollback() })
	require.NoError(t, tx.CreateRunTables(ctx))
	return tx
}

func newTestNormalizer(t *testing.T) (*Normalizer, *store.Tx) {
	t.Helper()
	tx := beginRun(t)
	return New(tx.Queries, testEncodings), tx
}

func exec(t *testing.T, tx *store.Tx, query string, args ...any) {
	t.Helper()
	_, err := tx.DB().ExecContext(context.Background(), query, args...)
	require.NoError(t, err, query)
}

// rowsOf returns every row of an integer-valued query.
func rowsOf(t *testing.T, tx *store.Tx, query string, args ...any) [][]int64 {
	t.Helper()
	rows, err := tx.DB().QueryContext(context.Background(), query, args...)
	require.NoError(t, err, query)
	defer rows.Close()
	cols, err := rows.Columns()
	require.NoError(t, err)

	out := [][]int64{}
	for rows.Next() {
		vals := make([]int64, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		out = append(out, vals)
	}
	require.NoError(t, rows.Err())
	return out
}

func count(t *testing.T, tx *store.Tx, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, tx.DB().QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}
