//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"expenseflow/internal/audit"
	"expenseflow/internal/audit/store/postgres"
	"expenseflow/pkg/platform/tx"
	"expenseflow/pkg/testutil/containers"
)

func TestChainAgainstPostgres(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()

	t.Run("hashes survive the storage round trip", func(t *testing.T) {
		pg.Truncate(t)
		store := postgres.New(pg.DB)
		chain, err := audit.NewChain(store)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := chain.Record(ctx, "system", "ExpenseRequest", "r-1", "CREATE", map[string]any{
				"step": i,
			})
			require.NoError(t, err)
		}

		// A fresh chain instance sees only what postgres stored; any precision
		// loss in timestamps or data would break recomputation here.
		reopened, err := audit.NewChain(postgres.New(pg.DB))
		require.NoError(t, err)
		verification, err := reopened.Verify(ctx)
		require.NoError(t, err)
		require.True(t, verification.Valid)
		require.Equal(t, 3, verification.Count)
	})

	t.Run("tampered event data is detected", func(t *testing.T) {
		pg.Truncate(t)
		store := postgres.New(pg.DB)
		chain, err := audit.NewChain(store)
		require.NoError(t, err)

		_, err = chain.Record(ctx, "system", "ExpenseRequest", "r-1", "CREATE", map[string]any{"amount": "100"})
		require.NoError(t, err)
		second, err := chain.Record(ctx, "system", "ExpenseRequest", "r-1", "SUBMIT", map[string]any{"amount": "100"})
		require.NoError(t, err)

		_, err = pg.DB.ExecContext(ctx,
			`UPDATE audit_log SET event_data_json = '{"amount":"999"}' WHERE id = $1`,
			second.ID.String())
		require.NoError(t, err)

		verification, err := chain.Verify(ctx)
		require.NoError(t, err)
		require.False(t, verification.Valid)
		require.NotNil(t, verification.FailedAt)
		require.Equal(t, second.ID, *verification.FailedAt)
	})

	t.Run("tail links entries in order", func(t *testing.T) {
		pg.Truncate(t)
		store := postgres.New(pg.DB)
		chain, err := audit.NewChain(store)
		require.NoError(t, err)

		first, err := chain.Record(ctx, "a", "ExpenseRequest", "r-1", "CREATE", nil)
		require.NoError(t, err)
		second, err := chain.Record(ctx, "a", "ExpenseRequest", "r-1", "SUBMIT", nil)
		require.NoError(t, err)

		require.Equal(t, audit.GenesisHash, first.PrevHash)
		require.Equal(t, first.Hash, second.PrevHash)

		entries, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Less(t, entries[0].Seq, entries[1].Seq)
	})

	t.Run("overlapping transactions never fork the chain", func(t *testing.T) {
		pg.Truncate(t)
		store := postgres.New(pg.DB)
		chain, err := audit.NewChain(store)
		require.NoError(t, err)
		runner := tx.NewSQLRunner(pg.DB)

		// The first writer records its entry but holds its transaction open;
		// the second writer must not read the same committed tail.
		firstRecorded := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 2)

		go func() {
			done <- runner.RunInTx(ctx, func(ctx context.Context) error {
				if _, err := chain.Record(ctx, "a", "ExpenseRequest", "r-1", "APPROVE", nil); err != nil {
					return err
				}
				close(firstRecorded)
				<-release
				return nil
			})
		}()

		<-firstRecorded
		go func() {
			done <- runner.RunInTx(ctx, func(ctx context.Context) error {
				_, err := chain.Record(ctx, "b", "ExpenseRequest", "r-2", "REJECT", nil)
				return err
			})
		}()

		// Give the second writer time to reach the tail read before the first
		// transaction commits.
		time.Sleep(200 * time.Millisecond)
		close(release)
		require.NoError(t, <-done)
		require.NoError(t, <-done)

		verification, err := chain.Verify(ctx)
		require.NoError(t, err)
		require.True(t, verification.Valid)
		require.Equal(t, 2, verification.Count)

		entries, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, audit.GenesisHash, entries[0].PrevHash)
		require.Equal(t, entries[0].Hash, entries[1].PrevHash)
	})
}
