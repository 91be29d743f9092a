package distribution

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"tradeleague/services/testutil"
)

func TestDBPointLedgerCredit(t *testing.T) {
	db := testutil.NewTestDB(t, &LedgerEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ledger := NewDBPointLedger(DBPointLedgerParams{DB: db, Node: node})
	ctx := context.Background()

	require.NoError(t, ledger.Credit(ctx, "alice", 100, "ref-1"))
	require.NoError(t, ledger.Credit(ctx, "alice", 50, "ref-2"))

	balance, err := ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(150), balance)
}

func TestDBPointLedgerCreditIsIdempotentPerReference(t *testing.T) {
	db := testutil.NewTestDB(t, &LedgerEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ledger := NewDBPointLedger(DBPointLedgerParams{DB: db, Node: node})
	ctx := context.Background()

	require.NoError(t, ledger.Credit(ctx, "alice", 100, "ref-1"))
	require.NoError(t, ledger.Credit(ctx, "alice", 100, "ref-1"))

	balance, err := ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)
}
