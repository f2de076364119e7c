package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atlas-desktop/g13trader/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLifecycle(t *testing.T) (*Lifecycle, *ledger.Store) {
	t.Helper()
	store, err := ledger.NewStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)
	return NewLifecycle(zap.NewNop(), store, []string{"fibo1", "fibo2", "fibo3"}), store
}

func TestStartCreatesFreshSessionWhenNoneExists(t *testing.T) {
	l, store := newLifecycle(t)
	sess := l.Start(decimal.NewFromInt(10000))

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, ledger.SessionActive, sess.Status)
	assert.True(t, sess.BalanceStart.Equal(decimal.NewFromInt(10000)))

	reloaded := store.LoadSession()
	assert.Equal(t, sess.ID, reloaded.ID)
}

func TestStartIsIdempotentAndPatchesMissingBalance(t *testing.T) {
	l, store := newLifecycle(t)
	first := l.Start(decimal.Zero)
	require.True(t, first.BalanceStart.IsZero())

	second := l.Start(decimal.NewFromInt(5000))
	assert.Equal(t, first.ID, second.ID) // same session, not recreated
	assert.True(t, second.BalanceStart.Equal(decimal.NewFromInt(5000)))

	reloaded := store.LoadSession()
	assert.True(t, reloaded.BalanceStart.Equal(decimal.NewFromInt(5000)))
}

func TestStartForceNewResetsLedgerAndArchivesPriorActivity(t *testing.T) {
	l, store := newLifecycle(t)
	first := l.Start(decimal.NewFromInt(10000))

	require.NoError(t, store.AppendClosedTrade("fibo1", ledger.ClosedTrade{
		PositionID: 1, Profit: decimal.NewFromFloat(12.5),
	}))
	require.NoError(t, store.LogDecision(ledger.Decision{AgentID: "fibo1", Action: "BUY"}))

	second := l.StartForceNew(decimal.NewFromInt(10500))
	assert.NotEqual(t, first.ID, second.ID)

	assert.Empty(t, store.LoadClosedTrades("fibo1"))
	assert.Empty(t, store.RecentDecisions(0))

	entries, err := os.ReadDir(filepath.Join(store.RootDir(), "history"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStartForceNewSkipsArchiveWhenNoPriorActivity(t *testing.T) {
	l, store := newLifecycle(t)
	l.Start(decimal.NewFromInt(10000))

	l.StartForceNew(decimal.NewFromInt(10000))

	entries, err := os.ReadDir(filepath.Join(store.RootDir(), "history"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEndArchivesAndMarksStopped(t *testing.T) {
	l, store := newLifecycle(t)
	l.Start(decimal.NewFromInt(10000))
	require.NoError(t, store.AppendClosedTrade("fibo1", ledger.ClosedTrade{
		PositionID: 1, Profit: decimal.NewFromFloat(-5),
	}))

	sess := l.End()
	assert.Equal(t, ledger.SessionStopped, sess.Status)

	entries, err := os.ReadDir(filepath.Join(store.RootDir(), "history"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
