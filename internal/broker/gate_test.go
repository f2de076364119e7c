package broker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testGate(t *testing.T) (*Gate, *Fake) {
	t.Helper()
	fake := NewFake(AccountInfo{Login: 1001, Balance: decimal.NewFromInt(10000), Equity: decimal.NewFromInt(10000)})
	return NewGate(zap.NewNop(), fake), fake
}

func TestGateAcquireRelease(t *testing.T) {
	gate, _ := testGate(t)

	res, err := gate.Acquire("fibo1", Credentials{Login: 1001}, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), res.Account.Login)

	gate.Release()
	gate.Release() // idempotent
}

func TestGateLoginMismatch(t *testing.T) {
	gate, _ := testGate(t)

	_, err := gate.Acquire("fibo1", Credentials{Login: 1001}, 9999)
	require.Error(t, err)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, ReasonLoginMismatch, failure.Reason)

	// A failed Acquire must release the token: a subsequent Acquire should
	// not block.
	res, err := gate.Acquire("fibo1", Credentials{Login: 1001}, 1001)
	require.NoError(t, err)
	assert.NotNil(t, res)
	gate.Release()
}

func TestGateMutualExclusion(t *testing.T) {
	gate, _ := testGate(t)

	res, err := gate.Acquire("fibo1", Credentials{Login: 1001}, 1001)
	require.NoError(t, err)
	require.NotNil(t, res)

	var acquired int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := gate.Acquire("fibo2", Credentials{Login: 1001}, 1001); err == nil {
			atomic.StoreInt32(&acquired, 1)
			gate.Release()
		}
	}()

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&acquired), "second agent must not acquire while first holds the gate")

	gate.Release()
	wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&acquired))
}
