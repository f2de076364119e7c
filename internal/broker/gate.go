package broker

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AcquireTimeout is the maximum time Acquire blocks for the token.
const AcquireTimeout = 30 * time.Second

// InitTimeout is the 60s broker initialization budget. Acquire does not
// enforce it: Initialize is called synchronously and runs until the
// adapter returns; an adapter receives its own limit via Credentials.Timeout.
const InitTimeout = 60 * time.Second

// Gate is the process-wide mutual-exclusion token over the broker
// terminal. The underlying vendor SDK is a singleton (§9 design note);
// the only safe abstraction is a single mutex plus a two-phase
// Acquire/Release contract. Every successful Acquire must be paired with
// exactly one Release on every path, including panics — callers should
// `defer gate.Release()` immediately after a successful Acquire.
type Gate struct {
	logger  *zap.Logger
	adapter Adapter

	token chan struct{}

	mu          sync.Mutex
	held        bool
	heldBy      string
	activeLogin int64
}

// NewGate creates a gate wrapping the given broker adapter.
func NewGate(logger *zap.Logger, adapter Adapter) *Gate {
	g := &Gate{
		logger:  logger.Named("broker_gate"),
		adapter: adapter,
		token:   make(chan struct{}, 1),
	}
	g.token <- struct{}{}
	return g
}

// AcquireResult is the outcome of a successful Acquire.
type AcquireResult struct {
	Account AccountInfo
}

// Acquire blocks up to AcquireTimeout for the token, tears down any prior
// session, initializes the broker with the agent's credentials, and
// verifies the resulting login matches what was requested. On any failure
// it releases the token before returning so the caller never needs to
// call Release after an error.
func (g *Gate) Acquire(agentID string, creds Credentials, expectedLogin int64) (*AcquireResult, error) {
	select {
	case <-g.token:
	case <-time.After(AcquireTimeout):
		return nil, &Failure{Reason: ReasonLockTimeout, Agent: agentID}
	}

	g.mu.Lock()
	g.held = true
	g.heldBy = agentID
	g.mu.Unlock()

	release := func() {
		g.mu.Lock()
		g.held = false
		g.heldBy = ""
		g.mu.Unlock()
		g.token <- struct{}{}
	}

	g.adapter.Shutdown()
	time.Sleep(time.Second)

	if err := g.adapter.Initialize(creds); err != nil {
		release()
		return nil, &Failure{Reason: ReasonInitFailed, Agent: agentID, Message: err.Error()}
	}

	account, err := g.adapter.AccountInfo()
	if err != nil {
		release()
		return nil, &Failure{Reason: ReasonNoAccountInfo, Agent: agentID, Message: err.Error()}
	}
	if account.Login == 0 {
		release()
		return nil, &Failure{Reason: ReasonNoAccountInfo, Agent: agentID}
	}
	if expectedLogin != 0 && account.Login != expectedLogin {
		release()
		return nil, &Failure{
			Reason:  ReasonLoginMismatch,
			Agent:   agentID,
			Message: fmt.Sprintf("expected login %d, got %d", expectedLogin, account.Login),
		}
	}

	g.mu.Lock()
	g.activeLogin = account.Login
	g.mu.Unlock()

	g.logger.Info("broker gate acquired", zap.String("agent", agentID), zap.Int64("login", account.Login))
	return &AcquireResult{Account: account}, nil
}

// Release shuts the broker session down and releases the token.
// Idempotent: calling Release without a held token is a safe no-op.
func (g *Gate) Release() {
	g.mu.Lock()
	if !g.held {
		g.mu.Unlock()
		return
	}
	agent := g.heldBy
	g.held = false
	g.heldBy = ""
	g.mu.Unlock()

	g.adapter.Shutdown()
	g.logger.Info("broker gate released", zap.String("agent", agent))
	g.token <- struct{}{}
}

// Adapter returns the wrapped broker adapter. Callers must hold the gate
// before invoking any method on it.
func (g *Gate) Adapter() Adapter {
	return g.adapter
}
