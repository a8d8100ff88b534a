// Package ledgertest runs the ledger application in-process for tests. Chain
// satisfies the RPC surface used by the gateway, committing one block per
// broadcast transaction.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/weldledger/ledger/app"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	ctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// ErrChainDown is returned by every call while the chain is marked down.
var ErrChainDown = errors.New("ledgertest: chain unavailable")

type Chain struct {
	App *app.Application

	mu     sync.Mutex
	height int64
	down   bool
	txs    int
}

// New opens an in-memory Badger store and wraps it in a fresh application.
func New(t testing.TB) *Chain {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Chain{App: app.NewABCIApplication(db, cmtlog.NewNopLogger())}
}

// SetDown toggles simulated unavailability.
func (c *Chain) SetDown(down bool) {
	c.mu.Lock()
	c.down = down
	c.mu.Unlock()
}

// Broadcasts reports how many transactions reached the chain.
func (c *Chain) Broadcasts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txs
}

func (c *Chain) BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*ctypes.ResultBroadcastTxCommit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return nil, ErrChainDown
	}
	c.txs++

	check, err := c.App.CheckTx(ctx, &abcitypes.CheckTxRequest{Tx: tx})
	if err != nil {
		return nil, err
	}
	if check.Code != 0 {
		return &ctypes.ResultBroadcastTxCommit{CheckTx: *check, Hash: tx.Hash()}, nil
	}

	c.height++
	block, err := c.App.FinalizeBlock(ctx, &abcitypes.FinalizeBlockRequest{
		Txs:    [][]byte{tx},
		Height: c.height,
		Time:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if _, err := c.App.Commit(ctx, &abcitypes.CommitRequest{}); err != nil {
		return nil, err
	}
	return &ctypes.ResultBroadcastTxCommit{
		CheckTx:  *check,
		TxResult: *block.TxResults[0],
		Hash:     tx.Hash(),
		Height:   c.height,
	}, nil
}

func (c *Chain) ABCIQuery(ctx context.Context, path string, data cmtbytes.HexBytes) (*ctypes.ResultABCIQuery, error) {
	c.mu.Lock()
	down := c.down
	c.mu.Unlock()
	if down {
		return nil, ErrChainDown
	}
	resp, err := c.App.Query(ctx, &abcitypes.QueryRequest{Path: path, Data: data})
	if err != nil {
		return nil, err
	}
	return &ctypes.ResultABCIQuery{Response: *resp}, nil
}
