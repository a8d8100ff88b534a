// Package gateway is the client side of the record ledger. It turns table
// operations into CometBFT transactions and ABCI queries.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ahmadzakiakmal/weldledger/ledger"
	"github.com/cockroachdb/errors"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	ctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/google/uuid"
)

// Failure tags. Every error returned by this package matches exactly one of
// ErrUnavailable or ErrRejected; ErrUnknownTransaction also matches
// ErrRejected.
var (
	ErrUnavailable        = errors.New("ledger unavailable")
	ErrRejected           = errors.New("ledger rejected request")
	ErrUnknownTransaction = errors.New("unknown ledger transaction")
)

// RPC is the subset of the CometBFT client used here. Both the in-process
// local client and the HTTP client satisfy it.
type RPC interface {
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*ctypes.ResultBroadcastTxCommit, error)
	ABCIQuery(ctx context.Context, path string, data cmtbytes.HexBytes) (*ctypes.ResultABCIQuery, error)
}

// Config tunes the client.
type Config struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{WriteTimeout: 30 * time.Second, ReadTimeout: 10 * time.Second}
}

// Client submits and queries ledger operations.
type Client struct {
	rpc     RPC
	config  Config
	logger  cmtlog.Logger
	metrics *Metrics
}

func NewClient(rpc RPC, config Config, logger cmtlog.Logger, metrics *Metrics) *Client {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Client{rpc: rpc, config: config, logger: logger.With("module", "ledger-gateway"), metrics: metrics}
}

// Table returns the operations of one ledger table.
func (c *Client) Table(name ledger.Table) *Table {
	return &Table{client: c, name: name}
}

// History lists the newest applied ledger transactions.
func (c *Client) History(ctx context.Context, limit int) ([]ledger.HistoryEntry, error) {
	var entries []ledger.HistoryEntry
	err := c.query(ctx, "", "history", ledger.PathHistory, ledger.HistoryQuery{Limit: limit}, &entries)
	return entries, err
}

// broadcast submits tx and waits for it to be committed in a block.
func (c *Client) broadcast(ctx context.Context, tx ledger.Tx) (out ledger.Outcome, err error) {
	start := time.Now()
	defer func() { c.metrics.observe(tx.Table, string(tx.Op), start, err) }()

	tx.Nonce = uuid.NewString()
	payload, err := json.Marshal(tx)
	if err != nil {
		return out, errors.Mark(errors.Wrap(err, "encoding ledger transaction"), ErrRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
	defer cancel()

	done := make(chan struct {
		result *ctypes.ResultBroadcastTxCommit
		err    error
	}, 1)
	go func() {
		result, err := c.rpc.BroadcastTxCommit(ctx, cmttypes.Tx(payload))
		done <- struct {
			result *ctypes.ResultBroadcastTxCommit
			err    error
		}{result, err}
	}()

	select {
	case <-ctx.Done():
		return out, errors.Mark(errors.Wrapf(ctx.Err(), "%s on %s timed out", tx.Op, tx.Table), ErrUnavailable)
	case res := <-done:
		if res.err != nil {
			return out, errors.Mark(errors.Wrapf(res.err, "%s on %s", tx.Op, tx.Table), ErrUnavailable)
		}
		if res.result.CheckTx.Code != ledger.CodeOK {
			return out, rejection(res.result.CheckTx.Code, res.result.CheckTx.Log)
		}
		if res.result.TxResult.Code != ledger.CodeOK {
			return out, rejection(res.result.TxResult.Code, res.result.TxResult.Log)
		}
		if err := json.Unmarshal(res.result.TxResult.Data, &out); err != nil {
			return out, errors.Mark(errors.Wrap(err, "decoding ledger result"), ErrRejected)
		}
		c.logger.Debug("Ledger tx committed", "table", tx.Table, "op", tx.Op, "height", res.result.Height, "hash", res.result.Hash.String())
		return out, nil
	}
}

// query runs an ABCI query and decodes its value into out.
func (c *Client) query(ctx context.Context, table ledger.Table, op, path string, q any, out any) (err error) {
	start := time.Now()
	defer func() { c.metrics.observe(table, op, start, err) }()

	data, err := json.Marshal(q)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "encoding ledger query"), ErrRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.ReadTimeout)
	defer cancel()

	res, err := c.rpc.ABCIQuery(ctx, path, data)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "query %s", path), ErrUnavailable)
	}
	if res.Response.Code != ledger.CodeOK {
		return rejection(res.Response.Code, res.Response.Log)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.Response.Value, out); err != nil {
		return errors.Mark(errors.Wrapf(err, "decoding %s response", path), ErrRejected)
	}
	return nil
}

func rejection(code uint32, log string) error {
	err := errors.Newf("code %d: %s", code, log)
	if code == ledger.CodeUnknownID {
		return errors.Mark(errors.Mark(err, ErrUnknownTransaction), ErrRejected)
	}
	return errors.Mark(err, ErrRejected)
}

// Table is one ledger table.
type Table struct {
	client *Client
	name   ledger.Table
}

func (t *Table) Name() ledger.Table { return t.name }

// Append stores one entry and returns its transaction id. Appends are not
// idempotent and are never retried here.
func (t *Table) Append(ctx context.Context, e ledger.Entry) (string, error) {
	out, err := t.client.broadcast(ctx, ledger.Tx{Op: ledger.OpAppend, Table: t.name, Entries: []ledger.Entry{e}})
	if err != nil {
		return "", err
	}
	if len(out.TransactionIDs) != 1 {
		return "", errors.Mark(errors.Newf("expected one transaction id, got %d", len(out.TransactionIDs)), ErrRejected)
	}
	return out.TransactionIDs[0], nil
}

// AppendBatch stores all entries in a single transaction. The batch is
// dry-run against the ledger first so an invalid batch fails before anything
// is submitted.
func (t *Table) AppendBatch(ctx context.Context, entries []ledger.Entry) ([]string, error) {
	tx := ledger.Tx{Op: ledger.OpAppendBatch, Table: t.name, Nonce: "simulate", Entries: entries}
	if err := t.client.query(ctx, t.name, "simulate", ledger.PathSimulate, tx, nil); err != nil {
		return nil, err
	}
	out, err := t.client.broadcast(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(out.TransactionIDs) != len(entries) {
		return nil, errors.Mark(errors.Newf("expected %d transaction ids, got %d", len(entries), len(out.TransactionIDs)), ErrRejected)
	}
	return out.TransactionIDs, nil
}

func (t *Table) Get(ctx context.Context, txID string) (ledger.Record, error) {
	var rec ledger.Record
	err := t.client.query(ctx, t.name, "get", ledger.PathGet, ledger.GetQuery{Table: t.name, TransactionID: txID}, &rec)
	return rec, err
}

// GetRange returns live records [start, end) in insertion order.
func (t *Table) GetRange(ctx context.Context, start, end int) ([]ledger.Record, error) {
	var records []ledger.Record
	err := t.client.query(ctx, t.name, "range", ledger.PathRange, ledger.RangeQuery{Table: t.name, Start: start, End: end}, &records)
	return records, err
}

func (t *Table) Count(ctx context.Context) (int, error) {
	var res ledger.CountResult
	err := t.client.query(ctx, t.name, "count", ledger.PathCount, ledger.CountQuery{Table: t.name}, &res)
	return res.Count, err
}

// Update overwrites the entry stored under txID.
func (t *Table) Update(ctx context.Context, txID string, e ledger.Entry) error {
	_, err := t.client.broadcast(ctx, ledger.Tx{Op: ledger.OpUpdate, Table: t.name, TransactionID: txID, Entries: []ledger.Entry{e}})
	return err
}

func (t *Table) Delete(ctx context.Context, txID string) error {
	_, err := t.client.broadcast(ctx, ledger.Tx{Op: ledger.OpDelete, Table: t.name, TransactionID: txID})
	return err
}

// Clear deletes every record in the table and reports how many were removed.
func (t *Table) Clear(ctx context.Context) (int, error) {
	out, err := t.client.broadcast(ctx, ledger.Tx{Op: ledger.OpClear, Table: t.name})
	return out.Cleared, err
}
