package app

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahmadzakiakmal/weldledger/ledger"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"
)

const appName = "weldledger"

var (
	keyLastHeight  = []byte("last_block_height")
	keyLastAppHash = []byte("last_block_app_hash")
)

// Application implements the ABCI interface for the record ledger. Each
// block's writes go through one Badger transaction opened in FinalizeBlock
// and committed in Commit.
type Application struct {
	badgerDB     *badger.DB
	onGoingBlock *badger.Txn
	nodeID       string
	mu           sync.Mutex
	logger       cmtlog.Logger
}

// NewABCIApplication creates the ledger application on top of badgerDB.
func NewABCIApplication(badgerDB *badger.DB, logger cmtlog.Logger) *Application {
	return &Application{
		badgerDB: badgerDB,
		logger:   logger,
	}
}

func (app *Application) SetNodeID(id string) {
	app.nodeID = id
}

func (app *Application) NodeID() string {
	return app.nodeID
}

// Info implements the ABCI Info method
func (app *Application) Info(_ context.Context, _ *abcitypes.InfoRequest) (*abcitypes.InfoResponse, error) {
	var (
		lastBlockHeight  int64
		lastBlockAppHash []byte
	)
	err := app.badgerDB.View(func(txn *badger.Txn) error {
		height, err := readValue(txn, keyLastHeight)
		if err != nil || height == nil {
			return err
		}
		lastBlockHeight = int64(binary.BigEndian.Uint64(height))
		lastBlockAppHash, err = readValue(txn, keyLastAppHash)
		return err
	})
	if err != nil {
		app.logger.Error("Reading last block info", "err", err)
	}

	return &abcitypes.InfoResponse{
		Data:             appName,
		LastBlockHeight:  lastBlockHeight,
		LastBlockAppHash: lastBlockAppHash,
	}, nil
}

// Query implements the ABCI Query method
func (app *Application) Query(_ context.Context, req *abcitypes.QueryRequest) (*abcitypes.QueryResponse, error) {
	var (
		value []byte
		err   error
	)
	switch req.Path {
	case ledger.PathGet:
		value, err = app.queryGet(req.Data)
	case ledger.PathRange:
		value, err = app.queryRange(req.Data)
	case ledger.PathCount:
		value, err = app.queryCount(req.Data)
	case ledger.PathSimulate:
		value, err = app.simulate(req.Data)
	case ledger.PathHistory:
		value, err = app.queryHistory(req.Data)
	default:
		return &abcitypes.QueryResponse{Code: ledger.CodeMalformed, Log: fmt.Sprintf("unknown query path %q", req.Path)}, nil
	}
	if err != nil {
		return &abcitypes.QueryResponse{Code: codeFor(err), Log: err.Error()}, nil
	}
	return &abcitypes.QueryResponse{Code: ledger.CodeOK, Value: value, Log: "ok"}, nil
}

func (app *Application) queryGet(data []byte) ([]byte, error) {
	var q ledger.GetQuery
	if err := decodeQuery(data, &q); err != nil {
		return nil, err
	}
	if !q.Table.Valid() || q.TransactionID == "" {
		return nil, invalidf("get requires a known table and a transaction id")
	}
	var rec *ledger.Record
	err := app.badgerDB.View(func(txn *badger.Txn) error {
		stored, err := getRecord(txn, q.Table, q.TransactionID)
		if err != nil {
			return err
		}
		rec = &ledger.Record{TransactionID: q.TransactionID, Entry: stored.Entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

func (app *Application) queryRange(data []byte) ([]byte, error) {
	var q ledger.RangeQuery
	if err := decodeQuery(data, &q); err != nil {
		return nil, err
	}
	if !q.Table.Valid() || q.Start < 0 || q.End < q.Start {
		return nil, invalidf("range requires a known table and 0 <= start <= end")
	}
	var records []ledger.Record
	err := app.badgerDB.View(func(txn *badger.Txn) error {
		var err error
		records, err = rangeRecords(txn, q.Table, q.Start, q.End)
		return err
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(records)
}

func (app *Application) queryCount(data []byte) ([]byte, error) {
	var q ledger.CountQuery
	if err := decodeQuery(data, &q); err != nil {
		return nil, err
	}
	if !q.Table.Valid() {
		return nil, invalidf("unknown table %q", q.Table)
	}
	var n int
	err := app.badgerDB.View(func(txn *badger.Txn) error {
		var err error
		n, err = countRecords(txn, q.Table)
		return err
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(ledger.CountResult{Count: n})
}

// simulate dry-runs a transaction against committed state without writing.
func (app *Application) simulate(data []byte) ([]byte, error) {
	tx, err := ledger.DecodeTx(data)
	if err != nil {
		return nil, malformed(err)
	}
	if err := tx.Validate(); err != nil {
		return nil, invalidf("%v", err)
	}
	err = app.badgerDB.View(func(txn *badger.Txn) error {
		if tx.Op == ledger.OpUpdate || tx.Op == ledger.OpDelete {
			_, err := getRecord(txn, tx.Table, tx.TransactionID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(ledger.CountResult{Count: len(tx.Entries)})
}

func (app *Application) queryHistory(data []byte) ([]byte, error) {
	q := ledger.HistoryQuery{Limit: 50}
	if len(data) > 0 {
		if err := decodeQuery(data, &q); err != nil {
			return nil, err
		}
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	var entries []ledger.HistoryEntry
	err := app.badgerDB.View(func(txn *badger.Txn) error {
		var err error
		entries, err = readHistory(txn, q.Limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(entries)
}

// CheckTx implements the ABCI CheckTx method
func (app *Application) CheckTx(_ context.Context, check *abcitypes.CheckTxRequest) (*abcitypes.CheckTxResponse, error) {
	tx, err := ledger.DecodeTx(check.Tx)
	if err != nil {
		return &abcitypes.CheckTxResponse{Code: ledger.CodeMalformed, Log: err.Error()}, nil
	}
	if err := tx.Validate(); err != nil {
		return &abcitypes.CheckTxResponse{Code: ledger.CodeInvalid, Log: err.Error()}, nil
	}
	return &abcitypes.CheckTxResponse{Code: ledger.CodeOK}, nil
}

// InitChain implements the ABCI InitChain method
func (app *Application) InitChain(_ context.Context, _ *abcitypes.InitChainRequest) (*abcitypes.InitChainResponse, error) {
	return &abcitypes.InitChainResponse{}, nil
}

// PrepareProposal implements the ABCI PrepareProposal method
func (app *Application) PrepareProposal(_ context.Context, proposal *abcitypes.PrepareProposalRequest) (*abcitypes.PrepareProposalResponse, error) {
	return &abcitypes.PrepareProposalResponse{Txs: proposal.Txs}, nil
}

// ProcessProposal implements the ABCI ProcessProposal method
func (app *Application) ProcessProposal(_ context.Context, proposal *abcitypes.ProcessProposalRequest) (*abcitypes.ProcessProposalResponse, error) {
	for i, raw := range proposal.Txs {
		tx, err := ledger.DecodeTx(raw)
		if err == nil {
			err = tx.Validate()
		}
		if err != nil {
			app.logger.Error("Rejecting proposal", "index", i, "err", err)
			return &abcitypes.ProcessProposalResponse{Status: abcitypes.PROCESS_PROPOSAL_STATUS_REJECT}, nil
		}
	}
	return &abcitypes.ProcessProposalResponse{Status: abcitypes.PROCESS_PROPOSAL_STATUS_ACCEPT}, nil
}

// FinalizeBlock implements the ABCI FinalizeBlock method
func (app *Application) FinalizeBlock(_ context.Context, req *abcitypes.FinalizeBlockRequest) (*abcitypes.FinalizeBlockResponse, error) {
	txResults := make([]*abcitypes.ExecTxResult, len(req.Txs))

	app.mu.Lock()
	defer app.mu.Unlock()

	app.onGoingBlock = app.badgerDB.NewTransaction(true)

	for i, raw := range req.Txs {
		txResults[i] = app.deliver(req.Height, i, req.Time, raw)
	}

	prevHash, err := readValue(app.onGoingBlock, keyLastAppHash)
	if err != nil {
		app.logger.Error("Reading previous app hash", "err", err)
	}
	appHash := calculateAppHash(prevHash, txResults)

	if err := app.onGoingBlock.Set(keyLastHeight, uint64Bytes(uint64(req.Height))); err != nil {
		app.logger.Error("Storing block height", "err", err)
	}
	if err := app.onGoingBlock.Set(keyLastAppHash, appHash); err != nil {
		app.logger.Error("Storing app hash", "err", err)
	}

	return &abcitypes.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   appHash,
	}, nil
}

// deliver applies one transaction to the ongoing block.
func (app *Application) deliver(height int64, index int, blockTime time.Time, raw []byte) *abcitypes.ExecTxResult {
	tx, err := ledger.DecodeTx(raw)
	if err != nil {
		return &abcitypes.ExecTxResult{Code: ledger.CodeMalformed, Log: err.Error()}
	}
	if err := tx.Validate(); err != nil {
		return &abcitypes.ExecTxResult{Code: ledger.CodeInvalid, Log: err.Error()}
	}

	txn := app.onGoingBlock
	outcome := ledger.Outcome{}

	switch tx.Op {
	case ledger.OpAppend, ledger.OpAppendBatch:
		ids := make([]string, len(tx.Entries))
		for j := range tx.Entries {
			ids[j] = transactionID(raw, j)
			exists, err := recordExists(txn, tx.Table, ids[j])
			if err != nil {
				return storageFailure(err)
			}
			if exists {
				return &abcitypes.ExecTxResult{Code: ledger.CodeInvalid, Log: "transaction already applied"}
			}
		}
		for j, e := range tx.Entries {
			if err := putRecord(txn, tx.Table, ids[j], e); err != nil {
				return storageFailure(err)
			}
		}
		outcome.TransactionIDs = ids
	case ledger.OpUpdate:
		if err := replaceRecord(txn, tx.Table, tx.TransactionID, tx.Entries[0]); err != nil {
			return resultFor(err)
		}
		outcome.TransactionIDs = []string{tx.TransactionID}
	case ledger.OpDelete:
		if err := deleteRecord(txn, tx.Table, tx.TransactionID); err != nil {
			return resultFor(err)
		}
		outcome.TransactionIDs = []string{tx.TransactionID}
	case ledger.OpClear:
		n, err := clearTable(txn, tx.Table)
		if err != nil {
			return storageFailure(err)
		}
		outcome.Cleared = n
	}

	hash := sha256.Sum256(raw)
	entry := ledger.HistoryEntry{
		Height:         height,
		Index:          index,
		TxHash:         fmt.Sprintf("%X", hash[:]),
		Op:             tx.Op,
		Table:          tx.Table,
		TransactionIDs: outcome.TransactionIDs,
		Time:           blockTime,
	}
	if err := appendHistory(txn, entry); err != nil {
		app.logger.Error("Storing history", "height", height, "index", index, "err", err)
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return storageFailure(err)
	}

	attrs := []abcitypes.EventAttribute{
		{Key: "table", Value: string(tx.Table), Index: true},
		{Key: "op", Value: string(tx.Op), Index: true},
	}
	for _, id := range outcome.TransactionIDs {
		attrs = append(attrs, abcitypes.EventAttribute{Key: "transaction_id", Value: id, Index: true})
	}

	app.logger.Debug("Applied ledger tx", "table", tx.Table, "op", tx.Op, "ids", len(outcome.TransactionIDs))

	return &abcitypes.ExecTxResult{
		Code:   ledger.CodeOK,
		Data:   data,
		Log:    "applied",
		Events: []abcitypes.Event{{Type: "ledger_" + string(tx.Op), Attributes: attrs}},
	}
}

// Commit implements the ABCI Commit method
func (app *Application) Commit(_ context.Context, _ *abcitypes.CommitRequest) (*abcitypes.CommitResponse, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.onGoingBlock == nil {
		return &abcitypes.CommitResponse{}, nil
	}
	if err := app.onGoingBlock.Commit(); err != nil {
		app.logger.Error("Committing block", "err", err)
	}
	app.onGoingBlock = nil
	return &abcitypes.CommitResponse{}, nil
}

func (app *Application) ListSnapshots(_ context.Context, _ *abcitypes.ListSnapshotsRequest) (*abcitypes.ListSnapshotsResponse, error) {
	return &abcitypes.ListSnapshotsResponse{}, nil
}

func (app *Application) OfferSnapshot(_ context.Context, _ *abcitypes.OfferSnapshotRequest) (*abcitypes.OfferSnapshotResponse, error) {
	return &abcitypes.OfferSnapshotResponse{}, nil
}

func (app *Application) LoadSnapshotChunk(_ context.Context, _ *abcitypes.LoadSnapshotChunkRequest) (*abcitypes.LoadSnapshotChunkResponse, error) {
	return &abcitypes.LoadSnapshotChunkResponse{}, nil
}

func (app *Application) ApplySnapshotChunk(_ context.Context, _ *abcitypes.ApplySnapshotChunkRequest) (*abcitypes.ApplySnapshotChunkResponse, error) {
	return &abcitypes.ApplySnapshotChunkResponse{
		Result: abcitypes.APPLY_SNAPSHOT_CHUNK_RESULT_ACCEPT,
	}, nil
}

func (app *Application) ExtendVote(_ context.Context, _ *abcitypes.ExtendVoteRequest) (*abcitypes.ExtendVoteResponse, error) {
	return &abcitypes.ExtendVoteResponse{}, nil
}

func (app *Application) VerifyVoteExtension(_ context.Context, _ *abcitypes.VerifyVoteExtensionRequest) (*abcitypes.VerifyVoteExtensionResponse, error) {
	return &abcitypes.VerifyVoteExtensionResponse{}, nil
}

// transactionID derives the ledger id of the index-th entry of a raw tx.
func transactionID(raw []byte, index int) string {
	h := sha256.New()
	h.Write(raw)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], uint32(index))
	h.Write(idx[:])
	return fmt.Sprintf("%x", h.Sum(nil))
}

// calculateAppHash chains the previous app hash with this block's results.
func calculateAppHash(prev []byte, txResults []*abcitypes.ExecTxResult) []byte {
	h := sha256.New()
	h.Write(prev)
	for _, result := range txResults {
		var code [4]byte
		binary.BigEndian.PutUint32(code[:], result.Code)
		h.Write(code[:])
		h.Write(result.Data)
	}
	return h.Sum(nil)
}

type queryError struct {
	code uint32
	msg  string
}

func (e *queryError) Error() string { return e.msg }

func invalidf(format string, args ...any) error {
	return &queryError{code: ledger.CodeInvalid, msg: fmt.Sprintf(format, args...)}
}

func malformed(err error) error {
	return &queryError{code: ledger.CodeMalformed, msg: err.Error()}
}

func decodeQuery(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return malformed(fmt.Errorf("malformed query: %w", err))
	}
	return nil
}

func codeFor(err error) uint32 {
	var qe *queryError
	switch {
	case errors.As(err, &qe):
		return qe.code
	case errors.Is(err, errUnknownID):
		return ledger.CodeUnknownID
	default:
		return ledger.CodeStorage
	}
}

func resultFor(err error) *abcitypes.ExecTxResult {
	return &abcitypes.ExecTxResult{Code: codeFor(err), Log: err.Error()}
}

func storageFailure(err error) *abcitypes.ExecTxResult {
	return &abcitypes.ExecTxResult{Code: ledger.CodeStorage, Log: fmt.Sprintf("storage error: %v", err)}
}
