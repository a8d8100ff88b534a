// Package ledger defines the wire model shared by the ABCI application and
// the gateway: tables, transactions, queries and result codes.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// Table names one append-only list of encrypted entries.
type Table string

const (
	Products     Table = "Products"
	DesignData   Table = "DesignData"
	AnalysisData Table = "AnalysisData"
)

// Tables lists every table the application accepts.
var Tables = []Table{Products, DesignData, AnalysisData}

func (t Table) Valid() bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}

// Op is the mutation carried by a Tx.
type Op string

const (
	OpAppend      Op = "append"
	OpAppendBatch Op = "append_batch"
	OpUpdate      Op = "update"
	OpDelete      Op = "delete"
	OpClear       Op = "clear"
)

// Result codes returned in CheckTx, ExecTxResult and Query responses.
const (
	CodeOK        uint32 = 0
	CodeMalformed uint32 = 1
	CodeInvalid   uint32 = 2
	CodeUnknownID uint32 = 3
	CodeStorage   uint32 = 4
)

// Query paths served by the application.
const (
	PathGet      = "/get"
	PathRange    = "/range"
	PathCount    = "/count"
	PathSimulate = "/simulate"
	PathHistory  = "/history"
)

// MaxBatch bounds the number of entries in one append_batch.
const MaxBatch = 500

// Entry is the opaque tuple stored for every record.
type Entry struct {
	CipherHex string `json:"cipher_hex"`
	IvHex     string `json:"iv_hex"`
	Timestamp int64  `json:"timestamp"`
}

// Record is an entry addressed by its ledger assigned id.
type Record struct {
	TransactionID string `json:"transaction_id"`
	Entry
}

// Tx is the transaction body broadcast to the chain.
type Tx struct {
	Op            Op      `json:"op"`
	Table         Table   `json:"table"`
	Nonce         string  `json:"nonce"`
	TransactionID string  `json:"transaction_id,omitempty"`
	Entries       []Entry `json:"entries,omitempty"`
}

// GetQuery selects one record.
type GetQuery struct {
	Table         Table  `json:"table"`
	TransactionID string `json:"transaction_id"`
}

// RangeQuery selects live records [Start, End) in insertion order.
type RangeQuery struct {
	Table Table `json:"table"`
	Start int   `json:"start"`
	End   int   `json:"end"`
}

// CountQuery counts live records in a table.
type CountQuery struct {
	Table Table `json:"table"`
}

// HistoryQuery lists the newest applied transactions.
type HistoryQuery struct {
	Limit int `json:"limit"`
}

// Outcome is the Data payload of a successfully applied transaction.
type Outcome struct {
	TransactionIDs []string `json:"transaction_ids"`
	Cleared        int      `json:"cleared,omitempty"`
}

// CountResult is the body of a count query response.
type CountResult struct {
	Count int `json:"count"`
}

// HistoryEntry records one applied transaction.
type HistoryEntry struct {
	Height         int64     `json:"height"`
	Index          int       `json:"index"`
	TxHash         string    `json:"tx_hash"`
	Op             Op        `json:"op"`
	Table          Table     `json:"table"`
	TransactionIDs []string  `json:"transaction_ids"`
	Time           time.Time `json:"time"`
}

// DecodeTx parses raw transaction bytes.
func DecodeTx(raw []byte) (*Tx, error) {
	var tx Tx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("malformed transaction: %w", err)
	}
	return &tx, nil
}

// Validate checks the shape of a transaction without consulting state.
func (tx *Tx) Validate() error {
	if !tx.Table.Valid() {
		return fmt.Errorf("unknown table %q", tx.Table)
	}
	if tx.Nonce == "" {
		return fmt.Errorf("missing nonce")
	}
	switch tx.Op {
	case OpAppend, OpUpdate:
		if len(tx.Entries) != 1 {
			return fmt.Errorf("%s takes exactly one entry", tx.Op)
		}
	case OpAppendBatch:
		if len(tx.Entries) == 0 {
			return fmt.Errorf("empty batch")
		}
		if len(tx.Entries) > MaxBatch {
			return fmt.Errorf("batch of %d exceeds limit %d", len(tx.Entries), MaxBatch)
		}
	case OpDelete, OpClear:
		if len(tx.Entries) != 0 {
			return fmt.Errorf("%s takes no entries", tx.Op)
		}
	default:
		return fmt.Errorf("unknown op %q", tx.Op)
	}
	if (tx.Op == OpUpdate || tx.Op == OpDelete) && tx.TransactionID == "" {
		return fmt.Errorf("%s requires a transaction id", tx.Op)
	}
	for i, e := range tx.Entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks the fields of one entry.
func (e Entry) Validate() error {
	if e.CipherHex == "" || e.IvHex == "" {
		return fmt.Errorf("cipher and iv are required")
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}
	return nil
}
