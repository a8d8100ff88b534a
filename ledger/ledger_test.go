package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTxValidate(t *testing.T) {
	entry := Entry{CipherHex: "aa", IvHex: "bb", Timestamp: 1}
	cases := []struct {
		name string
		tx   Tx
		ok   bool
	}{
		{"append", Tx{Op: OpAppend, Table: Products, Nonce: "n", Entries: []Entry{entry}}, true},
		{"batch", Tx{Op: OpAppendBatch, Table: DesignData, Nonce: "n", Entries: []Entry{entry, entry}}, true},
		{"delete", Tx{Op: OpDelete, Table: AnalysisData, Nonce: "n", TransactionID: "abc"}, true},
		{"clear", Tx{Op: OpClear, Table: Products, Nonce: "n"}, true},
		{"unknown table", Tx{Op: OpAppend, Table: "Orders", Nonce: "n", Entries: []Entry{entry}}, false},
		{"no nonce", Tx{Op: OpAppend, Table: Products, Entries: []Entry{entry}}, false},
		{"empty batch", Tx{Op: OpAppendBatch, Table: Products, Nonce: "n"}, false},
		{"update without id", Tx{Op: OpUpdate, Table: Products, Nonce: "n", Entries: []Entry{entry}}, false},
		{"bad entry", Tx{Op: OpAppend, Table: Products, Nonce: "n", Entries: []Entry{{CipherHex: "aa"}}}, false},
		{"unknown op", Tx{Op: "merge", Table: Products, Nonce: "n"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tx.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDecodeTxRejectsGarbage(t *testing.T) {
	_, err := DecodeTx([]byte("{not json"))
	assert.Error(t, err)
}
