package recordstore_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/encryption"
	"github.com/ahmadzakiakmal/weldledger/ledger"
	"github.com/ahmadzakiakmal/weldledger/ledger/gateway"
	"github.com/ahmadzakiakmal/weldledger/ledger/ledgertest"
	"github.com/ahmadzakiakmal/weldledger/recordstore"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type product struct {
	ProductID       string  `json:"productId"`
	ProductName     string  `json:"productName"`
	TensileStrength float64 `json:"tensileStrength"`
}

func codec(t *testing.T, fill byte) *encryption.Codec {
	c, err := encryption.NewCodec(bytes.Repeat([]byte{fill}, encryption.KeySize))
	require.NoError(t, err)
	return c
}

func newStore(t *testing.T) (*recordstore.Store, *gateway.Client, *ledgertest.Chain) {
	chain := ledgertest.New(t)
	client := gateway.NewClient(chain, gateway.DefaultConfig(), cmtlog.NewNopLogger(), nil)
	return recordstore.New(codec(t, 3), client.Table(ledger.Products)), client, chain
}

func codeOf(t *testing.T, err error) apperr.Code {
	t.Helper()
	require.Error(t, err)
	return apperr.CodeOf(err)
}

func TestSaveAndFetchOne(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)

	id, err := store.SaveRecord(ctx, product{ProductID: "P-1", ProductName: "Alloy 7075", TensileStrength: 572})
	require.NoError(t, err)

	item, err := store.FetchOne(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, item.TransactionID)
	assert.NotZero(t, item.Timestamp)

	var got product
	require.NoError(t, item.Decode(&got))
	assert.Equal(t, "Alloy 7075", got.ProductName)

	_, err = store.FetchOne(ctx, "0000")
	assert.Equal(t, apperr.CodeNotFound, codeOf(t, err))
}

func TestEmptyTableIsNotAnError(t *testing.T) {
	store, _, _ := newStore(t)
	page, err := store.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 0, page.TotalPages)
	assert.Equal(t, 0, page.TotalItems)
}

func TestPagination(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)

	payloads := make([]any, 0, 12)
	for i := 0; i < 12; i++ {
		payloads = append(payloads, product{ProductID: string(rune('A' + i))})
	}
	ids, err := store.SaveRecords(ctx, payloads)
	require.NoError(t, err)
	require.Len(t, ids, 12)

	first, err := store.FetchPage(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, first.TotalPages)
	assert.Equal(t, 12, first.TotalItems)
	assert.Len(t, first.Items, 5)
	assert.True(t, first.HasNextPage)
	assert.False(t, first.HasPrevPage)
	assert.Equal(t, ids[0], first.Items[0].TransactionID)

	last, err := store.FetchPage(ctx, 3, 5)
	require.NoError(t, err)
	assert.Len(t, last.Items, 2)
	assert.False(t, last.HasNextPage)
	assert.Equal(t, ids[11], last.Items[1].TransactionID)

	for _, page := range []int{4, 5, 100} {
		_, err := store.FetchPage(ctx, page, 5)
		assert.Equal(t, apperr.CodePageOutOfRange, codeOf(t, err), "page %d", page)
	}

	defaults, err := store.FetchPage(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, defaults.CurrentPage)
	assert.Equal(t, 10, defaults.ItemsPerPage)
	assert.Len(t, defaults.Items, 10)
}

func TestUpdateAndIdempotentDelete(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)

	id, err := store.SaveRecord(ctx, product{ProductID: "P-1", ProductName: "before"})
	require.NoError(t, err)
	require.NoError(t, store.UpdateRecord(ctx, id, product{ProductID: "P-1", ProductName: "after"}))

	item, err := store.FetchOne(ctx, id)
	require.NoError(t, err)
	var got product
	require.NoError(t, item.Decode(&got))
	assert.Equal(t, "after", got.ProductName)

	assert.Equal(t, apperr.CodeNotFound, codeOf(t, store.UpdateRecord(ctx, "missing", got)))

	require.NoError(t, store.DeleteRecord(ctx, id))
	require.NoError(t, store.DeleteRecord(ctx, id))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWrongKeyIsDecryptErrorNotNotFound(t *testing.T) {
	ctx := context.Background()
	store, client, _ := newStore(t)
	id, err := store.SaveRecord(ctx, product{ProductID: "P-7", ProductName: "classified sheet"})
	require.NoError(t, err)

	foreign := recordstore.New(codec(t, 4), client.Table(ledger.Products))
	_, err = foreign.FetchOne(ctx, id)
	assert.Equal(t, apperr.CodeDecrypt, codeOf(t, err))
	assert.False(t, errors.Is(err, apperr.ErrNotFound))
	assert.NotContains(t, err.Error(), "classified")

	e, _ := apperr.As(err)
	assert.Equal(t, apperr.StageDecrypt, e.Stage)

	_, err = foreign.FetchPage(ctx, 1, 10)
	assert.Equal(t, apperr.CodeDecrypt, codeOf(t, err))
}

func TestLedgerOutageIsTagged(t *testing.T) {
	ctx := context.Background()
	store, _, chain := newStore(t)
	chain.SetDown(true)

	_, err := store.SaveRecord(ctx, product{ProductID: "P-1"})
	assert.Equal(t, apperr.CodeLedgerUnavailable, codeOf(t, err))
	e, _ := apperr.As(err)
	assert.Equal(t, apperr.StageLedgerWrite, e.Stage)

	_, err = store.FetchPage(ctx, 1, 10)
	assert.Equal(t, apperr.CodeLedgerUnavailable, codeOf(t, err))
	e, _ = apperr.As(err)
	assert.Equal(t, apperr.StageFetch, e.Stage)

	assert.Equal(t, apperr.CodeLedgerUnavailable, codeOf(t, store.DeleteRecord(ctx, "x")))
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newStore(t)
	_, err := store.SaveRecords(ctx, []any{product{ProductID: "1"}, product{ProductID: "2"}})
	require.NoError(t, err)

	n, err := store.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := store.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUnencodablePayload(t *testing.T) {
	store, _, chain := newStore(t)
	_, err := store.SaveRecord(context.Background(), map[string]any{"bad": make(chan int)})
	assert.Equal(t, apperr.CodeValidation, codeOf(t, err))
	assert.True(t, strings.Contains(err.Error(), apperr.StageEncode))
	assert.Equal(t, 0, chain.Broadcasts())
}

func TestOversizedBatchIsValidation(t *testing.T) {
	ctx := context.Background()
	store, _, chain := newStore(t)

	payloads := make([]any, ledger.MaxBatch+1)
	for i := range payloads {
		payloads[i] = product{ProductID: "P", ProductName: "bulk"}
	}
	_, err := store.SaveRecords(ctx, payloads)
	assert.Equal(t, apperr.CodeValidation, codeOf(t, err))
	assert.Zero(t, chain.Broadcasts())

	ids, err := store.SaveRecords(ctx, payloads[:ledger.MaxBatch])
	require.NoError(t, err)
	assert.Len(t, ids, ledger.MaxBatch)
}
