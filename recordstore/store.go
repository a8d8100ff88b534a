// Package recordstore keeps structured records on the ledger in encrypted
// form: encrypt then append, fetch then decrypt, paginate then decrypt the
// batch. Every failure is an *apperr.Error naming the stage that failed.
package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/encryption"
	"github.com/ahmadzakiakmal/weldledger/ledger"
	"github.com/ahmadzakiakmal/weldledger/ledger/gateway"
	"github.com/cockroachdb/errors"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// Ledger is one ledger table as seen by the store.
type Ledger interface {
	Name() ledger.Table
	Append(ctx context.Context, e ledger.Entry) (string, error)
	AppendBatch(ctx context.Context, entries []ledger.Entry) ([]string, error)
	Get(ctx context.Context, txID string) (ledger.Record, error)
	GetRange(ctx context.Context, start, end int) ([]ledger.Record, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, txID string, e ledger.Entry) error
	Delete(ctx context.Context, txID string) error
	Clear(ctx context.Context) (int, error)
}

// Item is one decrypted record.
type Item struct {
	TransactionID string          `json:"transactionId"`
	Timestamp     int64           `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// Decode unmarshals the record payload into v.
func (i Item) Decode(v any) error {
	if err := json.Unmarshal(i.Data, v); err != nil {
		return apperr.New(apperr.CodeDecrypt, "record payload has unexpected shape").WithStage(apperr.StageDecrypt)
	}
	return nil
}

// Page is one page of decrypted records.
type Page struct {
	CurrentPage  int    `json:"currentPage"`
	TotalPages   int    `json:"totalPages"`
	TotalItems   int    `json:"totalItems"`
	ItemsPerPage int    `json:"itemsPerPage"`
	HasNextPage  bool   `json:"hasNextPage"`
	HasPrevPage  bool   `json:"hasPrevPage"`
	Items        []Item `json:"items"`
}

// Store is the encrypted record store for one ledger table.
type Store struct {
	codec *encryption.Codec
	table Ledger
	now   func() time.Time
}

func New(codec *encryption.Codec, table Ledger) *Store {
	return &Store{codec: codec, table: table, now: time.Now}
}

// WithClock replaces the timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Table() ledger.Table { return s.table.Name() }

func (s *Store) seal(payload any) (ledger.Entry, error) {
	cipherHex, ivHex, err := s.codec.EncryptJSON(payload)
	if err != nil {
		return ledger.Entry{}, apperr.New(apperr.CodeValidation, "record payload could not be encoded").WithStage(apperr.StageEncode)
	}
	return ledger.Entry{CipherHex: cipherHex, IvHex: ivHex, Timestamp: s.now().Unix()}, nil
}

// SaveRecord encrypts payload and appends it, returning the transaction id.
// No compensation is attempted on failure.
func (s *Store) SaveRecord(ctx context.Context, payload any) (string, error) {
	e, err := s.seal(payload)
	if err != nil {
		return "", err
	}
	id, err := s.table.Append(ctx, e)
	if err != nil {
		return "", ledgerError(err, apperr.StageLedgerWrite, "storing record")
	}
	return id, nil
}

// SaveRecords encrypts every payload and appends them in one ledger
// transaction: either all are stored or none is.
func (s *Store) SaveRecords(ctx context.Context, payloads []any) ([]string, error) {
	if len(payloads) == 0 {
		return nil, apperr.Validation("no records to store")
	}
	if len(payloads) > ledger.MaxBatch {
		return nil, apperr.Validation("a batch holds at most %d records, got %d", ledger.MaxBatch, len(payloads))
	}
	entries := make([]ledger.Entry, len(payloads))
	for i, p := range payloads {
		e, err := s.seal(p)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}
	ids, err := s.table.AppendBatch(ctx, entries)
	if err != nil {
		return nil, ledgerError(err, apperr.StageLedgerWrite, "storing record batch")
	}
	return ids, nil
}

// FetchPage returns one 1-based page. An empty table yields an empty page;
// a page past the end is PAGE_OUT_OF_RANGE.
func (s *Store) FetchPage(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	total, err := s.table.Count(ctx)
	if err != nil {
		return nil, ledgerError(err, apperr.StageFetch, "counting records")
	}

	result := &Page{CurrentPage: page, TotalItems: total, ItemsPerPage: pageSize, Items: []Item{}}
	if total == 0 {
		return result, nil
	}
	result.TotalPages = (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start >= total {
		return nil, apperr.New(apperr.CodePageOutOfRange, "Page number exceeds available records").
			WithDetail(fmt.Sprintf("page %d of %d", page, result.TotalPages))
	}
	end := min(start+pageSize, total)

	records, err := s.table.GetRange(ctx, start, end)
	if err != nil {
		return nil, ledgerError(err, apperr.StageFetch, "fetching records")
	}
	items, err := s.open(records)
	if err != nil {
		return nil, err
	}
	result.Items = items
	result.HasNextPage = page < result.TotalPages
	result.HasPrevPage = page > 1
	return result, nil
}

// FetchAll decrypts every live record in insertion order.
func (s *Store) FetchAll(ctx context.Context) ([]Item, error) {
	total, err := s.table.Count(ctx)
	if err != nil {
		return nil, ledgerError(err, apperr.StageFetch, "counting records")
	}
	if total == 0 {
		return []Item{}, nil
	}
	records, err := s.table.GetRange(ctx, 0, total)
	if err != nil {
		return nil, ledgerError(err, apperr.StageFetch, "fetching records")
	}
	return s.open(records)
}

// FetchOne fetches and decrypts a record. Unknown ids are NOT_FOUND, records
// that fail to open are DECRYPT_ERROR.
func (s *Store) FetchOne(ctx context.Context, txID string) (*Item, error) {
	rec, err := s.table.Get(ctx, txID)
	if err != nil {
		if errors.Is(err, gateway.ErrUnknownTransaction) {
			return nil, apperr.NotFound("Record not found").WithStage(apperr.StageFetch)
		}
		return nil, ledgerError(err, apperr.StageFetch, "fetching record")
	}
	items, err := s.open([]ledger.Record{rec})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// UpdateRecord replaces the payload stored under txID.
func (s *Store) UpdateRecord(ctx context.Context, txID string, payload any) error {
	e, err := s.seal(payload)
	if err != nil {
		return err
	}
	if err := s.table.Update(ctx, txID, e); err != nil {
		if errors.Is(err, gateway.ErrUnknownTransaction) {
			return apperr.NotFound("Record not found").WithStage(apperr.StageLedgerWrite)
		}
		return ledgerError(err, apperr.StageLedgerWrite, "updating record")
	}
	return nil
}

// DeleteRecord removes txID. Deleting an absent id succeeds.
func (s *Store) DeleteRecord(ctx context.Context, txID string) error {
	if err := s.table.Delete(ctx, txID); err != nil {
		if errors.Is(err, gateway.ErrUnknownTransaction) {
			return nil
		}
		return ledgerError(err, apperr.StageLedgerWrite, "deleting record")
	}
	return nil
}

// DeleteAll clears the table and returns how many records were removed.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	n, err := s.table.Clear(ctx)
	if err != nil {
		return 0, ledgerError(err, apperr.StageLedgerWrite, "clearing records")
	}
	return n, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.table.Count(ctx)
	if err != nil {
		return 0, ledgerError(err, apperr.StageFetch, "counting records")
	}
	return n, nil
}

func (s *Store) open(records []ledger.Record) ([]Item, error) {
	items := make([]Item, 0, len(records))
	for _, rec := range records {
		plaintext, err := s.codec.Decrypt(rec.CipherHex, rec.IvHex)
		if err != nil || !json.Valid(plaintext) {
			return nil, apperr.New(apperr.CodeDecrypt, "Record could not be decrypted").
				WithStage(apperr.StageDecrypt).
				WithDetail("transaction " + rec.TransactionID)
		}
		items = append(items, Item{TransactionID: rec.TransactionID, Timestamp: rec.Timestamp, Data: plaintext})
	}
	return items, nil
}

// ledgerError tags a gateway failure with its stage, keeping the gateway's
// message as detail.
func ledgerError(err error, stage, message string) error {
	code := apperr.CodeLedgerRejected
	if errors.Is(err, gateway.ErrUnavailable) {
		code = apperr.CodeLedgerUnavailable
	}
	return apperr.Wrap(err, code, stage, message)
}
