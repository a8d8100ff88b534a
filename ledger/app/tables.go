package app

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ahmadzakiakmal/weldledger/ledger"
	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	rec/<table>/<id>      stored record
//	idx/<table>/<seq>     id, ordered by insertion
//	seq/<table>           next insertion sequence
//	cnt/<table>           live record count
//	hist/<height><index>  applied transaction
var errUnknownID = errors.New("unknown transaction id")

type storedRecord struct {
	ledger.Entry
	Seq uint64 `json:"seq"`
}

func recordKey(t ledger.Table, id string) []byte {
	return []byte("rec/" + string(t) + "/" + id)
}

func indexPrefix(t ledger.Table) []byte {
	return []byte("idx/" + string(t) + "/")
}

func indexKey(t ledger.Table, seq uint64) []byte {
	return append(indexPrefix(t), uint64Bytes(seq)...)
}

func seqKey(t ledger.Table) []byte   { return []byte("seq/" + string(t)) }
func countKey(t ledger.Table) []byte { return []byte("cnt/" + string(t)) }

var historyPrefix = []byte("hist/")

func historyKey(height int64, index int) []byte {
	key := append([]byte{}, historyPrefix...)
	key = append(key, uint64Bytes(uint64(height))...)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], uint32(index))
	return append(key, idx[:]...)
}

// readValue returns a copy of key's value, or nil when the key is absent.
func readValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func readUint64(txn *badger.Txn, key []byte) (uint64, error) {
	val, err := readValue(txn, key)
	if err != nil || len(val) < 8 {
		return 0, err
	}
	return binary.BigEndian.Uint64(val), nil
}

func getRecord(txn *badger.Txn, t ledger.Table, id string) (*storedRecord, error) {
	val, err := readValue(txn, recordKey(t, id))
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, fmt.Errorf("%w %s", errUnknownID, id)
	}
	var rec storedRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("corrupt record %s: %w", id, err)
	}
	return &rec, nil
}

func recordExists(txn *badger.Txn, t ledger.Table, id string) (bool, error) {
	_, err := txn.Get(recordKey(t, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func writeRecord(txn *badger.Txn, t ledger.Table, id string, rec storedRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(recordKey(t, id), val)
}

func adjustCount(txn *badger.Txn, t ledger.Table, delta int64) error {
	n, err := readUint64(txn, countKey(t))
	if err != nil {
		return err
	}
	next := int64(n) + delta
	if next < 0 {
		next = 0
	}
	return txn.Set(countKey(t), uint64Bytes(uint64(next)))
}

// putRecord indexes a new record at the end of the table.
func putRecord(txn *badger.Txn, t ledger.Table, id string, e ledger.Entry) error {
	seq, err := readUint64(txn, seqKey(t))
	if err != nil {
		return err
	}
	if err := writeRecord(txn, t, id, storedRecord{Entry: e, Seq: seq}); err != nil {
		return err
	}
	if err := txn.Set(indexKey(t, seq), []byte(id)); err != nil {
		return err
	}
	if err := txn.Set(seqKey(t), uint64Bytes(seq+1)); err != nil {
		return err
	}
	return adjustCount(txn, t, 1)
}

// replaceRecord overwrites an existing record in place, keeping its position.
func replaceRecord(txn *badger.Txn, t ledger.Table, id string, e ledger.Entry) error {
	rec, err := getRecord(txn, t, id)
	if err != nil {
		return err
	}
	rec.Entry = e
	return writeRecord(txn, t, id, *rec)
}

func deleteRecord(txn *badger.Txn, t ledger.Table, id string) error {
	rec, err := getRecord(txn, t, id)
	if err != nil {
		return err
	}
	if err := txn.Delete(recordKey(t, id)); err != nil {
		return err
	}
	if err := txn.Delete(indexKey(t, rec.Seq)); err != nil {
		return err
	}
	return adjustCount(txn, t, -1)
}

func countRecords(txn *badger.Txn, t ledger.Table) (int, error) {
	n, err := readUint64(txn, countKey(t))
	return int(n), err
}

// rangeRecords returns live records [start, end) in insertion order.
func rangeRecords(txn *badger.Txn, t ledger.Table, start, end int) ([]ledger.Record, error) {
	ids, err := indexedIDs(txn, t, start, end)
	if err != nil {
		return nil, err
	}
	records := make([]ledger.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := getRecord(txn, t, id)
		if err != nil {
			return nil, err
		}
		records = append(records, ledger.Record{TransactionID: id, Entry: rec.Entry})
	}
	return records, nil
}

// indexedIDs walks the insertion index; end < 0 means no upper bound.
func indexedIDs(txn *badger.Txn, t ledger.Table, start, end int) ([]string, error) {
	prefix := indexPrefix(t)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var ids []string
	pos := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if end >= 0 && pos >= end {
			break
		}
		if pos >= start {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return nil, err
			}
			ids = append(ids, string(val))
		}
		pos++
	}
	return ids, nil
}

func clearTable(txn *badger.Txn, t ledger.Table) (int, error) {
	ids, err := indexedIDs(txn, t, 0, -1)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := deleteRecord(txn, t, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func appendHistory(txn *badger.Txn, entry ledger.HistoryEntry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return txn.Set(historyKey(entry.Height, entry.Index), val)
}

// readHistory returns up to limit entries, newest first.
func readHistory(txn *badger.Txn, limit int) ([]ledger.HistoryEntry, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte{}, historyPrefix...), 0xFF)
	entries := make([]ledger.HistoryEntry, 0, limit)
	for it.Seek(seek); it.ValidForPrefix(historyPrefix) && len(entries) < limit; it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var entry ledger.HistoryEntry
		if err := json.Unmarshal(val, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
