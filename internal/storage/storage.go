// Package storage keeps a journal of executed opens and closes in BoltDB so
// that the status report and operators can see what the engine did across
// restarts.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	tradesBucket = "trades"
	dbFile       = "trade-journal.db"
)

const (
	ActionOpen  = "open"
	ActionClose = "close"
)

// TradeRecord is one journal entry. Close entries carry the PnL fields.
type TradeRecord struct {
	OrderLinkID string    `json:"order_link_id"`
	Symbol      string    `json:"symbol"`
	Action      string    `json:"action"`
	Side        string    `json:"side"`
	Qty         float64   `json:"qty"`
	Price       float64   `json:"price"`
	Leverage    int       `json:"leverage,omitempty"`
	Fee         float64   `json:"fee"`
	PnLPercent  float64   `json:"pnl_percent,omitempty"`
	Net         float64   `json:"net,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Counts summarises the journal.
type Counts struct {
	Opened int
	Closed int
	NetPnL float64 // sum of close Net values
}

type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the journal inside dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(tradesBucket)); err != nil {
			return fmt.Errorf("create trades bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func recordKey(symbol string, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s_%020d", symbol, ts.UnixNano()))
}

// Append stores rec under "symbol_timestamp". A zero Timestamp is set to now.
func (s *Store) Append(rec TradeRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tradesBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal trade record: %w", err)
		}

		key := recordKey(rec.Symbol, rec.Timestamp)
		// two records in the same nanosecond keep both entries
		for b.Get(key) != nil {
			rec.Timestamp = rec.Timestamp.Add(time.Nanosecond)
			key = recordKey(rec.Symbol, rec.Timestamp)
		}
		return b.Put(key, data)
	})
}

// Trades returns records for symbol with timestamps in [start, end], oldest
// first.
func (s *Store) Trades(symbol string, start, end time.Time) ([]TradeRecord, error) {
	var records []TradeRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(tradesBucket)).Cursor()

		prefix := []byte(symbol + "_")
		endKey := recordKey(symbol, end)

		for k, v := c.Seek(recordKey(symbol, start)); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			var rec TradeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

// Counts scans the whole journal.
func (s *Store) Counts() (Counts, error) {
	var out Counts
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(tradesBucket)).ForEach(func(_, v []byte) error {
			var rec TradeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			switch rec.Action {
			case ActionOpen:
				out.Opened++
			case ActionClose:
				out.Closed++
				out.NetPnL += rec.Net
			}
			return nil
		})
	})
	return out, err
}
