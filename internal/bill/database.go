package bill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	billsBucket  = "bills"
	byTimeBucket = "bills_by_time"
	byHashBucket = "bills_by_hash"
)

var (
	// ErrBillNotFound is returned when no bill has the requested id
	ErrBillNotFound = errors.New("bill not found")

	// ErrDuplicateBill is returned by Insert when a bill with the same
	// transaction time or file hash already exists for the user
	ErrDuplicateBill = errors.New("bill already exists")
)

// DB is the storage collaborator for bills
type DB interface {
	Lookup

	// FindByHash returns the id of the bill stored from a document with this hash
	FindByHash(ctx context.Context, userID, hash string) (string, bool, error)

	// Insert stores a bill and its expenses atomically and returns its id
	Insert(ctx context.Context, bill *Bill) (string, error)

	// GetBill retrieves a bill by ID
	GetBill(ctx context.Context, id string) (*Bill, error)

	// ListBills returns the user's bills, newest first. limit <= 0 means all.
	ListBills(ctx context.Context, userID string, limit int) ([]*Bill, error)

	// ListHashes returns the file hashes of all the user's bills
	ListHashes(ctx context.Context, userID string) ([]string, error)

	// DeleteBill removes a bill and its index entries
	DeleteBill(ctx context.Context, id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{billsBucket, byTimeBucket, byHashBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func timeKey(userID string, ts time.Time) []byte {
	return []byte(userID + "\x00" + ts.UTC().Format(time.RFC3339Nano))
}

func hashKey(userID, hash string) []byte {
	return []byte(userID + "\x00" + hash)
}

func (b *BoltDB) findIndex(bucket string, key []byte) (string, bool, error) {
	var id string
	err := b.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(bucket)).Get(key); v != nil {
			id = string(v)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return id, id != "", nil
}

// FindByTimestamp returns the id of the user's bill with this transaction time
func (b *BoltDB) FindByTimestamp(_ context.Context, userID string, ts time.Time) (string, bool, error) {
	return b.findIndex(byTimeBucket, timeKey(userID, ts))
}

// FindByHash returns the id of the user's bill stored from a document with this hash
func (b *BoltDB) FindByHash(_ context.Context, userID, hash string) (string, bool, error) {
	return b.findIndex(byHashBucket, hashKey(userID, hash))
}

// Insert stores the bill and both index entries in one transaction
func (b *BoltDB) Insert(_ context.Context, bill *Bill) (string, error) {
	if bill.ID == "" {
		return "", errors.New("bill id is required")
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bills := tx.Bucket([]byte(billsBucket))
		byTime := tx.Bucket([]byte(byTimeBucket))
		byHash := tx.Bucket([]byte(byHashBucket))

		tk := timeKey(bill.UserID, bill.DateTime)
		hk := hashKey(bill.UserID, bill.FileHash)
		if byTime.Get(tk) != nil || byHash.Get(hk) != nil {
			return ErrDuplicateBill
		}
		if bills.Get([]byte(bill.ID)) != nil {
			return fmt.Errorf("bill id %s already in use", bill.ID)
		}

		data, err := json.Marshal(bill)
		if err != nil {
			return fmt.Errorf("marshaling bill: %w", err)
		}
		if err := bills.Put([]byte(bill.ID), data); err != nil {
			return err
		}
		if err := byTime.Put(tk, []byte(bill.ID)); err != nil {
			return err
		}
		return byHash.Put(hk, []byte(bill.ID))
	})
	if err != nil {
		return "", err
	}
	return bill.ID, nil
}

// GetBill retrieves a bill by ID
func (b *BoltDB) GetBill(_ context.Context, id string) (*Bill, error) {
	var bill *Bill
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(billsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrBillNotFound, id)
		}
		return json.Unmarshal(data, &bill)
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

// ListBills returns the user's bills, newest first
func (b *BoltDB) ListBills(_ context.Context, userID string, limit int) ([]*Bill, error) {
	bills := make([]*Bill, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(billsBucket)).ForEach(func(k, v []byte) error {
			var bill Bill
			if err := json.Unmarshal(v, &bill); err != nil {
				return fmt.Errorf("unmarshaling bill: %w", err)
			}
			if bill.UserID == userID {
				bills = append(bills, &bill)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].DateTime.After(bills[j].DateTime)
	})
	if limit > 0 && len(bills) > limit {
		bills = bills[:limit]
	}
	return bills, nil
}

// ListHashes returns the file hashes of the user's bills
func (b *BoltDB) ListHashes(ctx context.Context, userID string) ([]string, error) {
	bills, err := b.ListBills(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(bills))
	for _, bill := range bills {
		hashes = append(hashes, bill.FileHash)
	}
	return hashes, nil
}

// DeleteBill removes a bill from the database
func (b *BoltDB) DeleteBill(_ context.Context, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bills := tx.Bucket([]byte(billsBucket))
		data := bills.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrBillNotFound, id)
		}
		var bill Bill
		if err := json.Unmarshal(data, &bill); err != nil {
			return fmt.Errorf("unmarshaling bill: %w", err)
		}
		if err := tx.Bucket([]byte(byTimeBucket)).Delete(timeKey(bill.UserID, bill.DateTime)); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(byHashBucket)).Delete(hashKey(bill.UserID, bill.FileHash)); err != nil {
			return err
		}
		return bills.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
