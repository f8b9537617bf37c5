package bill

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Lookup finds an already stored bill by its transaction time
type Lookup interface {
	FindByTimestamp(ctx context.Context, userID string, ts time.Time) (string, bool, error)
}

// Resolution is the outcome of the dedup gate. When Existing is false the
// caller should create a new bill fingerprinted with Hash.
type Resolution struct {
	Existing bool
	ID       string
	Hash     string
}

// Hash returns the hex encoded SHA-256 of a raw document
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Resolve decides whether the eBon with transaction time ts was already
// ingested for userID. Two physical documents for the same instant are the
// same bill.
func Resolve(ctx context.Context, raw []byte, ts time.Time, userID string, lookup Lookup) (Resolution, error) {
	hash := Hash(raw)
	id, found, err := lookup.FindByTimestamp(ctx, userID, ts)
	if err != nil {
		return Resolution{}, fmt.Errorf("looking up bill by timestamp: %w", err)
	}
	if found {
		return Resolution{Existing: true, ID: id, Hash: hash}, nil
	}
	return Resolution{Hash: hash}, nil
}
