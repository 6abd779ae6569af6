package storage

import (
	"context"
	"errors"

	"isccObserver/internal/model"
)

var (
	// ErrUnavailable marks connectivity or operational failures that are
	// expected to clear after a reconnect.
	ErrUnavailable = errors.New("store unavailable")
	// ErrConflict is returned when a write loses against an existing row.
	ErrConflict = errors.New("store conflict")
)

// Store persists ledgers and ISCC-ID records.
type Store interface {
	// GetOrCreateLedger returns the stored ledger with ledger.ID, inserting
	// ledger first when it does not exist. The bool reports an insert.
	GetOrCreateLedger(ctx context.Context, ledger model.Ledger) (model.Ledger, bool, error)
	// MaxChainIndex returns the highest chain index recorded for a ledger.
	MaxChainIndex(ctx context.Context, ledgerID uint32) (uint64, bool, error)
	ExistsByTxHash(ctx context.Context, ledgerID uint32, txHash string) (bool, error)
	GetByID(ctx context.Context, id string) (model.IsccRecord, bool, error)
	// Create inserts a record and returns ErrConflict when the ID is taken.
	Create(ctx context.Context, rec model.IsccRecord) error
	// Update overwrites a record whose stored revision is rec.Revision-1 and
	// returns ErrConflict otherwise.
	Update(ctx context.Context, rec model.IsccRecord) error
	// Ping checks connectivity, re-establishing connections where possible.
	Ping(ctx context.Context) error
}

// IsUnavailable reports whether err is a transient store failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
