package isccid

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"isccObserver/internal/model"
	"isccObserver/internal/storage"
)

// Outcome is the result of resolving one declaration.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

// Result describes how a declaration was resolved.
type Result struct {
	Outcome  Outcome
	ID       string
	Counter  uint64
	Revision uint32
}

// Resolver mints ISCC-IDs for declarations and persists them.
type Resolver struct {
	store  storage.Store
	logger *zap.Logger
}

func NewResolver(store storage.Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve assigns decl to the first counter slot that is either free or
// already owned by the same actor and code. A free slot creates a record, an
// owned slot updates it with an incremented revision. Declarations whose
// transaction is already recorded on the ledger are skipped.
func (r *Resolver) Resolve(ctx context.Context, header byte, decl model.Declaration) (Result, error) {
	seen, err := r.store.ExistsByTxHash(ctx, decl.LedgerID, decl.TxHash)
	if err != nil {
		return Result{}, fmt.Errorf("check tx %s: %w", decl.TxHash, err)
	}
	if seen {
		return Result{Outcome: OutcomeSkipped}, nil
	}

	if _, err := Fingerprint(decl.Code); err != nil {
		return Result{}, err
	}

	for counter := uint64(0); ; {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		id, err := Mint(header, decl.Code, counter)
		if err != nil {
			return Result{}, err
		}

		err = r.store.Create(ctx, model.NewRecord(id, decl))
		if err == nil {
			return Result{Outcome: OutcomeCreated, ID: id, Counter: counter}, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return Result{}, fmt.Errorf("create %s: %w", id, err)
		}

		existing, found, err := r.store.GetByID(ctx, id)
		if err != nil {
			return Result{}, fmt.Errorf("get %s: %w", id, err)
		}
		if !found {
			// Removed between insert and fetch; try the same slot again.
			continue
		}

		if !existing.Owns(decl) {
			r.logger.Debug("iscc-id collision",
				zap.String("iscc_id", id),
				zap.Uint64("counter", counter),
				zap.String("actor", decl.Actor),
			)
			counter++
			continue
		}

		existing.Apply(decl)
		existing.Revision++
		err = r.store.Update(ctx, existing)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("update %s: %w", id, err)
		}
		return Result{Outcome: OutcomeUpdated, ID: id, Counter: counter, Revision: existing.Revision}, nil
	}
}
