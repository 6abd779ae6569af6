package observer

import (
	"context"
	"errors"

	"isccObserver/internal/model"
)

// ErrSourceUnavailable marks a recoverable ledger client failure. The observer
// treats it as an empty batch and polls again.
var ErrSourceUnavailable = errors.New("ledger source unavailable")

// Batch is one poll worth of declarations. Next is the cursor for the
// following poll.
type Batch struct {
	Declarations []model.Declaration
	Rejected     []model.RejectedDeclaration
	Next         uint64
}

// Source yields declarations of one ledger.
type Source interface {
	Ledger() model.Ledger
	Header() byte
	NextBatch(ctx context.Context, cursor uint64) (Batch, error)
}

// Resumer adjusts the cursor derived from the store before the first poll.
type Resumer interface {
	ResumeFrom(cursor uint64) uint64
}

// Backlogger reports how many chain indexes remain behind the ledger head.
type Backlogger interface {
	Backlog(ctx context.Context, cursor uint64) (uint64, error)
}
