package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"isccObserver/internal/model"
	"isccObserver/internal/storage"
)

func TestStoreRecords(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ledger := model.Ledger{ID: 2, Slug: "bloxberg"}

	rec := model.NewRecord("29Cr8j8p3652o", model.Declaration{
		Code:       "CCPjLeuHA37Pr",
		Actor:      "0xAA",
		LedgerID:   ledger.ID,
		ChainIndex: 12,
		TxHash:     "0x01",
		DeclaredAt: time.Unix(1600000000, 0).UTC(),
	})
	if err := store.Create(ctx, rec); err == nil {
		t.Fatalf("expected error for unknown ledger")
	}

	if _, created, err := store.GetOrCreateLedger(ctx, ledger); err != nil || !created {
		t.Fatalf("create ledger: %v %v", created, err)
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, rec); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	last, ok, err := store.MaxChainIndex(ctx, ledger.ID)
	if err != nil || !ok || last != 12 {
		t.Fatalf("max chain index: %d %v %v", last, ok, err)
	}

	rec.Revision = 2
	if err := store.Update(ctx, rec); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for skipped revision, got %v", err)
	}
	rec.Revision = 1
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _, _ := store.GetByID(ctx, rec.ID)
	if got.Revision != 1 || got.CreatedAt.IsZero() {
		t.Fatalf("unexpected record: %+v", got)
	}
}
