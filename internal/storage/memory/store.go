package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"isccObserver/internal/model"
	"isccObserver/internal/storage"
)

// Store is an in-process Store used for dry runs and tests.
type Store struct {
	mu      sync.RWMutex
	ledgers map[uint32]model.Ledger
	records map[string]model.IsccRecord
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		ledgers: make(map[uint32]model.Ledger),
		records: make(map[string]model.IsccRecord),
		now:     time.Now,
	}
}

func (s *Store) GetOrCreateLedger(_ context.Context, ledger model.Ledger) (model.Ledger, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.ledgers[ledger.ID]; ok {
		return existing, false, nil
	}
	s.ledgers[ledger.ID] = ledger
	return ledger, true, nil
}

func (s *Store) MaxChainIndex(_ context.Context, ledgerID uint32) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max uint64
	var found bool
	for _, rec := range s.records {
		if rec.LedgerID != ledgerID {
			continue
		}
		if !found || rec.ChainIndex > max {
			max = rec.ChainIndex
			found = true
		}
	}
	return max, found, nil
}

func (s *Store) ExistsByTxHash(_ context.Context, ledgerID uint32, txHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.LedgerID == ledgerID && rec.TxHash == txHash {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetByID(_ context.Context, id string) (model.IsccRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *Store) Create(_ context.Context, rec model.IsccRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledgers[rec.LedgerID]; !ok {
		return fmt.Errorf("unknown ledger %d", rec.LedgerID)
	}
	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("%w: iscc-id %s exists", storage.ErrConflict, rec.ID)
	}
	now := s.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.records[rec.ID] = rec
	return nil
}

func (s *Store) Update(_ context.Context, rec model.IsccRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[rec.ID]
	if !ok || rec.Revision == 0 || existing.Revision != rec.Revision-1 {
		return fmt.Errorf("%w: iscc-id %s revision %d", storage.ErrConflict, rec.ID, rec.Revision)
	}
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = s.now().UTC()
	s.records[rec.ID] = rec
	return nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// Records returns a snapshot of all stored records.
func (s *Store) Records() []model.IsccRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.IsccRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}
