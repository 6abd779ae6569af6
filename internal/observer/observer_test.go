package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"isccObserver/internal/isccid"
	"isccObserver/internal/metrics"
	"isccObserver/internal/model"
	"isccObserver/internal/storage"
	"isccObserver/internal/storage/memory"
)

const (
	singleCode = "CCPjLeuHA37Pr"
	fullCode   = "CCCrn6Uebx1Dd-CTh9JsaaWizzW-CDjeqLXRXm6mX-CR2Weux4akKVr"
)

var testLedger = model.Ledger{ID: 2, Slug: "test", URLTemplate: "https://example.org/tx/{}"}

// fakeSource serves every declaration at or after the cursor and cancels the
// run once it has nothing left to serve. Errors in errs are returned first.
type fakeSource struct {
	decls   []model.Declaration
	errs    []error
	cursors []uint64
	cancel  context.CancelFunc
}

func (s *fakeSource) Ledger() model.Ledger { return testLedger }

func (s *fakeSource) Header() byte { return 0x42 }

func (s *fakeSource) NextBatch(_ context.Context, cursor uint64) (Batch, error) {
	s.cursors = append(s.cursors, cursor)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return Batch{Next: cursor}, err
	}

	batch := Batch{Next: cursor}
	for _, decl := range s.decls {
		if decl.ChainIndex < cursor {
			continue
		}
		batch.Declarations = append(batch.Declarations, decl)
		if decl.ChainIndex+1 > batch.Next {
			batch.Next = decl.ChainIndex + 1
		}
	}
	if len(batch.Declarations) == 0 {
		s.cancel()
	}
	return batch, nil
}

type memoryJournal struct {
	rejected []model.RejectedDeclaration
}

func (j *memoryJournal) PutRejected(rejected []model.RejectedDeclaration) error {
	j.rejected = append(j.rejected, rejected...)
	return nil
}

func declaration(code, actor string, index uint64) model.Declaration {
	return model.Declaration{
		Code:       code,
		Actor:      actor,
		LedgerID:   testLedger.ID,
		ChainIndex: index,
		BlockHash:  fmt.Sprintf("0xblock%d", index),
		TxHash:     fmt.Sprintf("0xtx%s%d", actor, index),
		DeclaredAt: time.Unix(1700000000+int64(index), 0).UTC(),
	}
}

func runObserver(t *testing.T, cfg Config, source *fakeSource, store storage.Store) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	source.cancel = cancel
	return NewObserver(cfg, source, store, zap.NewNop()).Run(ctx)
}

func TestResumeCursor(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if _, _, err := store.GetOrCreateLedger(ctx, testLedger); err != nil {
		t.Fatalf("create ledger: %v", err)
	}

	cursor, err := ResumeCursor(ctx, store, testLedger.ID)
	if err != nil || cursor != 0 {
		t.Fatalf("empty ledger cursor: %d %v", cursor, err)
	}

	if err := store.Create(ctx, model.NewRecord("id-1", declaration(singleCode, "0xAA", 7))); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cursor, err = ResumeCursor(ctx, store, testLedger.ID)
	if err != nil || cursor != 8 {
		t.Fatalf("expected cursor 8, got %d %v", cursor, err)
	}
}

func TestObserverTwoActorsSameCode(t *testing.T) {
	store := memory.NewStore()
	source := &fakeSource{decls: []model.Declaration{
		declaration(singleCode, "0xAA", 0),
		declaration(singleCode, "0xBB", 1),
	}}

	if err := runObserver(t, Config{}, source, store); err != nil {
		t.Fatalf("run: %v", err)
	}

	ctx := context.Background()
	for counter, actor := range []string{"0xAA", "0xBB"} {
		id, err := isccid.Mint(0x42, singleCode, uint64(counter))
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		rec, ok, err := store.GetByID(ctx, id)
		if err != nil || !ok {
			t.Fatalf("record %s missing: %v", id, err)
		}
		if rec.Actor != actor || rec.Revision != 0 {
			t.Fatalf("unexpected record for counter %d: %+v", counter, rec)
		}
	}
	if n := len(store.Records()); n != 2 {
		t.Fatalf("expected 2 records, got %d", n)
	}
	if want := []uint64{0, 2}; !reflect.DeepEqual(source.cursors, want) {
		t.Fatalf("cursor mismatch: %v != %v", source.cursors, want)
	}
}

func TestObserverResumesAfterStoredIndex(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if _, _, err := store.GetOrCreateLedger(ctx, testLedger); err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	seed := declaration(fullCode, "0xAA", 5)
	if err := store.Create(ctx, model.NewRecord("seed", seed)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	source := &fakeSource{}
	if err := runObserver(t, Config{}, source, store); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(source.cursors) == 0 || source.cursors[0] != 6 {
		t.Fatalf("expected first cursor 6, got %v", source.cursors)
	}
}

func TestObserverProcessesInChainOrder(t *testing.T) {
	store := memory.NewStore()
	later := declaration(singleCode, "0xAA", 3)
	later.Title = "second"
	source := &fakeSource{decls: []model.Declaration{later, declaration(singleCode, "0xAA", 2)}}

	if err := runObserver(t, Config{}, source, store); err != nil {
		t.Fatalf("run: %v", err)
	}

	records := store.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Revision != 1 || rec.ChainIndex != 3 || rec.Title != "second" {
		t.Fatalf("declarations applied out of order: %+v", rec)
	}
}

func TestObserverRetriesUnavailableSource(t *testing.T) {
	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	source := &fakeSource{
		decls: []model.Declaration{declaration(singleCode, "0xAA", 0)},
		errs:  []error{fmt.Errorf("%w: dial tcp: refused", ErrSourceUnavailable)},
	}

	if err := runObserver(t, Config{Metrics: m}, source, store); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := len(store.Records()); n != 1 {
		t.Fatalf("expected 1 record, got %d", n)
	}
	if want := []uint64{0, 0, 1}; !reflect.DeepEqual(source.cursors, want) {
		t.Fatalf("cursor mismatch: %v != %v", source.cursors, want)
	}
	if got := testutil.ToFloat64(m.PollErrors.WithLabelValues("test", "source")); got != 1 {
		t.Fatalf("expected 1 source error, got %v", got)
	}
	if got := testutil.ToFloat64(m.Declarations.WithLabelValues("test", "created")); got != 1 {
		t.Fatalf("expected 1 created declaration, got %v", got)
	}
	if got := testutil.ToFloat64(m.Cursor.WithLabelValues("test")); got != 1 {
		t.Fatalf("expected cursor gauge 1, got %v", got)
	}
}

type flakyStore struct {
	*memory.Store
	existsFailures int
	pingFailures   int
	pings          int
}

func (s *flakyStore) ExistsByTxHash(ctx context.Context, ledgerID uint32, txHash string) (bool, error) {
	if s.existsFailures > 0 {
		s.existsFailures--
		return false, fmt.Errorf("%w: connection reset", storage.ErrUnavailable)
	}
	return s.Store.ExistsByTxHash(ctx, ledgerID, txHash)
}

func (s *flakyStore) Ping(context.Context) error {
	s.pings++
	if s.pingFailures > 0 {
		s.pingFailures--
		return errors.New("connection refused")
	}
	return nil
}

func TestObserverBacksOffOnUnavailableStore(t *testing.T) {
	store := &flakyStore{Store: memory.NewStore(), existsFailures: 1, pingFailures: 2}
	source := &fakeSource{decls: []model.Declaration{declaration(singleCode, "0xAA", 0)}}

	if err := runObserver(t, Config{ReconnectDelay: time.Millisecond}, source, store); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.pings != 3 {
		t.Fatalf("expected 3 pings, got %d", store.pings)
	}
	records := store.Records()
	if len(records) != 1 || records[0].Revision != 0 {
		t.Fatalf("unexpected records after backoff: %+v", records)
	}
	if want := []uint64{0, 0, 1}; !reflect.DeepEqual(source.cursors, want) {
		t.Fatalf("cursor mismatch: %v != %v", source.cursors, want)
	}
}

func TestObserverStopsOnUnexpectedError(t *testing.T) {
	boom := errors.New("boom")
	source := &fakeSource{errs: []error{boom}}

	err := runObserver(t, Config{}, source, memory.NewStore())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestObserverJournalsInvalidCodes(t *testing.T) {
	store := memory.NewStore()
	journal := &memoryJournal{}
	sourceReject := model.RejectedDeclaration{LedgerID: testLedger.ID, ChainIndex: 0, TxHash: "0xbad", Error: "unpack"}
	bad := declaration("XXPjLeuHA37Pr", "0xAA", 1)
	good := declaration(singleCode, "0xAA", 2)
	good.Metadata = json.RawMessage(`{"a":1}`)
	source := &fakeSource{decls: []model.Declaration{bad, good}}

	wrapped := &rejectingSource{fakeSource: source, pending: []model.RejectedDeclaration{sourceReject}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	source.cancel = cancel

	if err := NewObserver(Config{Journal: journal}, wrapped, store, nil).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(journal.rejected) != 2 {
		t.Fatalf("expected 2 rejected declarations, got %+v", journal.rejected)
	}
	if journal.rejected[0].TxHash != "0xbad" || journal.rejected[1].TxHash != bad.TxHash {
		t.Fatalf("unexpected journal: %+v", journal.rejected)
	}
	records := store.Records()
	if len(records) != 1 || records[0].Code != singleCode {
		t.Fatalf("unexpected records: %+v", records)
	}
}

// rejectingSource adds source-side rejections to the first batch.
type rejectingSource struct {
	*fakeSource
	pending []model.RejectedDeclaration
}

func (s *rejectingSource) NextBatch(ctx context.Context, cursor uint64) (Batch, error) {
	batch, err := s.fakeSource.NextBatch(ctx, cursor)
	if err == nil {
		batch.Rejected = append(batch.Rejected, s.pending...)
		s.pending = nil
	}
	return batch, err
}
