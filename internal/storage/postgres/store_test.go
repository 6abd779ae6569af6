package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"isccObserver/internal/storage"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		conflict    bool
		unavailable bool
	}{
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, conflict: true},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, unavailable: true},
		{name: "admin shutdown", err: fmt.Errorf("query: %w", &pgconn.PgError{Code: "57P01"}), unavailable: true},
		{name: "deadline", err: context.DeadlineExceeded, unavailable: true},
		{name: "syntax error", err: &pgconn.PgError{Code: "42601"}},
		{name: "plain", err: errors.New("boom")},
	}
	for _, tc := range cases {
		got := classify(tc.err)
		if !errors.Is(got, tc.err) {
			t.Fatalf("%s: original error lost: %v", tc.name, got)
		}
		if errors.Is(got, storage.ErrConflict) != tc.conflict {
			t.Fatalf("%s: conflict classification mismatch: %v", tc.name, got)
		}
		if storage.IsUnavailable(got) != tc.unavailable {
			t.Fatalf("%s: unavailable classification mismatch: %v", tc.name, got)
		}
	}
	if classify(nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}

func TestParams(t *testing.T) {
	if outIdxParam(nil) != nil {
		t.Fatalf("nil output index must map to NULL")
	}
	idx := uint32(3)
	if got := outIdxParam(&idx); got == nil || *got != 3 {
		t.Fatalf("unexpected output index param: %v", got)
	}
	if metadataParam(nil) != nil {
		t.Fatalf("empty metadata must map to NULL")
	}
	if got := metadataParam([]byte(`{"a":1}`)); got != `{"a":1}` {
		t.Fatalf("unexpected metadata param: %v", got)
	}
}
