package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"isccObserver/internal/model"
)

func TestJsonlJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rejects.jsonl")
	journal := NewJsonlJournal(path)

	first := model.RejectedDeclaration{LedgerID: 1, ChainIndex: 4, TxHash: "tx4", Code: "XX", Error: "malformed iscc code"}
	second := model.RejectedDeclaration{LedgerID: 2, ChainIndex: 9, TxHash: "0x09", Actor: "0xAA", Error: "unknown component header"}

	if err := journal.PutRejected([]model.RejectedDeclaration{first}); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := journal.PutRejected(nil); err != nil {
		t.Fatalf("put empty: %v", err)
	}
	if err := journal.PutRejected([]model.RejectedDeclaration{second}); err != nil {
		t.Fatalf("put second: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()

	var got []model.RejectedDeclaration
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.RejectedDeclaration
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	want := []model.RejectedDeclaration{first, second}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("journal mismatch: %+v != %+v", got, want)
	}
}
