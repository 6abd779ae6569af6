package observer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"isccObserver/internal/multichain"
)

type fakeStreamClient struct {
	items  []multichain.StreamItem
	err    error
	length uint64
	starts []uint64
}

func (c *fakeStreamClient) ListStreamItems(_ context.Context, _ string, start, count uint64) ([]multichain.StreamItem, error) {
	c.starts = append(c.starts, start)
	if c.err != nil {
		return nil, c.err
	}
	return c.items, nil
}

func (c *fakeStreamClient) StreamLength(context.Context, string) (uint64, error) {
	return c.length, nil
}

func TestCobloSourceReadsItems(t *testing.T) {
	client := &fakeStreamClient{items: []multichain.StreamItem{
		{
			Publishers: []string{"1PubA", "1PubB"},
			Keys:       []string{"CCPjLeuHA37Pr", "CTh9JsaaWizzW"},
			Data:       json.RawMessage(`{"json":{"tophash":"ab","title":"Doc","extra":"x","meta":{"k":"v"}}}`),
			BlockHash:  "00ff",
			TxID:       "tx10",
			Vout:       2,
			Time:       1600000000,
		},
		{
			Keys:      []string{"CCPjLeuHA37Pr"},
			BlockHash: "00ff",
			TxID:      "tx11",
		},
		{
			Publishers: []string{"1PubA"},
			Keys:       []string{"CCPjLeuHA37Pr"},
			TxID:       "tx12",
		},
		{
			Publishers: []string{"1PubA"},
			Keys:       []string{"CCPjLeuHA37Pr"},
			BlockHash:  "0100",
			TxID:       "tx13",
		},
	}}

	source, err := NewCobloSource(CobloConfig{BatchSize: 4}, client, nil)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	batch, err := source.NextBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("next batch: %v", err)
	}
	if batch.Next != 12 {
		t.Fatalf("expected next 12, got %d", batch.Next)
	}
	if len(batch.Declarations) != 1 || len(batch.Rejected) != 1 {
		t.Fatalf("unexpected batch: %+v", batch)
	}

	decl := batch.Declarations[0]
	if decl.Code != "CCPjLeuHA37Pr-CTh9JsaaWizzW" || decl.Actor != "1PubA" || decl.ChainIndex != 10 {
		t.Fatalf("unexpected declaration: %+v", decl)
	}
	if decl.TxOutIdx == nil || *decl.TxOutIdx != 2 || decl.LedgerID != CobloLedger.ID {
		t.Fatalf("unexpected tx reference: %+v", decl)
	}
	if decl.Tophash != "ab" || decl.Title != "Doc" || decl.Extra != "x" || string(decl.Metadata) != `{"k":"v"}` {
		t.Fatalf("unexpected payload fields: %+v", decl)
	}
	if got := CobloLedger.TransactionURL(decl.TxHash, decl.TxOutIdx); got != "https://explorer.coblo.net/stream/iscc/tx10:2/" {
		t.Fatalf("unexpected url %s", got)
	}
	if batch.Rejected[0].ChainIndex != 11 || batch.Rejected[0].TxHash != "tx11" {
		t.Fatalf("unexpected rejection: %+v", batch.Rejected[0])
	}
}

func TestCobloSourceEmptyAndUnavailable(t *testing.T) {
	client := &fakeStreamClient{}
	source, err := NewCobloSource(CobloConfig{BatchSize: 10}, client, nil)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	batch, err := source.NextBatch(context.Background(), 7)
	if err != nil || batch.Next != 7 || len(batch.Declarations) != 0 {
		t.Fatalf("empty stream: %+v %v", batch, err)
	}

	client.err = errors.New("rpc error: stream not found")
	batch, err = source.NextBatch(context.Background(), 7)
	if !errors.Is(err, ErrSourceUnavailable) || batch.Next != 7 {
		t.Fatalf("expected ErrSourceUnavailable at cursor 7, got %+v %v", batch, err)
	}
}

func TestCobloSourceBacklog(t *testing.T) {
	source, err := NewCobloSource(CobloConfig{BatchSize: 10}, &fakeStreamClient{length: 25}, nil)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if backlog, err := source.Backlog(context.Background(), 20); err != nil || backlog != 5 {
		t.Fatalf("backlog: %d %v", backlog, err)
	}
	if backlog, err := source.Backlog(context.Background(), 30); err != nil || backlog != 0 {
		t.Fatalf("backlog past end: %d %v", backlog, err)
	}
}
