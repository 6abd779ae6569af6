package observer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"isccObserver/internal/model"
	"isccObserver/internal/multichain"
)

const CobloHeader byte = 0x41

// CobloLedger is the registered coblo MultiChain ledger.
var CobloLedger = model.Ledger{
	ID:          1,
	Slug:        "coblo",
	URLTemplate: "https://explorer.coblo.net/stream/iscc/{}:{}/",
}

// StreamClient is the MultiChain client used by CobloSource.
type StreamClient interface {
	ListStreamItems(ctx context.Context, stream string, start, count uint64) ([]multichain.StreamItem, error)
	StreamLength(ctx context.Context, stream string) (uint64, error)
}

// CobloConfig holds runtime settings for the coblo source.
type CobloConfig struct {
	Stream       string
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// CobloSource pages through a MultiChain stream. Chain indexes are stream offsets.
type CobloSource struct {
	cfg    CobloConfig
	client StreamClient
	logger *zap.Logger
}

func NewCobloSource(cfg CobloConfig, client StreamClient, logger *zap.Logger) (*CobloSource, error) {
	if client == nil {
		return nil, fmt.Errorf("stream client is nil")
	}
	if cfg.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if cfg.Stream == "" {
		cfg.Stream = multichain.DefaultStream
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CobloSource{cfg: cfg, client: client, logger: logger}, nil
}

func (s *CobloSource) Ledger() model.Ledger { return CobloLedger }

func (s *CobloSource) Header() byte { return CobloHeader }

// Backlog returns the number of stream items at or after cursor.
func (s *CobloSource) Backlog(ctx context.Context, cursor uint64) (uint64, error) {
	length, err := s.client.StreamLength(ctx, s.cfg.Stream)
	if err != nil {
		return 0, fmt.Errorf("%w: stream length: %v", ErrSourceUnavailable, err)
	}
	if length < cursor {
		return 0, nil
	}
	return length - cursor, nil
}

// NextBatch reads stream items [cursor, cursor+BatchSize). Reading stops at
// the first unconfirmed item so offsets are only consumed once they are final.
func (s *CobloSource) NextBatch(ctx context.Context, cursor uint64) (Batch, error) {
	var items []multichain.StreamItem
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		items, err = s.client.ListStreamItems(ctx, s.cfg.Stream, cursor, s.cfg.BatchSize)
		if err != nil {
			s.logger.Warn("list stream items failed", zap.Error(err), zap.Uint64("start", cursor))
		}
		return err
	})
	if err != nil {
		return Batch{Next: cursor}, fmt.Errorf("%w: list stream items at %d: %v", ErrSourceUnavailable, cursor, err)
	}

	batch := Batch{Next: cursor}
	for i, item := range items {
		if item.BlockHash == "" {
			s.logger.Debug("unconfirmed stream item", zap.String("txid", item.TxID), zap.Uint64("chain_index", cursor+uint64(i)))
			break
		}
		batch.Next = cursor + uint64(i) + 1

		vout := item.Vout
		decl := model.Declaration{
			Code:       strings.Join(item.Keys, "-"),
			LedgerID:   CobloLedger.ID,
			ChainIndex: cursor + uint64(i),
			BlockHash:  item.BlockHash,
			TxHash:     item.TxID,
			TxOutIdx:   &vout,
			DeclaredAt: time.Unix(item.Time, 0).UTC(),
		}
		if len(item.Publishers) == 0 {
			batch.Rejected = append(batch.Rejected, model.Reject(decl, fmt.Errorf("stream item has no publisher"), time.Now()))
			continue
		}
		decl.Actor = item.Publishers[0]

		if payload, ok := item.JSONPayload(); ok {
			decl.Tophash = payload.Tophash
			decl.Title = payload.Title
			decl.Extra = payload.Extra
			if len(payload.Meta) > 0 && string(payload.Meta) != "null" {
				decl.Metadata = payload.Meta
			}
		}
		batch.Declarations = append(batch.Declarations, decl)
	}
	return batch, nil
}
