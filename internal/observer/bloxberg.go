package observer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"isccObserver/internal/chain"
	"isccObserver/internal/iscc"
	"isccObserver/internal/model"
)

const (
	BloxbergHeader byte = 0x42
	// componentBytes is the size of one packed component in the event payload.
	componentBytes = 9
)

// BloxbergLedger is the registered bloxberg chain.
var BloxbergLedger = model.Ledger{
	ID:          2,
	Slug:        "bloxberg",
	URLTemplate: "https://blockexplorer.bloxberg.org/tx/{}/internal_transactions/",
}

// EventClient is the EVM client used by BloxbergSource.
type EventClient interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// BloxbergConfig holds runtime settings for the bloxberg source.
type BloxbergConfig struct {
	Contract     common.Address
	BlockWindow  uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// BloxbergSource reads ISCC events of the registry contract. Chain indexes
// are block numbers.
type BloxbergSource struct {
	cfg    BloxbergConfig
	client EventClient
	topic  common.Hash
	logger *zap.Logger
}

func NewBloxbergSource(cfg BloxbergConfig, client EventClient, logger *zap.Logger) (*BloxbergSource, error) {
	if client == nil {
		return nil, fmt.Errorf("event client is nil")
	}
	if cfg.BlockWindow == 0 {
		return nil, fmt.Errorf("block window must be greater than zero")
	}
	topic, err := chain.IsccEventTopic()
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BloxbergSource{cfg: cfg, client: client, topic: topic, logger: logger}, nil
}

func (s *BloxbergSource) Ledger() model.Ledger { return BloxbergLedger }

func (s *BloxbergSource) Header() byte { return BloxbergHeader }

// ResumeFrom rewinds one block so a block that was only partly stored before
// a restart is read again. Repeated transactions are skipped by the resolver.
func (s *BloxbergSource) ResumeFrom(cursor uint64) uint64 {
	if cursor == 0 {
		return 0
	}
	return cursor - 1
}

// Backlog returns the number of blocks between cursor and the chain head.
func (s *BloxbergSource) Backlog(ctx context.Context, cursor uint64) (uint64, error) {
	head, err := s.client.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: latest block: %v", ErrSourceUnavailable, err)
	}
	if head < cursor {
		return 0, nil
	}
	return head - cursor + 1, nil
}

// NextBatch reads one block window starting at cursor.
func (s *BloxbergSource) NextBatch(ctx context.Context, cursor uint64) (Batch, error) {
	var head uint64
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = s.client.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return Batch{Next: cursor}, fmt.Errorf("%w: latest block: %v", ErrSourceUnavailable, err)
	}
	if cursor > head {
		return Batch{Next: cursor}, nil
	}

	window, err := NextWindow(cursor, head, s.cfg.BlockWindow)
	if err != nil {
		return Batch{Next: cursor}, err
	}

	logs, err := s.filterLogsWithRetry(ctx, window)
	if err != nil {
		return Batch{Next: cursor}, fmt.Errorf("%w: filter logs %d-%d: %v", ErrSourceUnavailable, window.From, window.To, err)
	}

	batch := Batch{Next: window.To + 1}
	for _, log := range logs {
		if log.Removed {
			continue
		}

		ts, err := s.blockTimestampWithRetry(ctx, log.BlockNumber)
		if err != nil {
			return Batch{Next: cursor}, fmt.Errorf("%w: block timestamp %d: %v", ErrSourceUnavailable, log.BlockNumber, err)
		}

		decl := model.Declaration{
			LedgerID:   BloxbergLedger.ID,
			ChainIndex: log.BlockNumber,
			BlockHash:  log.BlockHash.Hex(),
			TxHash:     log.TxHash.Hex(),
			DeclaredAt: time.Unix(int64(ts), 0).UTC(),
		}

		event, err := chain.DecodeIsccEvent(log)
		if err != nil {
			batch.Rejected = append(batch.Rejected, model.Reject(decl, err, time.Now()))
			continue
		}
		decl.Actor = event.Actor.Hex()
		decl.Tophash = common.Bytes2Hex(event.Tophash)

		code, err := codeFromPayload(event.Iscc)
		if err != nil {
			batch.Rejected = append(batch.Rejected, model.Reject(decl, err, time.Now()))
			continue
		}
		decl.Code = code
		batch.Declarations = append(batch.Declarations, decl)
	}

	s.logger.Debug("bloxberg window read",
		zap.Uint64("from", window.From),
		zap.Uint64("to", window.To),
		zap.Int("logs", len(logs)),
	)
	return batch, nil
}

func (s *BloxbergSource) filterLogsWithRetry(ctx context.Context, window BlockRange) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = s.client.FilterLogs(ctx, window.From, window.To, []common.Address{s.cfg.Contract}, []common.Hash{s.topic})
		if err != nil {
			s.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", window.From), zap.Uint64("to", window.To))
		}
		return err
	})
	return logs, err
}

func (s *BloxbergSource) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = s.client.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			s.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

// codeFromPayload encodes consecutive 9-byte groups as components joined by "-".
func codeFromPayload(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty payload", iscc.ErrMalformedCode)
	}
	components := make([]string, 0, (len(payload)+componentBytes-1)/componentBytes)
	for start := 0; start < len(payload); start += componentBytes {
		end := min(start+componentBytes, len(payload))
		component, err := iscc.Encode(payload[start:end])
		if err != nil {
			return "", fmt.Errorf("%w: payload group at %d: %v", iscc.ErrMalformedCode, start, err)
		}
		components = append(components, component)
	}
	return strings.Join(components, "-"), nil
}
