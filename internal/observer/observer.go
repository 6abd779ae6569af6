package observer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"isccObserver/internal/iscc"
	"isccObserver/internal/isccid"
	"isccObserver/internal/metrics"
	"isccObserver/internal/model"
	"isccObserver/internal/storage"
)

// RejectJournal persists declarations that failed validation.
type RejectJournal interface {
	PutRejected(rejected []model.RejectedDeclaration) error
}

// Config holds runtime settings for an observer.
type Config struct {
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	Journal        RejectJournal
	Metrics        *metrics.Metrics
}

// Observer polls one ledger source and resolves its declarations into records.
type Observer struct {
	cfg      Config
	source   Source
	store    storage.Store
	resolver *isccid.Resolver
	logger   *zap.Logger
	slug     string
}

// NewObserver builds an Observer with its dependencies.
func NewObserver(cfg Config, source Source, store storage.Store, logger *zap.Logger) *Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	slug := ""
	if source != nil {
		slug = source.Ledger().Slug
		logger = logger.With(zap.String("ledger", slug))
	}
	return &Observer{
		cfg:      cfg,
		source:   source,
		store:    store,
		resolver: isccid.NewResolver(store, logger),
		logger:   logger,
		slug:     slug,
	}
}

// ResumeCursor returns one past the highest chain index stored for the
// ledger, or 0 when the ledger has no records.
func ResumeCursor(ctx context.Context, store storage.Store, ledgerID uint32) (uint64, error) {
	last, ok, err := store.MaxChainIndex(ctx, ledgerID)
	if err != nil {
		return 0, fmt.Errorf("max chain index: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return last + 1, nil
}

// Run executes the poll loop until ctx is done or an unexpected error occurs.
// Store outages are waited out and ledger outages are polled through.
func (o *Observer) Run(ctx context.Context) error {
	if o.source == nil {
		return fmt.Errorf("source is nil")
	}
	if o.store == nil {
		return fmt.Errorf("store is nil")
	}

	cursor, err := o.start(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for {
		next, err := o.poll(ctx, cursor)
		switch {
		case err == nil:
			cursor = next
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrSourceUnavailable):
			o.cfg.Metrics.IncrementPollError(o.slug, "source")
			o.logger.Warn("ledger source unavailable", zap.Error(err), zap.Uint64("cursor", cursor))
		case storage.IsUnavailable(err):
			o.cfg.Metrics.IncrementPollError(o.slug, "store")
			o.logger.Warn("store unavailable", zap.Error(err))
			if err := o.reconnect(ctx); err != nil {
				return nil
			}
			cursor, err = o.start(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		default:
			o.logger.Error("observer stopped", zap.Error(err), zap.Uint64("cursor", cursor))
			return fmt.Errorf("observe %s: %w", o.slug, err)
		}

		if err := sleep(ctx, o.cfg.PollInterval); err != nil {
			return nil
		}
	}
}

// start registers the ledger and derives the cursor from the store, waiting
// out store outages.
func (o *Observer) start(ctx context.Context) (uint64, error) {
	for {
		cursor, err := o.resume(ctx)
		if err == nil {
			return cursor, nil
		}
		if !storage.IsUnavailable(err) {
			return 0, err
		}
		o.cfg.Metrics.IncrementPollError(o.slug, "store")
		o.logger.Warn("store unavailable on start", zap.Error(err))
		if err := o.reconnect(ctx); err != nil {
			return 0, err
		}
	}
}

func (o *Observer) resume(ctx context.Context) (uint64, error) {
	ledger, created, err := o.store.GetOrCreateLedger(ctx, o.source.Ledger())
	if err != nil {
		return 0, fmt.Errorf("register ledger: %w", err)
	}
	if created {
		o.logger.Info("ledger registered", zap.Uint32("ledger_id", ledger.ID))
	}

	stored, err := ResumeCursor(ctx, o.store, ledger.ID)
	if err != nil {
		return 0, err
	}
	cursor := stored
	if resumer, ok := o.source.(Resumer); ok {
		cursor = resumer.ResumeFrom(stored)
	}

	fields := []zap.Field{zap.Uint64("stored_cursor", stored), zap.Uint64("cursor", cursor)}
	if backlogger, ok := o.source.(Backlogger); ok {
		if backlog, err := backlogger.Backlog(ctx, cursor); err == nil {
			fields = append(fields, zap.Uint64("backlog", backlog))
		}
	}
	o.logger.Info("resume", fields...)
	o.cfg.Metrics.SetCursor(o.slug, cursor)
	return cursor, nil
}

// reconnect pings the store until it answers or ctx is done.
func (o *Observer) reconnect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := o.store.Ping(ctx)
		if err == nil {
			o.logger.Info("store reconnected", zap.Int("attempt", attempt))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.logger.Warn("store reconnect failed", zap.Error(err), zap.Int("attempt", attempt))
		if err := sleep(ctx, o.cfg.ReconnectDelay); err != nil {
			return err
		}
	}
}

// poll processes one batch and returns the next cursor.
func (o *Observer) poll(ctx context.Context, cursor uint64) (uint64, error) {
	batch, err := o.source.NextBatch(ctx, cursor)
	if err != nil {
		return cursor, err
	}

	decls := batch.Declarations
	sort.SliceStable(decls, func(i, j int) bool {
		return decls[i].ChainIndex < decls[j].ChainIndex
	})

	ledger := o.source.Ledger()
	rejected := batch.Rejected
	for _, decl := range decls {
		started := time.Now()
		res, err := o.resolver.Resolve(ctx, o.source.Header(), decl)
		o.cfg.Metrics.ObserveResolveLatency(o.slug, time.Since(started))
		if err != nil {
			if isInvalidCode(err) {
				rejected = append(rejected, model.Reject(decl, err, time.Now()))
				continue
			}
			return cursor, fmt.Errorf("resolve tx %s: %w", decl.TxHash, err)
		}

		o.cfg.Metrics.IncrementDeclaration(o.slug, string(res.Outcome))
		if res.Outcome == isccid.OutcomeSkipped {
			continue
		}
		o.cfg.Metrics.AddCollisions(o.slug, res.Counter)
		o.logger.Debug("declaration resolved",
			zap.String("outcome", string(res.Outcome)),
			zap.String("iscc_id", res.ID),
			zap.String("iscc_code", decl.Code),
			zap.String("actor", decl.Actor),
			zap.Uint32("revision", res.Revision),
			zap.Uint64("chain_index", decl.ChainIndex),
			zap.String("url", ledger.TransactionURL(decl.TxHash, decl.TxOutIdx)),
		)
	}

	if err := o.reject(rejected); err != nil {
		return cursor, err
	}

	if n := len(decls) + len(batch.Rejected); n > 0 {
		o.logger.Info("batch complete", zap.Int("declarations", n), zap.Int("rejected", len(rejected)), zap.Uint64("next", batch.Next))
	}
	o.cfg.Metrics.SetCursor(o.slug, batch.Next)
	return batch.Next, nil
}

func (o *Observer) reject(rejected []model.RejectedDeclaration) error {
	for _, r := range rejected {
		o.cfg.Metrics.IncrementRejected(o.slug)
		o.logger.Warn("declaration rejected",
			zap.String("tx_hash", r.TxHash),
			zap.Uint64("chain_index", r.ChainIndex),
			zap.String("iscc_code", r.Code),
			zap.String("reason", r.Error),
		)
	}
	if o.cfg.Journal == nil || len(rejected) == 0 {
		return nil
	}
	if err := o.cfg.Journal.PutRejected(rejected); err != nil {
		return fmt.Errorf("journal rejected declarations: %w", err)
	}
	return nil
}

func isInvalidCode(err error) bool {
	for _, target := range []error{
		iscc.ErrMalformedCode,
		iscc.ErrInvalidSymbol,
		iscc.ErrInvalidComponentLength,
		iscc.ErrUnknownComponentHeader,
		iscc.ErrInvalidDigestLength,
		isccid.ErrNoSimilarityComponents,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
