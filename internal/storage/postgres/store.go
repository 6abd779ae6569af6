package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"isccObserver/internal/model"
	"isccObserver/internal/storage"
)

//go:embed schema.sql
var schema string

const recordColumns = `
	iscc_id, iscc_code, actor, revision, ledger_id, chain_index, block_hash, tx_hash,
	tx_out_idx, declared_at, tophash, title, extra, metadata, created_at, updated_at`

// Store provides Postgres persistence for ledgers and ISCC-ID records.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", classify(err))
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.pool.Ping(ctx))
}

func (s *Store) GetOrCreateLedger(ctx context.Context, ledger model.Ledger) (model.Ledger, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO ledgers (id, slug, url_template)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, int64(ledger.ID), ledger.Slug, ledger.URLTemplate)
	if err != nil {
		return model.Ledger{}, false, classify(err)
	}

	var (
		id     int64
		stored model.Ledger
	)
	row := s.pool.QueryRow(ctx, `SELECT id, slug, url_template FROM ledgers WHERE id=$1`, int64(ledger.ID))
	if err := row.Scan(&id, &stored.Slug, &stored.URLTemplate); err != nil {
		return model.Ledger{}, false, classify(err)
	}
	stored.ID = uint32(id)
	return stored, tag.RowsAffected() == 1, nil
}

func (s *Store) MaxChainIndex(ctx context.Context, ledgerID uint32) (uint64, bool, error) {
	var last *int64
	row := s.pool.QueryRow(ctx, `SELECT MAX(chain_index) FROM iscc_records WHERE ledger_id=$1`, int64(ledgerID))
	if err := row.Scan(&last); err != nil {
		return 0, false, classify(err)
	}
	if last == nil {
		return 0, false, nil
	}
	return uint64(*last), true, nil
}

func (s *Store) ExistsByTxHash(ctx context.Context, ledgerID uint32, txHash string) (bool, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM iscc_records WHERE ledger_id=$1 AND tx_hash=$2)
	`, int64(ledgerID), txHash)
	if err := row.Scan(&exists); err != nil {
		return false, classify(err)
	}
	return exists, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (model.IsccRecord, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM iscc_records WHERE iscc_id=$1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.IsccRecord{}, false, nil
		}
		return model.IsccRecord{}, false, classify(err)
	}
	return rec, true, nil
}

// Create inserts rec unless its ID exists.
func (s *Store) Create(ctx context.Context, rec model.IsccRecord) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO iscc_records (
			iscc_id, iscc_code, actor, revision, ledger_id, chain_index, block_hash, tx_hash,
			tx_out_idx, declared_at, tophash, title, extra, metadata, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
		ON CONFLICT (iscc_id) DO NOTHING
	`,
		rec.ID,
		rec.Code,
		rec.Actor,
		int64(rec.Revision),
		int64(rec.LedgerID),
		int64(rec.ChainIndex),
		rec.BlockHash,
		rec.TxHash,
		outIdxParam(rec.TxOutIdx),
		rec.DeclaredAt,
		rec.Tophash,
		rec.Title,
		rec.Extra,
		metadataParam(rec.Metadata),
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: iscc-id %s exists", storage.ErrConflict, rec.ID)
	}
	return nil
}

// Update overwrites rec when the stored revision is rec.Revision-1.
func (s *Store) Update(ctx context.Context, rec model.IsccRecord) error {
	if rec.Revision == 0 {
		return fmt.Errorf("%w: iscc-id %s revision 0", storage.ErrConflict, rec.ID)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE iscc_records SET
			iscc_code = $2,
			actor = $3,
			revision = $4,
			ledger_id = $5,
			chain_index = $6,
			block_hash = $7,
			tx_hash = $8,
			tx_out_idx = $9,
			declared_at = $10,
			tophash = $11,
			title = $12,
			extra = $13,
			metadata = $14,
			updated_at = now()
		WHERE iscc_id = $1 AND revision = $4 - 1
	`,
		rec.ID,
		rec.Code,
		rec.Actor,
		int64(rec.Revision),
		int64(rec.LedgerID),
		int64(rec.ChainIndex),
		rec.BlockHash,
		rec.TxHash,
		outIdxParam(rec.TxOutIdx),
		rec.DeclaredAt,
		rec.Tophash,
		rec.Title,
		rec.Extra,
		metadataParam(rec.Metadata),
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: iscc-id %s revision %d", storage.ErrConflict, rec.ID, rec.Revision)
	}
	return nil
}

func scanRecord(row pgx.Row) (model.IsccRecord, error) {
	var (
		rec        model.IsccRecord
		revision   int64
		ledgerID   int64
		chainIndex int64
		outIdx     *int64
		metadata   []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.Code,
		&rec.Actor,
		&revision,
		&ledgerID,
		&chainIndex,
		&rec.BlockHash,
		&rec.TxHash,
		&outIdx,
		&rec.DeclaredAt,
		&rec.Tophash,
		&rec.Title,
		&rec.Extra,
		&metadata,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return model.IsccRecord{}, err
	}
	rec.Revision = uint32(revision)
	rec.LedgerID = uint32(ledgerID)
	rec.ChainIndex = uint64(chainIndex)
	if outIdx != nil {
		v := uint32(*outIdx)
		rec.TxOutIdx = &v
	}
	if len(metadata) > 0 {
		rec.Metadata = metadata
	}
	rec.DeclaredAt = rec.DeclaredAt.UTC()
	return rec, nil
}

func outIdxParam(idx *uint32) *int64 {
	if idx == nil {
		return nil
	}
	v := int64(*idx)
	return &v
}

func metadataParam(metadata []byte) interface{} {
	if len(metadata) == 0 {
		return nil
	}
	return string(metadata)
}

// classify maps driver errors onto storage sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%w: %w", storage.ErrConflict, err)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "57P01", // admin_shutdown
			pgErr.Code == "57P03", // cannot_connect_now
			pgErr.Code == "53300": // too_many_connections
			return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return err
}

var _ storage.Store = (*Store)(nil)
