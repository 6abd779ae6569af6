package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"isccObserver/internal/model"
	"isccObserver/internal/storage"
)

//go:embed schema.sql
var schema string

const recordColumns = `
	iscc_id, iscc_code, actor, revision, ledger_id, chain_index, block_hash, tx_hash,
	tx_out_idx, declared_at, tophash, title, extra, metadata, created_at, updated_at`

// Store is a single-file SQLite store. Times are stored as unix nanoseconds.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens or creates the database at path and applies the schema.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx))
}

func (s *Store) GetOrCreateLedger(ctx context.Context, ledger model.Ledger) (model.Ledger, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ledgers (id, slug, url_template) VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, int64(ledger.ID), ledger.Slug, ledger.URLTemplate)
	if err != nil {
		return model.Ledger{}, false, classify(err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return model.Ledger{}, false, classify(err)
	}

	var (
		id     int64
		stored model.Ledger
	)
	row := s.db.QueryRowContext(ctx, `SELECT id, slug, url_template FROM ledgers WHERE id = ?`, int64(ledger.ID))
	if err := row.Scan(&id, &stored.Slug, &stored.URLTemplate); err != nil {
		return model.Ledger{}, false, classify(err)
	}
	stored.ID = uint32(id)
	return stored, inserted == 1, nil
}

func (s *Store) MaxChainIndex(ctx context.Context, ledgerID uint32) (uint64, bool, error) {
	var last sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT MAX(chain_index) FROM iscc_records WHERE ledger_id = ?`, int64(ledgerID))
	if err := row.Scan(&last); err != nil {
		return 0, false, classify(err)
	}
	if !last.Valid {
		return 0, false, nil
	}
	return uint64(last.Int64), true, nil
}

func (s *Store) ExistsByTxHash(ctx context.Context, ledgerID uint32, txHash string) (bool, error) {
	var exists bool
	row := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM iscc_records WHERE ledger_id = ? AND tx_hash = ?)
	`, int64(ledgerID), txHash)
	if err := row.Scan(&exists); err != nil {
		return false, classify(err)
	}
	return exists, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (model.IsccRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM iscc_records WHERE iscc_id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.IsccRecord{}, false, nil
		}
		return model.IsccRecord{}, false, classify(err)
	}
	return rec, true, nil
}

func (s *Store) Create(ctx context.Context, rec model.IsccRecord) error {
	now := s.now().UTC().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO iscc_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		rec.DeclaredAt.UTC().UnixNano(),
		rec.Tophash,
		rec.Title,
		rec.Extra,
		metadataParam(rec.Metadata),
		now,
		now,
	)
	return classify(err)
}

func (s *Store) Update(ctx context.Context, rec model.IsccRecord) error {
	if rec.Revision == 0 {
		return fmt.Errorf("%w: iscc-id %s revision 0", storage.ErrConflict, rec.ID)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE iscc_records SET
			iscc_code = ?,
			actor = ?,
			revision = ?,
			ledger_id = ?,
			chain_index = ?,
			block_hash = ?,
			tx_hash = ?,
			tx_out_idx = ?,
			declared_at = ?,
			tophash = ?,
			title = ?,
			extra = ?,
			metadata = ?,
			updated_at = ?
		WHERE iscc_id = ? AND revision = ?
	`,
		rec.Code,
		rec.Actor,
		int64(rec.Revision),
		int64(rec.LedgerID),
		int64(rec.ChainIndex),
		rec.BlockHash,
		rec.TxHash,
		outIdxParam(rec.TxOutIdx),
		rec.DeclaredAt.UTC().UnixNano(),
		rec.Tophash,
		rec.Title,
		rec.Extra,
		metadataParam(rec.Metadata),
		s.now().UTC().UnixNano(),
		rec.ID,
		int64(rec.Revision)-1,
	)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: iscc-id %s revision %d", storage.ErrConflict, rec.ID, rec.Revision)
	}
	return nil
}

func scanRecord(row *sql.Row) (model.IsccRecord, error) {
	var (
		rec        model.IsccRecord
		revision   int64
		ledgerID   int64
		chainIndex int64
		outIdx     sql.NullInt64
		declaredAt int64
		metadata   sql.NullString
		createdAt  int64
		updatedAt  int64
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
		&declaredAt,
		&rec.Tophash,
		&rec.Title,
		&rec.Extra,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return model.IsccRecord{}, err
	}
	rec.Revision = uint32(revision)
	rec.LedgerID = uint32(ledgerID)
	rec.ChainIndex = uint64(chainIndex)
	if outIdx.Valid {
		v := uint32(outIdx.Int64)
		rec.TxOutIdx = &v
	}
	rec.DeclaredAt = time.Unix(0, declaredAt).UTC()
	if metadata.Valid && metadata.String != "" {
		rec.Metadata = []byte(metadata.String)
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec, nil
}

func outIdxParam(idx *uint32) sql.NullInt64 {
	if idx == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*idx), Valid: true}
}

func metadataParam(metadata []byte) sql.NullString {
	if len(metadata) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(metadata), Valid: true}
}

// classify maps driver errors onto storage sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return fmt.Errorf("%w: %w", storage.ErrConflict, err)
		}
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
			return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return err
}

var _ storage.Store = (*Store)(nil)
