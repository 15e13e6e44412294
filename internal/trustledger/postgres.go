package trustledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls across every vitalsd instance sharing a database.
const advisoryLockKey = int64(2_024_061_117)

const selectBlock = `SELECT idx, prev_hash, hash, payload, ts, nonce FROM trust_ledger`

// PostgresLedger persists the hash chain to a PostgreSQL database.
// It implements the Ledger interface.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLedger creates a PostgresLedger backed by the given connection pool.
// Call EnsureGenesis once at startup before serving appends.
func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger}
}

// EnsureGenesis inserts the genesis block when the table is empty.
func (l *PostgresLedger) EnsureGenesis(ctx context.Context) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var n int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM trust_ledger").Scan(&n); err != nil {
		return fmt.Errorf("count ledger blocks: %w", err)
	}
	if n > 0 {
		return nil
	}

	genesis, err := newGenesis(time.Now())
	if err != nil {
		return err
	}
	if err := insertBlock(ctx, tx, genesis); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}
	l.logger.Info("ledger genesis block created", zap.String("hash", genesis.Hash))
	return nil
}

// Append implements Ledger.
// It acquires a PostgreSQL advisory lock, reads the chain tail, seals the new
// block, and inserts it, all within a single transaction.
func (l *PostgresLedger) Append(ctx context.Context, subjectID, storageHandle, action string) (*Block, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The lock is released when the transaction commits or rolls back.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var prevIdx int
	var prevHash string
	if err := tx.QueryRow(ctx,
		"SELECT idx, hash FROM trust_ledger ORDER BY idx DESC LIMIT 1",
	).Scan(&prevIdx, &prevHash); err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}

	b, err := newBlock(prevIdx+1, prevHash, FormatPayload(subjectID, storageHandle, action), time.Now())
	if err != nil {
		return nil, err
	}
	if err := insertBlock(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ledger tx: %w", err)
	}

	l.logger.Debug("ledger block appended",
		zap.Int("idx", b.Index),
		zap.String("hash", b.Hash),
	)
	return b, nil
}

func insertBlock(ctx context.Context, tx pgx.Tx, b *Block) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO trust_ledger (idx, prev_hash, hash, payload, ts, nonce)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.Index, b.PrevHash, b.Hash, b.Payload, b.Timestamp, b.Nonce,
	); err != nil {
		return fmt.Errorf("insert ledger block: %w", err)
	}
	return nil
}

func scanBlock(row pgx.Row) (*Block, error) {
	b := &Block{}
	if err := row.Scan(&b.Index, &b.PrevHash, &b.Hash, &b.Payload, &b.Timestamp, &b.Nonce); err != nil {
		return nil, err
	}
	b.Timestamp = b.Timestamp.UTC()
	return b, nil
}

// Chain implements Ledger. O(n) in ledger length.
func (l *PostgresLedger) Chain(ctx context.Context) ([]Block, error) {
	rows, err := l.pool.Query(ctx, selectBlock+` ORDER BY idx ASC`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Get implements Ledger.
func (l *PostgresLedger) Get(ctx context.Context, index int) (*Block, error) {
	b, err := scanBlock(l.pool.QueryRow(ctx, selectBlock+` WHERE idx = $1`, index))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("index %d out of range", index)
		}
		return nil, fmt.Errorf("get ledger block %d: %w", index, err)
	}
	return b, nil
}

// Len implements Ledger.
func (l *PostgresLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM trust_ledger").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger blocks: %w", err)
	}
	return n, nil
}

// Verify implements Ledger.
func (l *PostgresLedger) Verify(ctx context.Context) error {
	chain, err := l.Chain(ctx)
	if err != nil {
		return err
	}
	return VerifyBlocks(chain)
}

// Root implements Ledger.
func (l *PostgresLedger) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM trust_ledger ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get ledger root: %w", err)
	}
	return hash, nil
}
