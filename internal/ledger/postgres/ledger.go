package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/lib/pq"

	"certreg/internal/ledger"
	"certreg/pkg/address"
	dErrors "certreg/pkg/domain-errors"
	txcontext "certreg/pkg/platform/tx"
	"certreg/pkg/platform/sentinel"
)

const (
	defaultTxTimeout = 5 * time.Second

	uniqueViolation = "23505"
)

// Schema creates the single records table. Every record kind shares it; the
// address is the primary key, which is what makes creation exclusive.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_records (
	address    TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	data       JSONB NOT NULL,
	tags       TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ledger_records_tags_idx ON ledger_records USING GIN (tags);
`

// Ledger persists records in PostgreSQL. Reads inside a transaction take a row
// lock (FOR UPDATE) so read-modify-write on one address is serialized.
type Ledger struct {
	db      *sql.DB
	timeout time.Duration
}

// Open connects through the pgx stdlib driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTxTimeout bounds transactions whose context carries no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.timeout = d
	}
}

func New(db *sql.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Health pings the database.
func (l *Ledger) Health(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Migrate applies Schema.
func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	return nil
}

func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := l.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	txCtx := txcontext.WithTx(ctx, sqlTx)
	if err := fn(txCtx, &pgTx{}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, addr address.Address) (ledger.Record, error) {
	return getRecord(ctx, l.db, addr, false)
}

func (l *Ledger) ListByTag(ctx context.Context, kind ledger.Kind, tag string) ([]ledger.Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT kind, data, tags
		FROM ledger_records
		WHERE kind = $1 AND tags @> $2
		ORDER BY created_at, address
	`, string(kind), pq.Array([]string{tag}))
	if err != nil {
		return nil, fmt.Errorf("list records by tag: %w", err)
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// pgTx routes every statement through the *sql.Tx carried in the context.
type pgTx struct{}

func (t *pgTx) execer(ctx context.Context) (dbExecutor, error) {
	tx, ok := txcontext.From(ctx)
	if !ok {
		return nil, fmt.Errorf("ledger tx: no transaction in context")
	}
	return tx, nil
}

func (t *pgTx) Get(ctx context.Context, addr address.Address) (ledger.Record, error) {
	exec, err := t.execer(ctx)
	if err != nil {
		return ledger.Record{}, err
	}
	return getRecord(ctx, exec, addr, true)
}

func (t *pgTx) Create(ctx context.Context, addr address.Address, rec ledger.Record) error {
	exec, err := t.execer(ctx)
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO ledger_records (address, kind, data, tags)
		VALUES ($1, $2, $3, $4)
	`, addr.String(), string(rec.Kind), rec.Data, pq.Array(tags(rec)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

func (t *pgTx) Put(ctx context.Context, addr address.Address, rec ledger.Record) error {
	exec, err := t.execer(ctx)
	if err != nil {
		return err
	}
	res, err := exec.ExecContext(ctx, `
		UPDATE ledger_records
		SET kind = $2, data = $3, tags = $4, updated_at = now()
		WHERE address = $1
	`, addr.String(), string(rec.Kind), rec.Data, pq.Array(tags(rec)))
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q rowQuerier, addr address.Address, forUpdate bool) (ledger.Record, error) {
	query := `SELECT kind, data, tags FROM ledger_records WHERE address = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rec, err := scanRecord(q.QueryRowContext(ctx, query, addr.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Record{}, sentinel.ErrNotFound
		}
		return ledger.Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (ledger.Record, error) {
	var (
		kind string
		data []byte
		tags pq.StringArray
	)
	if err := row.Scan(&kind, &data, &tags); err != nil {
		return ledger.Record{}, err
	}
	return ledger.Record{Kind: ledger.Kind(kind), Data: data, Tags: []string(tags)}, nil
}

func tags(rec ledger.Record) []string {
	if rec.Tags == nil {
		return []string{}
	}
	return rec.Tags
}
