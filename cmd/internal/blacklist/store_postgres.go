package blacklist

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists deny entries in PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "gatepass").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return OpError{Op: "blacklist.WithSchema", Kind: ErrInvalidInput}
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "gatepass"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, OpError{Op: "blacklist.NewPostgresStore", Kind: ErrInvalidInput, Msg: "nil pool"}
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "blacklist"}.Sanitize()
}

const entryColumns = `id, visitor_id, phone, reason, created_by, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.VisitorID, &e.Phone, &e.Reason, &e.CreatedBy, &e.CreatedAt)
	return e, err
}

// Upsert inserts the entry unless one already exists for the visitor, in
// which case the existing row is returned unchanged.
func (s *PostgresStore) Upsert(ctx context.Context, e Entry) (Entry, error) {
	const op = "blacklist.Upsert"
	if s == nil || s.pool == nil {
		return Entry{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	if strings.TrimSpace(e.VisitorID) == "" {
		return Entry{}, OpError{Op: op, Kind: ErrInvalidInput}
	}

	got, err := scanEntry(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table()+` (`+entryColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (visitor_id) DO UPDATE SET visitor_id = EXCLUDED.visitor_id
		 RETURNING `+entryColumns,
		e.ID, e.VisitorID, e.Phone, e.Reason, e.CreatedBy, e.CreatedAt,
	))
	if err != nil {
		return Entry{}, err
	}
	return got, nil
}

// DeleteByVisitor removes a visitor's entry. ErrNotFound when absent.
func (s *PostgresStore) DeleteByVisitor(ctx context.Context, visitorID string) error {
	const op = "blacklist.DeleteByVisitor"
	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table()+` WHERE visitor_id = $1`, visitorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound}
	}
	return nil
}

// Match reports any entry for the visitor id or the phone.
func (s *PostgresStore) Match(ctx context.Context, visitorID, phone string) (bool, error) {
	const op = "blacklist.Match"
	if s == nil || s.pool == nil {
		return false, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var blocked bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM `+s.table()+`
		     WHERE visitor_id = $1 OR ($2 <> '' AND phone = $2)
		 )`, visitorID, phone).Scan(&blocked)
	if err != nil {
		return false, err
	}
	return blocked, nil
}

// List returns all entries, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	const op = "blacklist.List"
	if s == nil || s.pool == nil {
		return nil, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM `+s.table()+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
