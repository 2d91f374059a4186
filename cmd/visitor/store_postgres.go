package visitor

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists visitors in PostgreSQL.
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
			return OpError{Op: "visitor.WithSchema", Kind: ErrInvalidInput}
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
		return nil, OpError{Op: "visitor.NewPostgresStore", Kind: ErrInvalidInput, Msg: "nil pool"}
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "visitors"}.Sanitize()
}

const visitorColumns = `id, phone, full_name, email, photo_url, created_at, updated_at`

func scanVisitor(row pgx.Row) (Visitor, error) {
	var v Visitor
	err := row.Scan(&v.ID, &v.Phone, &v.FullName, &v.Email, &v.PhotoURL, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// Create inserts a new visitor record.
func (s *PostgresStore) Create(ctx context.Context, v Visitor) (Visitor, error) {
	const op = "visitor.Create"
	if s == nil || s.pool == nil {
		return Visitor{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visitor{}, err
	}
	if strings.TrimSpace(v.ID) == "" || strings.TrimSpace(v.Phone) == "" {
		return Visitor{}, OpError{Op: op, Kind: ErrInvalidInput}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (`+visitorColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.Phone, v.FullName, v.Email, v.PhotoURL, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Visitor{}, OpError{Op: op, Kind: ErrConflict, Msg: "phone"}
		}
		return Visitor{}, err
	}
	return v, nil
}

// GetByID loads a visitor by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Visitor, error) {
	const op = "visitor.GetByID"
	if s == nil || s.pool == nil {
		return Visitor{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visitor{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Visitor{}, OpError{Op: op, Kind: ErrInvalidInput}
	}

	v, err := scanVisitor(s.pool.QueryRow(ctx,
		`SELECT `+visitorColumns+` FROM `+s.table()+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Visitor{}, OpError{Op: op, Kind: ErrNotFound}
		}
		return Visitor{}, err
	}
	return v, nil
}

// GetByPhone loads a visitor by normalized phone.
func (s *PostgresStore) GetByPhone(ctx context.Context, phone string) (Visitor, error) {
	const op = "visitor.GetByPhone"
	if s == nil || s.pool == nil {
		return Visitor{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visitor{}, err
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return Visitor{}, OpError{Op: op, Kind: ErrInvalidInput}
	}

	v, err := scanVisitor(s.pool.QueryRow(ctx,
		`SELECT `+visitorColumns+` FROM `+s.table()+` WHERE phone = $1`, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Visitor{}, OpError{Op: op, Kind: ErrNotFound}
		}
		return Visitor{}, err
	}
	return v, nil
}

// Update persists corrections to name/email/photo. Phone is immutable.
func (s *PostgresStore) Update(ctx context.Context, v Visitor) (Visitor, error) {
	const op = "visitor.Update"
	if s == nil || s.pool == nil {
		return Visitor{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visitor{}, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET full_name = $2, email = $3, photo_url = $4, updated_at = $5
		  WHERE id = $1`,
		v.ID, v.FullName, v.Email, v.PhotoURL, v.UpdatedAt,
	)
	if err != nil {
		return Visitor{}, err
	}
	if tag.RowsAffected() == 0 {
		return Visitor{}, OpError{Op: op, Kind: ErrNotFound}
	}
	return v, nil
}
