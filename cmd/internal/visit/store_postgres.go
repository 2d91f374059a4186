package visit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gatepass/cmd/internal/credential"
)

// PostgresStore persists visits in PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Every transition is a conditional UPDATE ... RETURNING keyed on the
//   expected prior status, so concurrent writers on the same row get
//   exactly one winner without explicit row locks.
// - After a failed conditional update, a follow-up SELECT distinguishes
//   not-found from wrong-state so callers get precise sentinel kinds.
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
			return OpError{Op: "visit.WithSchema", Kind: ErrInvalidInput}
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
		return nil, OpError{Op: "visit.NewPostgresStore", Kind: ErrInvalidInput, Msg: "nil pool"}
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "visits"}.Sanitize()
}

const visitColumns = `id, visitor_id, host_id, status, purpose,
	expected_arrival, actual_arrival, actual_departure,
	otp_hash, qr_hash, credential_consumed_at,
	consent_given, consent_at, walk_in, created_at, updated_at`

func scanVisit(row pgx.Row) (Visit, error) {
	var v Visit
	var status string
	err := row.Scan(
		&v.ID, &v.VisitorID, &v.HostID, &status, &v.Purpose,
		&v.ExpectedArrival, &v.ActualArrival, &v.ActualDeparture,
		&v.OTPHash, &v.QRHash, &v.CredentialConsumedAt,
		&v.ConsentGiven, &v.ConsentAt, &v.WalkIn, &v.CreatedAt, &v.UpdatedAt,
	)
	v.Status = Status(status)
	return v, err
}

// Create inserts a new visit row.
func (s *PostgresStore) Create(ctx context.Context, v Visit) (Visit, error) {
	const op = "visit.Create"
	if s == nil || s.pool == nil {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	if v.ID == "" || v.VisitorID == "" || v.HostID == "" || !v.Status.Valid() {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (`+visitColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		v.ID, v.VisitorID, v.HostID, string(v.Status), v.Purpose,
		v.ExpectedArrival, v.ActualArrival, v.ActualDeparture,
		v.OTPHash, v.QRHash, v.CredentialConsumedAt,
		v.ConsentGiven, v.ConsentAt, v.WalkIn, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return Visit{}, err
	}
	return v, nil
}

// GetByID loads a visit by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Visit, error) {
	const op = "visit.GetByID"
	if s == nil || s.pool == nil {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}

	v, err := scanVisit(s.pool.QueryRow(ctx,
		`SELECT `+visitColumns+` FROM `+s.table()+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Visit{}, OpError{Op: op, Kind: ErrNotFound}
		}
		return Visit{}, err
	}
	return v, nil
}

// GetByCredentialHash resolves an unconsumed credential to its visit.
func (s *PostgresStore) GetByCredentialHash(ctx context.Context, kind credential.Kind, hash string) (Visit, error) {
	const op = "visit.GetByCredentialHash"
	if s == nil || s.pool == nil {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	col := "otp_hash"
	if kind == credential.KindQR {
		col = "qr_hash"
	}

	v, err := scanVisit(s.pool.QueryRow(ctx,
		`SELECT `+visitColumns+`
		   FROM `+s.table()+`
		  WHERE `+col+` = $1
		    AND credential_consumed_at IS NULL
		    AND status IN ('pending', 'approved')
		  ORDER BY created_at DESC
		  LIMIT 1`, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Visit{}, OpError{Op: op, Kind: ErrNotFound}
		}
		return Visit{}, err
	}
	return v, nil
}

// AttachCredential sets the credential hashes on a visit that has none.
// A visit that already holds a credential is returned unchanged.
func (s *PostgresStore) AttachCredential(ctx context.Context, visitID, otpHash, qrHash string, now time.Time) (Visit, error) {
	const op = "visit.AttachCredential"
	if s == nil || s.pool == nil {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}

	v, err := scanVisit(s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET otp_hash = $2, qr_hash = $3, updated_at = $4
		  WHERE id = $1 AND otp_hash IS NULL AND qr_hash IS NULL
		RETURNING `+visitColumns, visitID, otpHash, qrHash, now))
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Visit{}, err
	}
	return s.GetByID(ctx, visitID)
}

// Approve transitions pending -> approved.
func (s *PostgresStore) Approve(ctx context.Context, visitID string, now time.Time) (Visit, error) {
	return s.transition(ctx, "visit.Approve", visitID, now,
		`UPDATE `+s.table()+`
		    SET status = 'approved', updated_at = $2
		  WHERE id = $1 AND status = 'pending'
		RETURNING `+visitColumns)
}

// Reject transitions pending -> rejected and invalidates any credential.
func (s *PostgresStore) Reject(ctx context.Context, visitID string, now time.Time) (Visit, error) {
	return s.transition(ctx, "visit.Reject", visitID, now,
		`UPDATE `+s.table()+`
		    SET status = 'rejected', otp_hash = NULL, qr_hash = NULL, updated_at = $2
		  WHERE id = $1 AND status = 'pending'
		RETURNING `+visitColumns)
}

// Cancel transitions pending/approved -> cancelled and invalidates any
// credential.
func (s *PostgresStore) Cancel(ctx context.Context, visitID string, now time.Time) (Visit, error) {
	return s.transition(ctx, "visit.Cancel", visitID, now,
		`UPDATE `+s.table()+`
		    SET status = 'cancelled', otp_hash = NULL, qr_hash = NULL, updated_at = $2
		  WHERE id = $1 AND status IN ('pending', 'approved')
		RETURNING `+visitColumns)
}

// CheckOut transitions checked_in -> checked_out and stamps departure.
func (s *PostgresStore) CheckOut(ctx context.Context, visitID string, now time.Time) (Visit, error) {
	return s.transition(ctx, "visit.CheckOut", visitID, now,
		`UPDATE `+s.table()+`
		    SET status = 'checked_out', actual_departure = $2, updated_at = $2
		  WHERE id = $1 AND status = 'checked_in'
		RETURNING `+visitColumns)
}

func (s *PostgresStore) transition(ctx context.Context, op, visitID string, now time.Time, sql string) (Visit, error) {
	if s == nil || s.pool == nil {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	visitID = strings.TrimSpace(visitID)
	if visitID == "" {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	v, err := scanVisit(s.pool.QueryRow(ctx, sql, visitID, now))
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Visit{}, err
	}

	// Distinguish not-found vs wrong-state.
	cur, selErr := s.GetByID(ctx, visitID)
	if selErr != nil {
		return Visit{}, selErr
	}
	return Visit{}, OpError{Op: op, Kind: ErrInvalidTransition, Msg: "status " + string(cur.Status)}
}

// CheckIn performs the atomic consume + admit step as one conditional update.
func (s *PostgresStore) CheckIn(ctx context.Context, in CheckInRecord) (Visit, error) {
	const op = "visit.CheckIn"
	if s == nil || s.pool == nil {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	if strings.TrimSpace(in.VisitID) == "" || strings.TrimSpace(in.Hash) == "" {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	col := "otp_hash"
	if in.Kind == credential.KindQR {
		col = "qr_hash"
	}

	v, err := scanVisit(s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET status = 'checked_in',
		        actual_arrival = $3,
		        consent_given = TRUE,
		        consent_at = $3,
		        credential_consumed_at = $3,
		        updated_at = $3
		  WHERE id = $1
		    AND `+col+` = $2
		    AND credential_consumed_at IS NULL
		    AND (status = 'approved' OR (status = 'pending' AND NOT walk_in))
		RETURNING `+visitColumns, in.VisitID, in.Hash, now))
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Visit{}, err
	}

	// Lost the race or the credential is gone: report precisely.
	cur, selErr := s.GetByID(ctx, in.VisitID)
	if selErr != nil {
		return Visit{}, selErr
	}
	switch {
	case cur.CredentialConsumedAt != nil:
		return Visit{}, credential.ErrAlreadyConsumed
	case cur.CredentialHash(in.Kind) == nil || *cur.CredentialHash(in.Kind) != in.Hash:
		return Visit{}, credential.ErrInvalidCredential
	default:
		return Visit{}, OpError{Op: op, Kind: ErrInvalidTransition, Msg: "status " + string(cur.Status)}
	}
}

// List returns visits matching the filter, newest first.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Visit, error) {
	const op = "visit.List"
	if s == nil || s.pool == nil {
		return nil, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var status, host *string
	if f.Status != nil {
		v := string(*f.Status)
		status = &v
	}
	if f.HostID != nil {
		host = f.HostID
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+visitColumns+`
		   FROM `+s.table()+`
		  WHERE ($1::text IS NULL OR status = $1)
		    AND ($2::text IS NULL OR host_id = $2)
		  ORDER BY created_at DESC
		  LIMIT $3 OFFSET $4`, status, host, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows)
}

// ListCheckedIn returns checked-in visits in muster order (arrival ascending).
func (s *PostgresStore) ListCheckedIn(ctx context.Context) ([]Visit, error) {
	const op = "visit.ListCheckedIn"
	if s == nil || s.pool == nil {
		return nil, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+visitColumns+`
		   FROM `+s.table()+`
		  WHERE status = 'checked_in'
		  ORDER BY actual_arrival ASC NULLS LAST`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows)
}

func collectVisits(rows pgx.Rows) ([]Visit, error) {
	var out []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Stats returns dashboard counts.
func (s *PostgresStore) Stats(ctx context.Context, dayStart time.Time) (Stats, error) {
	const op = "visit.Stats"
	if s == nil || s.pool == nil {
		return Stats{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(DISTINCT visitor_id) FROM `+s.table()+` WHERE created_at >= $1),
		   (SELECT COUNT(*) FROM `+s.table()+` WHERE status = 'pending'),
		   (SELECT COUNT(*) FROM `+s.table()+` WHERE status = 'checked_in')`,
		dayStart,
	).Scan(&st.VisitorsToday, &st.PendingApprovals, &st.CheckedIn)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}
