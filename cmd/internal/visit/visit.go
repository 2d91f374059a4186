package visit

import (
	"context"
	"time"

	"gatepass/cmd/internal/credential"
)

// Visit is the central entity: one visitor journey from invite/registration
// to departure. Credential hashes are nullable; they are cleared when the
// credential is invalidated (reject/cancel) and marked consumed on check-in.
type Visit struct {
	ID        string
	VisitorID string
	HostID    string
	Status    Status
	Purpose   *string

	ExpectedArrival *time.Time
	ActualArrival   *time.Time
	ActualDeparture *time.Time

	OTPHash              *string
	QRHash               *string
	CredentialConsumedAt *time.Time

	ConsentGiven bool
	ConsentAt    *time.Time

	WalkIn bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CredentialHash returns the stored hash for the given kind, or nil.
func (v Visit) CredentialHash(kind credential.Kind) *string {
	switch kind {
	case credential.KindOTP:
		return v.OTPHash
	case credential.KindQR:
		return v.QRHash
	}
	return nil
}

// CheckInRecord is the atomic consume-and-admit payload. The store must, in
// one conditional update: verify the visit still holds the presented
// credential unconsumed, verify the status transition is legal, consume the
// credential, enter checked_in, and stamp arrival + consent.
type CheckInRecord struct {
	VisitID string
	Kind    credential.Kind
	Hash    string
	Now     time.Time
}

// Filter narrows List results.
type Filter struct {
	Status *Status
	HostID *string
	Limit  int
	Offset int
}

// Stats is the dashboard summary.
type Stats struct {
	VisitorsToday    int
	PendingApprovals int
	CheckedIn        int
}

// Store is the persistence boundary for visits.
//
// Implementations must make every status-changing method a compare-and-swap
// on the expected prior status, returning ErrInvalidTransition (row
// unchanged) when the condition no longer holds.
type Store interface {
	// Create inserts a new visit row.
	Create(ctx context.Context, v Visit) (Visit, error)

	// GetByID loads a visit by id.
	GetByID(ctx context.Context, id string) (Visit, error)

	// GetByCredentialHash resolves an unconsumed credential of the given kind
	// to its visit. Only visits in pending/approved qualify; newest first on
	// the off chance of an OTP hash collision.
	GetByCredentialHash(ctx context.Context, kind credential.Kind, hash string) (Visit, error)

	// AttachCredential sets the credential hashes on a visit that has none.
	AttachCredential(ctx context.Context, visitID, otpHash, qrHash string, now time.Time) (Visit, error)

	// Approve transitions pending -> approved.
	Approve(ctx context.Context, visitID string, now time.Time) (Visit, error)

	// Reject transitions pending -> rejected and invalidates any credential.
	Reject(ctx context.Context, visitID string, now time.Time) (Visit, error)

	// Cancel transitions pending/approved -> cancelled and invalidates any
	// credential.
	Cancel(ctx context.Context, visitID string, now time.Time) (Visit, error)

	// CheckIn performs the atomic consume + admit step. Returns
	// credential.ErrAlreadyConsumed when the credential was burned by a
	// concurrent check-in, ErrInvalidTransition when the status changed.
	CheckIn(ctx context.Context, in CheckInRecord) (Visit, error)

	// CheckOut transitions checked_in -> checked_out and stamps departure.
	CheckOut(ctx context.Context, visitID string, now time.Time) (Visit, error)

	// List returns visits matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]Visit, error)

	// ListCheckedIn returns all currently checked-in visits ordered by actual
	// arrival ascending (muster order).
	ListCheckedIn(ctx context.Context) ([]Visit, error)

	// Stats returns dashboard counts; dayStart bounds "today".
	Stats(ctx context.Context, dayStart time.Time) (Stats, error)
}
