package visit

import (
	"context"
	"sort"
	"sync"
	"time"

	"gatepass/cmd/internal/credential"
)

// InMemoryStore is a dev/test fallback when DB is not configured. All
// compare-and-swap transitions run under one mutex, which gives the same
// exactly-one-winner guarantee the Postgres store gets from conditional
// updates.
type InMemoryStore struct {
	mu     sync.RWMutex
	visits map[string]Visit
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{visits: make(map[string]Visit)}
}

// Create inserts a new visit row.
func (s *InMemoryStore) Create(ctx context.Context, v Visit) (Visit, error) {
	const op = "visit.Create"
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	if v.ID == "" || v.VisitorID == "" || v.HostID == "" || !v.Status.Valid() {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visits[v.ID]; ok {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "duplicate id"}
	}
	s.visits[v.ID] = v
	return v, nil
}

// GetByID loads a visit by id.
func (s *InMemoryStore) GetByID(ctx context.Context, id string) (Visit, error) {
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.visits[id]
	if !ok {
		return Visit{}, OpError{Op: "visit.GetByID", Kind: ErrNotFound}
	}
	return v, nil
}

// GetByCredentialHash resolves an unconsumed credential to its visit.
func (s *InMemoryStore) GetByCredentialHash(ctx context.Context, kind credential.Kind, hash string) (Visit, error) {
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	if hash == "" {
		return Visit{}, OpError{Op: "visit.GetByCredentialHash", Kind: ErrInvalidInput}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *Visit
	for id := range s.visits {
		v := s.visits[id]
		if !credentialEligible(v) {
			continue
		}
		h := v.CredentialHash(kind)
		if h == nil || *h != hash {
			continue
		}
		if best == nil || v.CreatedAt.After(best.CreatedAt) {
			vv := v
			best = &vv
		}
	}
	if best == nil {
		return Visit{}, OpError{Op: "visit.GetByCredentialHash", Kind: ErrNotFound}
	}
	return *best, nil
}

func credentialEligible(v Visit) bool {
	if v.CredentialConsumedAt != nil {
		return false
	}
	return v.Status == StatusPending || v.Status == StatusApproved
}

// AttachCredential sets the credential hashes on a visit that has none.
func (s *InMemoryStore) AttachCredential(ctx context.Context, visitID, otpHash, qrHash string, now time.Time) (Visit, error) {
	const op = "visit.AttachCredential"
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[visitID]
	if !ok {
		return Visit{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if v.OTPHash != nil || v.QRHash != nil {
		return v, nil // already issued; keep the original credential
	}
	v.OTPHash = &otpHash
	v.QRHash = &qrHash
	v.UpdatedAt = now
	s.visits[visitID] = v
	return v, nil
}

// Approve transitions pending -> approved.
func (s *InMemoryStore) Approve(ctx context.Context, visitID string, now time.Time) (Visit, error) {
	return s.transition(ctx, "visit.Approve", visitID, StatusApproved, now, nil)
}

// Reject transitions pending -> rejected and invalidates any credential.
func (s *InMemoryStore) Reject(ctx context.Context, visitID string, now time.Time) (Visit, error) {
	return s.transition(ctx, "visit.Reject", visitID, StatusRejected, now, invalidateCredential)
}

// Cancel transitions pending/approved -> cancelled and invalidates any
// credential.
func (s *InMemoryStore) Cancel(ctx context.Context, visitID string, now time.Time) (Visit, error) {
	return s.transition(ctx, "visit.Cancel", visitID, StatusCancelled, now, invalidateCredential)
}

// CheckOut transitions checked_in -> checked_out and stamps departure.
func (s *InMemoryStore) CheckOut(ctx context.Context, visitID string, now time.Time) (Visit, error) {
	return s.transition(ctx, "visit.CheckOut", visitID, StatusCheckedOut, now, func(v *Visit, now time.Time) {
		v.ActualDeparture = &now
	})
}

func invalidateCredential(v *Visit, _ time.Time) {
	v.OTPHash = nil
	v.QRHash = nil
}

func (s *InMemoryStore) transition(ctx context.Context, op, visitID string, to Status, now time.Time, mutate func(*Visit, time.Time)) (Visit, error) {
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[visitID]
	if !ok {
		return Visit{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if !CanTransition(v.Status, to, v.WalkIn) {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidTransition, Msg: string(v.Status) + " -> " + string(to)}
	}
	v.Status = to
	v.UpdatedAt = now
	if mutate != nil {
		mutate(&v, now)
	}
	s.visits[visitID] = v
	return v, nil
}

// CheckIn performs the atomic consume + admit step under the store mutex.
func (s *InMemoryStore) CheckIn(ctx context.Context, in CheckInRecord) (Visit, error) {
	const op = "visit.CheckIn"
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	if in.VisitID == "" || in.Hash == "" {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[in.VisitID]
	if !ok {
		return Visit{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if v.CredentialConsumedAt != nil {
		return Visit{}, credential.ErrAlreadyConsumed
	}
	h := v.CredentialHash(in.Kind)
	if h == nil || *h != in.Hash {
		return Visit{}, credential.ErrInvalidCredential
	}
	if !CanTransition(v.Status, StatusCheckedIn, v.WalkIn) {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidTransition, Msg: string(v.Status) + " -> checked_in"}
	}

	v.Status = StatusCheckedIn
	v.ActualArrival = &now
	v.ConsentGiven = true
	v.ConsentAt = &now
	v.CredentialConsumedAt = &now
	v.UpdatedAt = now
	s.visits[in.VisitID] = v
	return v, nil
}

// List returns visits matching the filter, newest first.
func (s *InMemoryStore) List(ctx context.Context, f Filter) ([]Visit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	out := make([]Visit, 0, len(s.visits))
	for id := range s.visits {
		v := s.visits[id]
		if f.Status != nil && v.Status != *f.Status {
			continue
		}
		if f.HostID != nil && v.HostID != *f.HostID {
			continue
		}
		out = append(out, v)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListCheckedIn returns checked-in visits in muster order (arrival ascending).
func (s *InMemoryStore) ListCheckedIn(ctx context.Context) ([]Visit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Visit, 0, 32)
	for id := range s.visits {
		v := s.visits[id]
		if v.Status == StatusCheckedIn {
			out = append(out, v)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ActualArrival, out[j].ActualArrival
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return out, nil
}

// Stats returns dashboard counts.
func (s *InMemoryStore) Stats(ctx context.Context, dayStart time.Time) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var st Stats
	seen := make(map[string]struct{})
	for id := range s.visits {
		v := s.visits[id]
		if !v.CreatedAt.Before(dayStart) {
			if _, ok := seen[v.VisitorID]; !ok {
				seen[v.VisitorID] = struct{}{}
				st.VisitorsToday++
			}
		}
		switch v.Status {
		case StatusPending:
			st.PendingApprovals++
		case StatusCheckedIn:
			st.CheckedIn++
		}
	}
	return st, nil
}
