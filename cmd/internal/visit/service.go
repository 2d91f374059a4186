package visit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gatepass/cmd/internal/actor"
	"gatepass/cmd/internal/blacklist"
	"gatepass/cmd/internal/credential"
	"gatepass/cmd/internal/ids"
	"gatepass/cmd/internal/notify"
	"gatepass/cmd/visitor"
)

// BlockChecker is the slice of the blacklist gate the service needs at
// invite time. The coordinator re-checks at admission; this early check only
// spares residents inviting someone who can never enter.
type BlockChecker interface {
	IsBlocked(ctx context.Context, visitorID, phone string) (bool, error)
}

// Service implements visit creation and the resident approval workflow.
type Service struct {
	store    Store
	visitors visitor.Store
	blocked  BlockChecker
	sink     notify.Sink
	log      *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, visitors visitor.Store, blocked BlockChecker, sink notify.Sink, log *slog.Logger) (*Service, error) {
	if store == nil || visitors == nil || blocked == nil {
		return nil, OpError{Op: "visit.NewService", Kind: ErrInvalidInput}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, visitors: visitors, blocked: blocked, sink: sink, log: log}, nil
}

// InviteInput describes a resident-issued pre-invite.
type InviteInput struct {
	Actor           actor.Actor
	VisitorPhone    string
	VisitorName     string
	VisitorEmail    *string
	Purpose         *string
	ExpectedArrival *time.Time
	Now             time.Time
}

// WalkInInput describes a guard-registered walk-in.
type WalkInInput struct {
	Actor        actor.Actor
	HostID       string
	VisitorPhone string
	VisitorName  string
	Purpose      *string
	Now          time.Time
}

// CreateInvite creates a visit in approved state with a fresh credential.
// The plain OTP/QR codes are returned exactly once, here.
func (s *Service) CreateInvite(ctx context.Context, in InviteInput) (Visit, credential.Issued, error) {
	const op = "visit.CreateInvite"
	if s == nil || s.store == nil {
		return Visit{}, credential.Issued{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visit{}, credential.Issued{}, err
	}
	if !in.Actor.HasAnyRole(actor.RoleResident, actor.RoleAdmin) {
		return Visit{}, credential.Issued{}, actor.ErrForbidden
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	vis, err := visitor.GetOrCreate(ctx, s.visitors, visitor.NewVisitorInput{
		Phone:    in.VisitorPhone,
		FullName: in.VisitorName,
		Email:    in.VisitorEmail,
		Now:      now,
	})
	if err != nil {
		return Visit{}, credential.Issued{}, err
	}

	// Courtesy early check; admission re-checks regardless.
	blocked, err := s.blocked.IsBlocked(ctx, vis.ID, vis.Phone)
	if err != nil {
		return Visit{}, credential.Issued{}, err
	}
	if blocked {
		return Visit{}, credential.Issued{}, blacklist.ErrBlocked
	}

	issued, err := credential.Issue()
	if err != nil {
		return Visit{}, credential.Issued{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Visit{}, credential.Issued{}, err
	}

	v := Visit{
		ID:              id,
		VisitorID:       vis.ID,
		HostID:          in.Actor.ID,
		Status:          StatusApproved,
		Purpose:         trimPtr(in.Purpose),
		ExpectedArrival: in.ExpectedArrival,
		OTPHash:         &issued.OTPHash,
		QRHash:          &issued.QRHash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	v, err = s.store.Create(ctx, v)
	if err != nil {
		return Visit{}, credential.Issued{}, err
	}

	s.log.Info("visit.invite.created", "visit_id", v.ID, "host_id", v.HostID)
	return v, issued, nil
}

// CreateWalkIn registers a walk-in as pending and alerts the chosen host.
// No credential is issued; approval does that.
func (s *Service) CreateWalkIn(ctx context.Context, in WalkInInput) (Visit, error) {
	const op = "visit.CreateWalkIn"
	if s == nil || s.store == nil {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	if !in.Actor.IsGate() {
		return Visit{}, actor.ErrForbidden
	}
	hostID := strings.TrimSpace(in.HostID)
	if hostID == "" {
		return Visit{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "host required"}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	vis, err := visitor.GetOrCreate(ctx, s.visitors, visitor.NewVisitorInput{
		Phone:    in.VisitorPhone,
		FullName: in.VisitorName,
		Now:      now,
	})
	if err != nil {
		return Visit{}, err
	}

	blocked, err := s.blocked.IsBlocked(ctx, vis.ID, vis.Phone)
	if err != nil {
		return Visit{}, err
	}
	if blocked {
		return Visit{}, blacklist.ErrBlocked
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Visit{}, err
	}
	purpose := trimPtr(in.Purpose)
	if purpose == nil {
		p := "Walk-in"
		purpose = &p
	}

	v := Visit{
		ID:        id,
		VisitorID: vis.ID,
		HostID:    hostID,
		Status:    StatusPending,
		Purpose:   purpose,
		WalkIn:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	v, err = s.store.Create(ctx, v)
	if err != nil {
		return Visit{}, err
	}

	if s.sink != nil {
		s.sink.Publish(ctx, notify.Event{
			Type:         notify.TypeWalkinPending,
			HostID:       hostID,
			VisitID:      v.ID,
			VisitorName:  vis.FullName,
			VisitorPhone: vis.Phone,
			Body:         vis.FullName + " is at the gate. Approve or reject from the app.",
			At:           now,
		})
	}
	s.log.Info("visit.walkin.created", "visit_id", v.ID, "host_id", hostID)
	return v, nil
}

// Approve transitions a pending walk-in to approved and issues a credential
// if the visit has none. Only the designated host may approve; concurrent
// approve/reject yields exactly one winner via the store CAS.
func (s *Service) Approve(ctx context.Context, visitID string, a actor.Actor, now time.Time) (Visit, *credential.Issued, error) {
	if s == nil || s.store == nil {
		return Visit{}, nil, OpError{Op: "visit.Approve", Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visit{}, nil, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	cur, err := s.store.GetByID(ctx, visitID)
	if err != nil {
		return Visit{}, nil, err
	}
	if cur.HostID != a.ID {
		return Visit{}, nil, actor.ErrForbidden
	}

	v, err := s.store.Approve(ctx, visitID, now)
	if err != nil {
		return Visit{}, nil, err
	}

	if v.OTPHash == nil && v.QRHash == nil {
		issued, err := credential.Issue()
		if err != nil {
			return Visit{}, nil, err
		}
		v, err = s.store.AttachCredential(ctx, visitID, issued.OTPHash, issued.QRHash, now)
		if err != nil {
			return Visit{}, nil, err
		}
		s.log.Info("visit.approved", "visit_id", v.ID, "credential_issued", true)
		return v, &issued, nil
	}

	s.log.Info("visit.approved", "visit_id", v.ID, "credential_issued", false)
	return v, nil, nil
}

// Reject transitions a pending walk-in to rejected and invalidates any
// issued credential. Only the designated host may reject.
func (s *Service) Reject(ctx context.Context, visitID string, a actor.Actor, now time.Time) (Visit, error) {
	if s == nil || s.store == nil {
		return Visit{}, OpError{Op: "visit.Reject", Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	cur, err := s.store.GetByID(ctx, visitID)
	if err != nil {
		return Visit{}, err
	}
	if cur.HostID != a.ID {
		return Visit{}, actor.ErrForbidden
	}

	v, err := s.store.Reject(ctx, visitID, now)
	if err != nil {
		return Visit{}, err
	}
	s.log.Info("visit.rejected", "visit_id", v.ID)
	return v, nil
}

// Cancel withdraws a visit before arrival. Host or admin.
func (s *Service) Cancel(ctx context.Context, visitID string, a actor.Actor, now time.Time) (Visit, error) {
	if s == nil || s.store == nil {
		return Visit{}, OpError{Op: "visit.Cancel", Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Visit{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	cur, err := s.store.GetByID(ctx, visitID)
	if err != nil {
		return Visit{}, err
	}
	if cur.HostID != a.ID && !a.IsAdmin() {
		return Visit{}, actor.ErrForbidden
	}

	v, err := s.store.Cancel(ctx, visitID, now)
	if err != nil {
		return Visit{}, err
	}
	s.log.Info("visit.cancelled", "visit_id", v.ID)
	return v, nil
}

// Get loads a visit; hosts see their own, gate and admin roles see all.
func (s *Service) Get(ctx context.Context, visitID string, a actor.Actor) (Visit, error) {
	v, err := s.store.GetByID(ctx, visitID)
	if err != nil {
		return Visit{}, err
	}
	if v.HostID != a.ID && !a.IsGate() {
		return Visit{}, actor.ErrForbidden
	}
	return v, nil
}

// List returns visits. Residents are scoped to their own hosted visits;
// gate and admin roles may filter freely.
func (s *Service) List(ctx context.Context, f Filter, a actor.Actor) ([]Visit, error) {
	if !a.IsGate() {
		f.HostID = &a.ID
	}
	return s.store.List(ctx, f)
}

// MyRequests returns pending walk-ins awaiting the actor's approval.
func (s *Service) MyRequests(ctx context.Context, a actor.Actor) ([]Visit, error) {
	pending := StatusPending
	return s.store.List(ctx, Filter{Status: &pending, HostID: &a.ID, Limit: 20})
}

// Stats returns the dashboard summary. "Today" starts at UTC midnight.
func (s *Service) Stats(ctx context.Context, now time.Time) (Stats, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.store.Stats(ctx, dayStart)
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
