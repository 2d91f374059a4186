package gate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gatepass/cmd/internal/actor"
	"gatepass/cmd/internal/blacklist"
	"gatepass/cmd/internal/credential"
	"gatepass/cmd/internal/notify"
	"gatepass/cmd/internal/visit"
	"gatepass/cmd/visitor"
)

// Blocklist is the live block check consulted during admission.
type Blocklist interface {
	IsBlocked(ctx context.Context, visitorID, phone string) (bool, error)
}

// Metrics receives admission outcomes. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Admitted()
	Denied(reason string)
	Departed()
}

// Denial reason labels reported to Metrics.
const (
	DenyInvalidCredential = "invalid_credential"
	DenyAlreadyConsumed   = "already_consumed"
	DenyConsentRequired   = "consent_required"
	DenyBlacklisted       = "blacklisted"
	DenyOutsideWindow     = "outside_window"
	DenyInvalidTransition = "invalid_transition"
	DenyBusy              = "busy"
)

type nopMetrics struct{}

func (nopMetrics) Admitted()     {}
func (nopMetrics) Denied(string) {}
func (nopMetrics) Departed()     {}

// Coordinator serializes admissions per visit and applies the gate policy
// in a fixed order: credential, consent, blacklist, arrival window, then the
// store's single compare-and-swap.
type Coordinator struct {
	visits   visit.Store
	visitors visitor.Store
	blocked  Blocklist
	locks    *keyedLocks
	sink     notify.Sink
	metrics  Metrics
	log      *slog.Logger

	window time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithArrivalWindow overrides the default arrival window buffer.
func WithArrivalWindow(d time.Duration) Option {
	return func(c *Coordinator) error {
		if d <= 0 {
			return errors.New("gate: arrival window must be positive")
		}
		c.window = d
		return nil
	}
}

// WithLockWait bounds the per-visit lock acquisition.
func WithLockWait(d time.Duration) Option {
	return func(c *Coordinator) error {
		if d <= 0 {
			return errors.New("gate: lock wait must be positive")
		}
		c.locks = newKeyedLocks(d)
		return nil
	}
}

// WithMetrics attaches admission metrics.
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) error {
		if m != nil {
			c.metrics = m
		}
		return nil
	}
}

// WithSink attaches the notification sink for arrival events.
func WithSink(s notify.Sink) Option {
	return func(c *Coordinator) error {
		c.sink = s
		return nil
	}
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(visits visit.Store, visitors visitor.Store, blocked Blocklist, log *slog.Logger, opts ...Option) (*Coordinator, error) {
	if visits == nil || visitors == nil || blocked == nil {
		return nil, errors.New("gate: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		visits:   visits,
		visitors: visitors,
		blocked:  blocked,
		locks:    newKeyedLocks(defaultLockWait),
		metrics:  nopMetrics{},
		log:      log,
		window:   DefaultArrivalWindow,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CheckInInput is one admission attempt at the gate.
type CheckInInput struct {
	Code           string
	Kind           credential.Kind
	ConsentGiven   bool
	OverrideWindow bool
	Actor          actor.Actor
	Now            time.Time
}

// Admission is a successful check-in result.
type Admission struct {
	Visit   visit.Visit
	Visitor visitor.Visitor
}

// CheckIn admits a visitor. On any error the visit row is unchanged and the
// credential remains spendable, except ErrAlreadyConsumed which reports a
// previous successful spend.
func (c *Coordinator) CheckIn(ctx context.Context, in CheckInInput) (Admission, error) {
	if c == nil || c.visits == nil {
		return Admission{}, errors.New("gate: nil coordinator")
	}
	if err := ctx.Err(); err != nil {
		return Admission{}, err
	}
	if !in.Actor.IsGate() {
		return Admission{}, actor.ErrForbidden
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if !credential.ValidFormat(in.Code, in.Kind) {
		c.metrics.Denied(DenyInvalidCredential)
		return Admission{}, credential.ErrInvalidCredential
	}
	hash := credential.Hash(in.Code)

	v, err := c.visits.GetByCredentialHash(ctx, in.Kind, hash)
	if err != nil {
		if visit.IsNotFound(err) {
			c.metrics.Denied(DenyInvalidCredential)
			return Admission{}, credential.ErrInvalidCredential
		}
		return Admission{}, err
	}

	// Consent is checked before anything that could consume the credential.
	if !in.ConsentGiven {
		c.metrics.Denied(DenyConsentRequired)
		return Admission{}, ErrConsentRequired
	}

	release, err := c.locks.acquire(ctx, v.ID)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			c.metrics.Denied(DenyBusy)
		}
		return Admission{}, err
	}
	defer release()

	// Re-read under the lock; the visit may have moved since resolution.
	v, err = c.visits.GetByID(ctx, v.ID)
	if err != nil {
		return Admission{}, err
	}

	vis, err := c.visitors.GetByID(ctx, v.VisitorID)
	if err != nil {
		return Admission{}, err
	}

	// Live check: a block added after the invite still denies entry.
	blocked, err := c.blocked.IsBlocked(ctx, v.VisitorID, vis.Phone)
	if err != nil {
		return Admission{}, err
	}
	if blocked {
		c.metrics.Denied(DenyBlacklisted)
		return Admission{}, blacklist.ErrBlocked
	}

	if !Within(v.ExpectedArrival, now, c.window) && !in.OverrideWindow {
		c.metrics.Denied(DenyOutsideWindow)
		return Admission{}, ErrOutsideArrivalWindow
	}

	v, err = c.visits.CheckIn(ctx, visit.CheckInRecord{
		VisitID: v.ID,
		Kind:    in.Kind,
		Hash:    hash,
		Now:     now,
	})
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrAlreadyConsumed):
			c.metrics.Denied(DenyAlreadyConsumed)
		case errors.Is(err, credential.ErrInvalidCredential):
			c.metrics.Denied(DenyInvalidCredential)
		case errors.Is(err, visit.ErrInvalidTransition):
			c.metrics.Denied(DenyInvalidTransition)
		}
		return Admission{}, err
	}

	c.metrics.Admitted()
	if c.sink != nil {
		c.sink.Publish(ctx, notify.Event{
			Type:         notify.TypeVisitorArrived,
			HostID:       v.HostID,
			VisitID:      v.ID,
			VisitorName:  vis.FullName,
			VisitorPhone: vis.Phone,
			Body:         vis.FullName + " has checked in at the gate.",
			At:           now,
		})
	}
	c.log.Info("gate.checkin", "visit_id", v.ID, "kind", string(in.Kind), "guard_id", in.Actor.ID)
	return Admission{Visit: v, Visitor: vis}, nil
}

// CheckOut records a departure. Guard or admin only.
func (c *Coordinator) CheckOut(ctx context.Context, visitID string, a actor.Actor, now time.Time) (visit.Visit, error) {
	if c == nil || c.visits == nil {
		return visit.Visit{}, errors.New("gate: nil coordinator")
	}
	if err := ctx.Err(); err != nil {
		return visit.Visit{}, err
	}
	if !a.IsGate() {
		return visit.Visit{}, actor.ErrForbidden
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	release, err := c.locks.acquire(ctx, visitID)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			c.metrics.Denied(DenyBusy)
		}
		return visit.Visit{}, err
	}
	defer release()

	v, err := c.visits.CheckOut(ctx, visitID, now)
	if err != nil {
		return visit.Visit{}, err
	}
	c.metrics.Departed()
	c.log.Info("gate.checkout", "visit_id", v.ID, "guard_id", a.ID)
	return v, nil
}

// MusterEntry is one row of the who-is-inside snapshot.
type MusterEntry struct {
	VisitID      string     `json:"visit_id"`
	VisitorName  string     `json:"visitor_name"`
	VisitorPhone string     `json:"visitor_phone"`
	HostID       string     `json:"host_id"`
	Purpose      *string    `json:"purpose,omitempty"`
	ArrivalAt    *time.Time `json:"checkin_time,omitempty"`
}

// Muster returns everyone currently inside, ordered by arrival. A fresh read
// each call; it never blocks check-ins.
func (c *Coordinator) Muster(ctx context.Context, a actor.Actor) ([]MusterEntry, error) {
	if c == nil || c.visits == nil {
		return nil, errors.New("gate: nil coordinator")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !a.IsGate() {
		return nil, actor.ErrForbidden
	}

	inside, err := c.visits.ListCheckedIn(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MusterEntry, 0, len(inside))
	for _, v := range inside {
		entry := MusterEntry{
			VisitID:   v.ID,
			HostID:    v.HostID,
			Purpose:   v.Purpose,
			ArrivalAt: v.ActualArrival,
		}
		vis, err := c.visitors.GetByID(ctx, v.VisitorID)
		if err == nil {
			entry.VisitorName = vis.FullName
			entry.VisitorPhone = vis.Phone
		}
		out = append(out, entry)
	}
	return out, nil
}
