package blacklist

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gatepass/cmd/internal/actor"
	"gatepass/cmd/internal/ids"
	"gatepass/cmd/visitor"
)

// Entry is one standing deny record. Phone is kept denormalized so the gate
// can block repeat walk-ins even before a visitor record exists for them.
type Entry struct {
	ID        string    `json:"id"`
	VisitorID string    `json:"visitor_id"`
	Phone     string    `json:"phone"`
	Reason    *string   `json:"reason,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists deny entries.
type Store interface {
	// Upsert inserts the entry, or returns the existing one for the same
	// visitor unchanged.
	Upsert(ctx context.Context, e Entry) (Entry, error)
	// DeleteByVisitor removes the entry for a visitor. ErrNotFound when absent.
	DeleteByVisitor(ctx context.Context, visitorID string) error
	// Match reports any entry matching the visitor id or the phone.
	Match(ctx context.Context, visitorID, phone string) (bool, error)
	List(ctx context.Context) ([]Entry, error)
}

// Service enforces role checks over the store.
type Service struct {
	store    Store
	visitors visitor.Store
	log      *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, visitors visitor.Store, log *slog.Logger) (*Service, error) {
	if store == nil || visitors == nil {
		return nil, OpError{Op: "blacklist.NewService", Kind: ErrInvalidInput}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, visitors: visitors, log: log}, nil
}

// AddInput names a visitor either directly or by phone. When only a phone is
// given a visitor record is created so the entry survives renames.
type AddInput struct {
	Actor     actor.Actor
	VisitorID string
	Phone     string
	Name      string
	Reason    *string
	Now       time.Time
}

// Add records a deny entry. Idempotent per visitor; admin only.
func (s *Service) Add(ctx context.Context, in AddInput) (Entry, error) {
	const op = "blacklist.Add"
	if s == nil || s.store == nil {
		return Entry{}, OpError{Op: op, Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	if !in.Actor.IsAdmin() {
		return Entry{}, actor.ErrForbidden
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var vis visitor.Visitor
	var err error
	switch {
	case strings.TrimSpace(in.VisitorID) != "":
		vis, err = s.visitors.GetByID(ctx, strings.TrimSpace(in.VisitorID))
	case strings.TrimSpace(in.Phone) != "":
		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = "Blocked visitor"
		}
		vis, err = visitor.GetOrCreate(ctx, s.visitors, visitor.NewVisitorInput{
			Phone:    in.Phone,
			FullName: name,
			Now:      now,
		})
	default:
		return Entry{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "visitor_id or phone required"}
	}
	if err != nil {
		if visitor.IsNotFound(err) {
			return Entry{}, OpError{Op: op, Kind: ErrNotFound, Msg: "visitor"}
		}
		return Entry{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Entry{}, err
	}
	e, err := s.store.Upsert(ctx, Entry{
		ID:        id,
		VisitorID: vis.ID,
		Phone:     vis.Phone,
		Reason:    in.Reason,
		CreatedBy: in.Actor.ID,
		CreatedAt: now,
	})
	if err != nil {
		return Entry{}, err
	}
	s.log.Info("blacklist.added", "visitor_id", e.VisitorID, "by", in.Actor.ID)
	return e, nil
}

// Remove deletes the entry for a visitor. Admin only; ErrNotFound when absent.
func (s *Service) Remove(ctx context.Context, a actor.Actor, visitorID string) error {
	if s == nil || s.store == nil {
		return OpError{Op: "blacklist.Remove", Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !a.IsAdmin() {
		return actor.ErrForbidden
	}
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return OpError{Op: "blacklist.Remove", Kind: ErrInvalidInput, Msg: "visitor_id required"}
	}
	if err := s.store.DeleteByVisitor(ctx, visitorID); err != nil {
		return err
	}
	s.log.Info("blacklist.removed", "visitor_id", visitorID, "by", a.ID)
	return nil
}

// IsBlocked reports whether a visitor is denied, matched by id or phone.
// Always consulted live at admission time, never cached from invite time.
func (s *Service) IsBlocked(ctx context.Context, visitorID, phone string) (bool, error) {
	if s == nil || s.store == nil {
		return false, OpError{Op: "blacklist.IsBlocked", Kind: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.store.Match(ctx, visitorID, phone)
}

// List returns all entries. Guard or admin.
func (s *Service) List(ctx context.Context, a actor.Actor) ([]Entry, error) {
	if s == nil || s.store == nil {
		return nil, OpError{Op: "blacklist.List", Kind: ErrInvalidInput}
	}
	if !a.IsGate() {
		return nil, actor.ErrForbidden
	}
	return s.store.List(ctx)
}
