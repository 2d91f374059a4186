package visit

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gatepass/cmd/internal/actor"
	"gatepass/cmd/internal/blacklist"
	"gatepass/cmd/internal/credential"
	"gatepass/cmd/internal/notify"
	"gatepass/cmd/visitor"
)

type captureSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *captureSink) Publish(_ context.Context, ev notify.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) all() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Event, len(s.events))
	copy(out, s.events)
	return out
}

type serviceEnv struct {
	svc      *Service
	store    *InMemoryStore
	visitors *visitor.InMemoryStore
	blocked  *blacklist.Service
	sink     *captureSink
}

func newServiceEnv(t *testing.T) serviceEnv {
	t.Helper()
	store := NewInMemoryStore()
	visitors := visitor.NewInMemoryStore()
	log := slog.Default()

	blocked, err := blacklist.NewService(blacklist.NewInMemoryStore(), visitors, log)
	require.NoError(t, err)

	sink := &captureSink{}
	svc, err := NewService(store, visitors, blocked, sink, log)
	require.NoError(t, err)

	return serviceEnv{svc: svc, store: store, visitors: visitors, blocked: blocked, sink: sink}
}

var (
	resident = actor.Actor{ID: "host-1", Roles: []string{actor.RoleResident}}
	guard    = actor.Actor{ID: "guard-1", Roles: []string{actor.RoleGuard}}
	admin    = actor.Actor{ID: "admin-1", Roles: []string{actor.RoleAdmin}}
)

func TestCreateInvite(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	arrival := time.Now().UTC().Add(3 * time.Hour)
	v, issued, err := env.svc.CreateInvite(ctx, InviteInput{
		Actor:           resident,
		VisitorPhone:    "9876543210",
		VisitorName:     "Asha Verma",
		ExpectedArrival: &arrival,
	})
	require.NoError(t, err)

	require.Equal(t, StatusApproved, v.Status)
	require.Equal(t, resident.ID, v.HostID)
	require.False(t, v.WalkIn)
	require.Len(t, issued.OTP, credential.OTPLength)
	require.NotEmpty(t, issued.QRToken)

	// The stored visit holds only hashes, never the plain codes.
	stored, err := env.store.GetByID(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, credential.Hash(issued.OTP), *stored.OTPHash)
	require.Equal(t, credential.Hash(issued.QRToken), *stored.QRHash)
}

func TestCreateInvite_GuardForbidden(t *testing.T) {
	env := newServiceEnv(t)
	_, _, err := env.svc.CreateInvite(context.Background(), InviteInput{
		Actor:        guard,
		VisitorPhone: "9876543210",
		VisitorName:  "Asha",
	})
	require.ErrorIs(t, err, actor.ErrForbidden)
}

func TestCreateInvite_BlockedVisitor(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	_, err := env.blocked.Add(ctx, blacklist.AddInput{
		Actor: admin,
		Phone: "9876543210",
		Name:  "Asha",
	})
	require.NoError(t, err)

	_, _, err = env.svc.CreateInvite(ctx, InviteInput{
		Actor:        resident,
		VisitorPhone: "+91 98765 43210",
		VisitorName:  "Asha",
	})
	require.ErrorIs(t, err, blacklist.ErrBlocked)
}

func TestCreateWalkIn_NotifiesHost(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	v, err := env.svc.CreateWalkIn(ctx, WalkInInput{
		Actor:        guard,
		HostID:       "host-1",
		VisitorPhone: "9876543210",
		VisitorName:  "Ravi Kumar",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, v.Status)
	require.True(t, v.WalkIn)
	require.Nil(t, v.OTPHash)

	events := env.sink.all()
	require.Len(t, events, 1)
	require.Equal(t, notify.TypeWalkinPending, events[0].Type)
	require.Equal(t, "host-1", events[0].HostID)
	require.Equal(t, v.ID, events[0].VisitID)
}

func TestCreateWalkIn_ResidentForbidden(t *testing.T) {
	env := newServiceEnv(t)
	_, err := env.svc.CreateWalkIn(context.Background(), WalkInInput{
		Actor:        resident,
		HostID:       "host-2",
		VisitorPhone: "9876543210",
		VisitorName:  "Ravi",
	})
	require.ErrorIs(t, err, actor.ErrForbidden)
}

func TestApprove_IssuesCredentialForWalkIn(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	v, err := env.svc.CreateWalkIn(ctx, WalkInInput{
		Actor:        guard,
		HostID:       resident.ID,
		VisitorPhone: "9876543210",
		VisitorName:  "Ravi",
	})
	require.NoError(t, err)

	approved, issued, err := env.svc.Approve(ctx, v.ID, resident, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, issued)
	require.Len(t, issued.OTP, credential.OTPLength)

	// Approving again is an invalid transition, not a silent reissue.
	_, _, err = env.svc.Approve(ctx, v.ID, resident, time.Now().UTC())
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApprove_OnlyDesignatedHost(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	v, err := env.svc.CreateWalkIn(ctx, WalkInInput{
		Actor:        guard,
		HostID:       resident.ID,
		VisitorPhone: "9876543210",
		VisitorName:  "Ravi",
	})
	require.NoError(t, err)

	other := actor.Actor{ID: "host-2", Roles: []string{actor.RoleResident}}
	_, _, err = env.svc.Approve(ctx, v.ID, other, time.Now().UTC())
	require.ErrorIs(t, err, actor.ErrForbidden)

	// Even an admin cannot approve on the host's behalf.
	_, _, err = env.svc.Approve(ctx, v.ID, admin, time.Now().UTC())
	require.ErrorIs(t, err, actor.ErrForbidden)
}

func TestReject_OnlyDesignatedHost(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	v, err := env.svc.CreateWalkIn(ctx, WalkInInput{
		Actor:        guard,
		HostID:       resident.ID,
		VisitorPhone: "9876543210",
		VisitorName:  "Ravi",
	})
	require.NoError(t, err)

	other := actor.Actor{ID: "host-2", Roles: []string{actor.RoleResident}}
	_, err = env.svc.Reject(ctx, v.ID, other, time.Now().UTC())
	require.ErrorIs(t, err, actor.ErrForbidden)

	rejected, err := env.svc.Reject(ctx, v.ID, resident, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
}

func TestCancel_HostOrAdmin(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	v, _, err := env.svc.CreateInvite(ctx, InviteInput{
		Actor:        resident,
		VisitorPhone: "9876543210",
		VisitorName:  "Asha",
	})
	require.NoError(t, err)

	other := actor.Actor{ID: "host-2", Roles: []string{actor.RoleResident}}
	_, err = env.svc.Cancel(ctx, v.ID, other, time.Now().UTC())
	require.ErrorIs(t, err, actor.ErrForbidden)

	cancelled, err := env.svc.Cancel(ctx, v.ID, admin, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Nil(t, cancelled.OTPHash)
}

func TestList_ResidentScopedToOwnVisits(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	_, _, err := env.svc.CreateInvite(ctx, InviteInput{
		Actor:        resident,
		VisitorPhone: "9876543210",
		VisitorName:  "Asha",
	})
	require.NoError(t, err)

	otherHost := actor.Actor{ID: "host-2", Roles: []string{actor.RoleResident}}
	_, _, err = env.svc.CreateInvite(ctx, InviteInput{
		Actor:        otherHost,
		VisitorPhone: "9123456780",
		VisitorName:  "Meera",
	})
	require.NoError(t, err)

	mine, err := env.svc.List(ctx, Filter{}, resident)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, resident.ID, mine[0].HostID)

	all, err := env.svc.List(ctx, Filter{}, admin)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestMyRequests_OnlyPendingForHost(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	v, err := env.svc.CreateWalkIn(ctx, WalkInInput{
		Actor:        guard,
		HostID:       resident.ID,
		VisitorPhone: "9876543210",
		VisitorName:  "Ravi",
	})
	require.NoError(t, err)

	_, err = env.svc.CreateWalkIn(ctx, WalkInInput{
		Actor:        guard,
		HostID:       "host-2",
		VisitorPhone: "9123456780",
		VisitorName:  "Meera",
	})
	require.NoError(t, err)

	reqs, err := env.svc.MyRequests(ctx, resident)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, v.ID, reqs[0].ID)
}
