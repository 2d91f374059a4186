package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gatepass/cmd/internal/actor"
	"gatepass/cmd/internal/blacklist"
	"gatepass/cmd/internal/credential"
	"gatepass/cmd/internal/notify"
	"gatepass/cmd/internal/visit"
	"gatepass/cmd/visitor"
)

var (
	resident = actor.Actor{ID: "host-1", Roles: []string{actor.RoleResident}}
	guard    = actor.Actor{ID: "guard-1", Roles: []string{actor.RoleGuard}}
	admin    = actor.Actor{ID: "admin-1", Roles: []string{actor.RoleAdmin}}
)

type captureMetrics struct {
	mu       sync.Mutex
	admitted int
	departed int
	denied   map[string]int
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{denied: make(map[string]int)}
}

func (m *captureMetrics) Admitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admitted++
}

func (m *captureMetrics) Departed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departed++
}

func (m *captureMetrics) Denied(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied[reason]++
}

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

type gateEnv struct {
	coord   *Coordinator
	visits  *visit.Service
	store   *visit.InMemoryStore
	blocked *blacklist.Service
	metrics *captureMetrics
	sink    *captureSink
}

func newGateEnv(t *testing.T, opts ...Option) gateEnv {
	t.Helper()
	log := slog.Default()
	store := visit.NewInMemoryStore()
	visitors := visitor.NewInMemoryStore()

	blocked, err := blacklist.NewService(blacklist.NewInMemoryStore(), visitors, log)
	require.NoError(t, err)

	sink := &captureSink{}
	visits, err := visit.NewService(store, visitors, blocked, sink, log)
	require.NoError(t, err)

	metrics := newCaptureMetrics()
	all := append([]Option{WithMetrics(metrics), WithSink(sink)}, opts...)
	coord, err := NewCoordinator(store, visitors, blocked, log, all...)
	require.NoError(t, err)

	return gateEnv{coord: coord, visits: visits, store: store, blocked: blocked, metrics: metrics, sink: sink}
}

func (e gateEnv) invite(t *testing.T, expected *time.Time) (visit.Visit, credential.Issued) {
	t.Helper()
	v, issued, err := e.visits.CreateInvite(context.Background(), visit.InviteInput{
		Actor:           resident,
		VisitorPhone:    "9876543210",
		VisitorName:     "Asha Verma",
		ExpectedArrival: expected,
	})
	require.NoError(t, err)
	return v, issued
}

func TestCheckIn_InviteFlow(t *testing.T) {
	env := newGateEnv(t)
	expected := time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)
	v, issued := env.invite(t, &expected)
	ctx := context.Background()

	adm, err := env.coord.CheckIn(ctx, CheckInInput{
		Code:         issued.OTP,
		Kind:         credential.KindOTP,
		ConsentGiven: true,
		Actor:        guard,
		Now:          expected.Add(-55 * time.Minute), // 13:05 for a 14:00 arrival
	})
	require.NoError(t, err)
	require.Equal(t, v.ID, adm.Visit.ID)
	require.Equal(t, visit.StatusCheckedIn, adm.Visit.Status)
	require.Equal(t, "Asha Verma", adm.Visitor.FullName)
	require.Equal(t, 1, env.metrics.admitted)

	events := env.sink.all()
	require.Len(t, events, 1)
	require.Equal(t, notify.TypeVisitorArrived, events[0].Type)
	require.Equal(t, resident.ID, events[0].HostID)

	muster, err := env.coord.Muster(ctx, guard)
	require.NoError(t, err)
	require.Len(t, muster, 1)
	require.Equal(t, "Asha Verma", muster[0].VisitorName)
	require.Equal(t, "919876543210", muster[0].VisitorPhone)

	out, err := env.coord.CheckOut(ctx, v.ID, guard, expected)
	require.NoError(t, err)
	require.Equal(t, visit.StatusCheckedOut, out.Status)
	require.NotNil(t, out.ActualDeparture)
	require.Equal(t, 1, env.metrics.departed)

	muster, err = env.coord.Muster(ctx, guard)
	require.NoError(t, err)
	require.Empty(t, muster)
}

func TestCheckIn_ConcurrentSameCredential(t *testing.T) {
	env := newGateEnv(t)
	_, issued := env.invite(t, nil)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.coord.CheckIn(ctx, CheckInInput{
				Code:         issued.OTP,
				Kind:         credential.KindOTP,
				ConsentGiven: true,
				Actor:        guard,
				Now:          time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, credential.ErrAlreadyConsumed),
			errors.Is(err, credential.ErrInvalidCredential),
			errors.Is(err, ErrBusy):
			// Losers must land on one of these, never a second admission.
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, env.metrics.admitted)
}

func TestCheckIn_ConsentIsNotBypassable(t *testing.T) {
	env := newGateEnv(t)
	_, issued := env.invite(t, nil)

	_, err := env.coord.CheckIn(context.Background(), CheckInInput{
		Code:           issued.OTP,
		Kind:           credential.KindOTP,
		ConsentGiven:   false,
		OverrideWindow: true,
		Actor:          admin,
		Now:            time.Now().UTC(),
	})
	require.ErrorIs(t, err, ErrConsentRequired)
	require.Equal(t, 1, env.metrics.denied[DenyConsentRequired])

	// The credential survives the denial.
	_, err = env.coord.CheckIn(context.Background(), CheckInInput{
		Code:         issued.OTP,
		Kind:         credential.KindOTP,
		ConsentGiven: true,
		Actor:        guard,
		Now:          time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestCheckIn_BlacklistAddedAfterInvite(t *testing.T) {
	env := newGateEnv(t)
	_, issued := env.invite(t, nil)
	ctx := context.Background()

	_, err := env.blocked.Add(ctx, blacklist.AddInput{
		Actor: admin,
		Phone: "9876543210",
		Name:  "Asha Verma",
	})
	require.NoError(t, err)

	_, err = env.coord.CheckIn(ctx, CheckInInput{
		Code:         issued.OTP,
		Kind:         credential.KindOTP,
		ConsentGiven: true,
		Actor:        guard,
		Now:          time.Now().UTC(),
	})
	require.ErrorIs(t, err, blacklist.ErrBlocked)
	require.Equal(t, 1, env.metrics.denied[DenyBlacklisted])
}

func TestCheckIn_ArrivalWindow(t *testing.T) {
	env := newGateEnv(t)
	expected := time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)
	_, issued := env.invite(t, &expected)
	ctx := context.Background()

	// 12:30 is outside the default 60 minute buffer.
	_, err := env.coord.CheckIn(ctx, CheckInInput{
		Code:         issued.OTP,
		Kind:         credential.KindOTP,
		ConsentGiven: true,
		Actor:        guard,
		Now:          expected.Add(-90 * time.Minute),
	})
	require.ErrorIs(t, err, ErrOutsideArrivalWindow)
	require.Equal(t, 1, env.metrics.denied[DenyOutsideWindow])

	// The same guard may override; the denial did not burn the credential.
	adm, err := env.coord.CheckIn(ctx, CheckInInput{
		Code:           issued.OTP,
		Kind:           credential.KindOTP,
		ConsentGiven:   true,
		OverrideWindow: true,
		Actor:          guard,
		Now:            expected.Add(-90 * time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, visit.StatusCheckedIn, adm.Visit.Status)
}

func TestCheckIn_QRToken(t *testing.T) {
	env := newGateEnv(t)
	_, issued := env.invite(t, nil)

	adm, err := env.coord.CheckIn(context.Background(), CheckInInput{
		Code:         issued.QRToken,
		Kind:         credential.KindQR,
		ConsentGiven: true,
		Actor:        guard,
		Now:          time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, visit.StatusCheckedIn, adm.Visit.Status)
}

func TestCheckIn_RejectedWalkInCredentialInvalid(t *testing.T) {
	env := newGateEnv(t)
	ctx := context.Background()

	v, err := env.visits.CreateWalkIn(ctx, visit.WalkInInput{
		Actor:        guard,
		HostID:       resident.ID,
		VisitorPhone: "9123456780",
		VisitorName:  "Ravi",
	})
	require.NoError(t, err)

	_, issued, err := env.visits.Approve(ctx, v.ID, resident, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, issued)

	// Host cannot reject after approval; cancel withdraws the visit instead.
	cancelled, err := env.visits.Cancel(ctx, v.ID, resident, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, visit.StatusCancelled, cancelled.Status)

	_, err = env.coord.CheckIn(ctx, CheckInInput{
		Code:         issued.OTP,
		Kind:         credential.KindOTP,
		ConsentGiven: true,
		Actor:        guard,
		Now:          time.Now().UTC(),
	})
	require.ErrorIs(t, err, credential.ErrInvalidCredential)
}

func TestCheckIn_PendingWalkInDenied(t *testing.T) {
	env := newGateEnv(t)
	ctx := context.Background()

	v, err := env.visits.CreateWalkIn(ctx, visit.WalkInInput{
		Actor:        guard,
		HostID:       resident.ID,
		VisitorPhone: "9123456780",
		VisitorName:  "Ravi",
	})
	require.NoError(t, err)

	// Force a credential onto the still-pending walk-in; the state machine
	// must refuse admission until the host approves.
	issued, err := credential.Issue()
	require.NoError(t, err)
	_, err = env.store.AttachCredential(ctx, v.ID, issued.OTPHash, issued.QRHash, time.Now().UTC())
	require.NoError(t, err)

	_, err = env.coord.CheckIn(ctx, CheckInInput{
		Code:         issued.OTP,
		Kind:         credential.KindOTP,
		ConsentGiven: true,
		Actor:        guard,
		Now:          time.Now().UTC(),
	})
	require.ErrorIs(t, err, visit.ErrInvalidTransition)
}

func TestCheckIn_RoleAndFormatChecks(t *testing.T) {
	env := newGateEnv(t)
	_, issued := env.invite(t, nil)
	ctx := context.Background()

	_, err := env.coord.CheckIn(ctx, CheckInInput{
		Code:         issued.OTP,
		Kind:         credential.KindOTP,
		ConsentGiven: true,
		Actor:        resident,
		Now:          time.Now().UTC(),
	})
	require.ErrorIs(t, err, actor.ErrForbidden)

	_, err = env.coord.CheckIn(ctx, CheckInInput{
		Code:         "12345", // short
		Kind:         credential.KindOTP,
		ConsentGiven: true,
		Actor:        guard,
		Now:          time.Now().UTC(),
	})
	require.ErrorIs(t, err, credential.ErrInvalidCredential)

	_, err = env.coord.CheckIn(ctx, CheckInInput{
		Code:         "999999", // well formed but unknown
		Kind:         credential.KindOTP,
		ConsentGiven: true,
		Actor:        guard,
		Now:          time.Now().UTC(),
	})
	require.ErrorIs(t, err, credential.ErrInvalidCredential)
}

func TestCheckOut_RequiresGateRole(t *testing.T) {
	env := newGateEnv(t)
	v, issued := env.invite(t, nil)
	ctx := context.Background()

	_, err := env.coord.CheckIn(ctx, CheckInInput{
		Code:         issued.OTP,
		Kind:         credential.KindOTP,
		ConsentGiven: true,
		Actor:        guard,
		Now:          time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = env.coord.CheckOut(ctx, v.ID, resident, time.Now().UTC())
	require.ErrorIs(t, err, actor.ErrForbidden)

	_, err = env.coord.CheckOut(ctx, v.ID, guard, time.Now().UTC())
	require.NoError(t, err)

	_, err = env.coord.CheckOut(ctx, v.ID, guard, time.Now().UTC())
	require.ErrorIs(t, err, visit.ErrInvalidTransition)
}

func TestMuster_RequiresGateRole(t *testing.T) {
	env := newGateEnv(t)
	_, err := env.coord.Muster(context.Background(), resident)
	require.ErrorIs(t, err, actor.ErrForbidden)
}
