package visit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gatepass/cmd/internal/credential"
)

func newTestVisit(t *testing.T, st *InMemoryStore, status Status, walkIn bool) (Visit, credential.Issued) {
	t.Helper()
	issued, err := credential.Issue()
	require.NoError(t, err)

	now := time.Now().UTC()
	v := Visit{
		ID:        "visit-" + string(status) + "-" + issued.QRToken,
		VisitorID: "visitor-1",
		HostID:    "host-1",
		Status:    status,
		WalkIn:    walkIn,
		OTPHash:   &issued.OTPHash,
		QRHash:    &issued.QRHash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	v, err = st.Create(context.Background(), v)
	require.NoError(t, err)
	return v, issued
}

func TestCheckIn_ConsumesCredentialOnce(t *testing.T) {
	st := NewInMemoryStore()
	v, issued := newTestVisit(t, st, StatusApproved, false)
	ctx := context.Background()
	now := time.Now().UTC()

	got, err := st.CheckIn(ctx, CheckInRecord{VisitID: v.ID, Kind: credential.KindOTP, Hash: issued.OTPHash, Now: now})
	require.NoError(t, err)
	require.Equal(t, StatusCheckedIn, got.Status)
	require.NotNil(t, got.ActualArrival)
	require.NotNil(t, got.CredentialConsumedAt)
	require.True(t, got.ConsentGiven)

	_, err = st.CheckIn(ctx, CheckInRecord{VisitID: v.ID, Kind: credential.KindOTP, Hash: issued.OTPHash, Now: now})
	require.ErrorIs(t, err, credential.ErrAlreadyConsumed)

	// The QR form of the same credential is burned too.
	_, err = st.CheckIn(ctx, CheckInRecord{VisitID: v.ID, Kind: credential.KindQR, Hash: issued.QRHash, Now: now})
	require.ErrorIs(t, err, credential.ErrAlreadyConsumed)
}

func TestCheckIn_ConcurrentExactlyOneWinner(t *testing.T) {
	st := NewInMemoryStore()
	v, issued := newTestVisit(t, st, StatusApproved, false)
	ctx := context.Background()

	const attempts = 32
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = st.CheckIn(ctx, CheckInRecord{
				VisitID: v.ID,
				Kind:    credential.KindOTP,
				Hash:    issued.OTPHash,
				Now:     time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	var wins, consumed int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, credential.ErrAlreadyConsumed):
			consumed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, attempts-1, consumed)
}

func TestCheckIn_WrongHash(t *testing.T) {
	st := NewInMemoryStore()
	v, _ := newTestVisit(t, st, StatusApproved, false)

	_, err := st.CheckIn(context.Background(), CheckInRecord{
		VisitID: v.ID,
		Kind:    credential.KindOTP,
		Hash:    credential.Hash("000000"),
		Now:     time.Now().UTC(),
	})
	require.ErrorIs(t, err, credential.ErrInvalidCredential)
}

func TestCheckIn_PendingWalkInDenied(t *testing.T) {
	st := NewInMemoryStore()
	v, issued := newTestVisit(t, st, StatusPending, true)

	_, err := st.CheckIn(context.Background(), CheckInRecord{
		VisitID: v.ID,
		Kind:    credential.KindOTP,
		Hash:    issued.OTPHash,
		Now:     time.Now().UTC(),
	})
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := st.GetByID(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Nil(t, got.CredentialConsumedAt)
}

func TestCheckIn_PendingInviteAllowed(t *testing.T) {
	st := NewInMemoryStore()
	v, issued := newTestVisit(t, st, StatusPending, false)

	got, err := st.CheckIn(context.Background(), CheckInRecord{
		VisitID: v.ID,
		Kind:    credential.KindQR,
		Hash:    issued.QRHash,
		Now:     time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, StatusCheckedIn, got.Status)
}

func TestReject_InvalidatesCredential(t *testing.T) {
	st := NewInMemoryStore()
	v, issued := newTestVisit(t, st, StatusPending, true)
	ctx := context.Background()

	got, err := st.Reject(ctx, v.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, StatusRejected, got.Status)
	require.Nil(t, got.OTPHash)
	require.Nil(t, got.QRHash)

	_, err = st.GetByCredentialHash(ctx, credential.KindOTP, issued.OTPHash)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTransition_IllegalLeavesVisitUnchanged(t *testing.T) {
	st := NewInMemoryStore()
	v, _ := newTestVisit(t, st, StatusApproved, false)
	ctx := context.Background()

	_, err := st.Approve(ctx, v.ID, time.Now().UTC())
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := st.GetByID(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Equal(t, v.UpdatedAt, got.UpdatedAt)
}

func TestAttachCredential_KeepsOriginal(t *testing.T) {
	st := NewInMemoryStore()
	v, issued := newTestVisit(t, st, StatusPending, true)
	ctx := context.Background()

	replacement, err := credential.Issue()
	require.NoError(t, err)

	got, err := st.AttachCredential(ctx, v.ID, replacement.OTPHash, replacement.QRHash, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, issued.OTPHash, *got.OTPHash)
}

func TestCheckOut_StampsDeparture(t *testing.T) {
	st := NewInMemoryStore()
	v, issued := newTestVisit(t, st, StatusApproved, false)
	ctx := context.Background()

	_, err := st.CheckIn(ctx, CheckInRecord{VisitID: v.ID, Kind: credential.KindOTP, Hash: issued.OTPHash, Now: time.Now().UTC()})
	require.NoError(t, err)

	got, err := st.CheckOut(ctx, v.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, StatusCheckedOut, got.Status)
	require.NotNil(t, got.ActualDeparture)

	_, err = st.CheckOut(ctx, v.ID, time.Now().UTC())
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListCheckedIn_MusterOrder(t *testing.T) {
	st := NewInMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	second, issued2 := newTestVisit(t, st, StatusApproved, false)
	first, issued1 := newTestVisit(t, st, StatusApproved, false)

	_, err := st.CheckIn(ctx, CheckInRecord{VisitID: first.ID, Kind: credential.KindOTP, Hash: issued1.OTPHash, Now: base.Add(1 * time.Minute)})
	require.NoError(t, err)
	_, err = st.CheckIn(ctx, CheckInRecord{VisitID: second.ID, Kind: credential.KindOTP, Hash: issued2.OTPHash, Now: base.Add(5 * time.Minute)})
	require.NoError(t, err)

	inside, err := st.ListCheckedIn(ctx)
	require.NoError(t, err)
	require.Len(t, inside, 2)
	require.Equal(t, first.ID, inside[0].ID)
	require.Equal(t, second.ID, inside[1].ID)
}

func TestStats(t *testing.T) {
	st := NewInMemoryStore()
	ctx := context.Background()
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	newTestVisit(t, st, StatusPending, true)
	approved, issued := newTestVisit(t, st, StatusApproved, false)
	_, err := st.CheckIn(ctx, CheckInRecord{VisitID: approved.ID, Kind: credential.KindOTP, Hash: issued.OTPHash, Now: time.Now().UTC()})
	require.NoError(t, err)

	stats, err := st.Stats(ctx, dayStart)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingApprovals)
	require.Equal(t, 1, stats.CheckedIn)
	require.GreaterOrEqual(t, stats.VisitorsToday, 1)
}
