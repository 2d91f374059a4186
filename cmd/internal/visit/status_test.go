package visit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusApproved, StatusCheckedIn, StatusCheckedOut, StatusCancelled, StatusRejected} {
		require.True(t, s.Valid(), "%s should be valid", s)
	}
	require.False(t, Status("archived").Valid())
	require.False(t, Status("").Valid())
}

func TestStatusTerminal(t *testing.T) {
	require.True(t, StatusCheckedOut.Terminal())
	require.True(t, StatusCancelled.Terminal())
	require.True(t, StatusRejected.Terminal())
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusApproved.Terminal())
	require.False(t, StatusCheckedIn.Terminal())
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name   string
		from   Status
		to     Status
		walkIn bool
		want   bool
	}{
		{"pending to approved", StatusPending, StatusApproved, true, true},
		{"pending to rejected", StatusPending, StatusRejected, true, true},
		{"pending to cancelled", StatusPending, StatusCancelled, false, true},
		{"pending invite straight to checked_in", StatusPending, StatusCheckedIn, false, true},
		{"pending walk-in cannot check in", StatusPending, StatusCheckedIn, true, false},
		{"pending to checked_out", StatusPending, StatusCheckedOut, false, false},
		{"approved to checked_in", StatusApproved, StatusCheckedIn, false, true},
		{"approved to cancelled", StatusApproved, StatusCancelled, false, true},
		{"approved to rejected", StatusApproved, StatusRejected, false, false},
		{"checked_in to checked_out", StatusCheckedIn, StatusCheckedOut, false, true},
		{"checked_in to cancelled", StatusCheckedIn, StatusCancelled, false, false},
		{"checked_out is terminal", StatusCheckedOut, StatusCheckedIn, false, false},
		{"cancelled is terminal", StatusCancelled, StatusApproved, false, false},
		{"rejected is terminal", StatusRejected, StatusApproved, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CanTransition(tc.from, tc.to, tc.walkIn))
		})
	}
}
