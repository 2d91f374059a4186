package visitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetOrCreate_CreatesWithNormalizedPhone(t *testing.T) {
	st := NewInMemoryStore()
	now := time.Now().UTC()

	v, err := GetOrCreate(context.Background(), st, NewVisitorInput{
		Phone:    "98765 43210",
		FullName: " Asha Verma ",
		Now:      now,
	})
	require.NoError(t, err)
	require.NotEmpty(t, v.ID)
	require.Equal(t, "919876543210", v.Phone)
	require.Equal(t, "Asha Verma", v.FullName)
}

func TestGetOrCreate_ReusesExistingByPhone(t *testing.T) {
	st := NewInMemoryStore()
	ctx := context.Background()

	first, err := GetOrCreate(ctx, st, NewVisitorInput{Phone: "9876543210", FullName: "Asha"})
	require.NoError(t, err)

	email := "Asha@Example.com"
	second, err := GetOrCreate(ctx, st, NewVisitorInput{
		Phone:    "+91 9876543210",
		FullName: "Asha Verma",
		Email:    &email,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Asha Verma", second.FullName)
	require.NotNil(t, second.Email)
	require.Equal(t, "asha@example.com", *second.Email)
}

func TestGetOrCreate_RequiresPhoneAndName(t *testing.T) {
	st := NewInMemoryStore()
	_, err := GetOrCreate(context.Background(), st, NewVisitorInput{Phone: "", FullName: "X"})
	require.True(t, IsInvalidInput(err))

	_, err = GetOrCreate(context.Background(), st, NewVisitorInput{Phone: "9876543210", FullName: "  "})
	require.True(t, IsInvalidInput(err))
}
