package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestStaffAuthenticator(t *testing.T, burst int) *StaffAuthenticator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("desk-pw"), bcrypt.MinCost)
	require.NoError(t, err)

	a := NewStaffAuthenticator("reception", string(hash), time.Minute, burst, nil)
	now := time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	return a
}

func TestStaffAuthenticate(t *testing.T) {
	a := newTestStaffAuthenticator(t, 3)

	login, err := a.Authenticate(context.Background(), "reception", "desk-pw")
	require.NoError(t, err)
	assert.Equal(t, "reception", login)

	_, err = a.Authenticate(context.Background(), "reception", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStaffUnknownLoginStillComparesSecret(t *testing.T) {
	a := newTestStaffAuthenticator(t, 3)
	calls := 0
	a.compare = func(hash, secret []byte) error {
		calls++
		return bcrypt.CompareHashAndPassword(hash, secret)
	}

	_, err := a.Authenticate(context.Background(), "someone", "desk-pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, calls)
}

func TestStaffAuthenticateThrottles(t *testing.T) {
	a := newTestStaffAuthenticator(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := a.Authenticate(ctx, "reception", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := a.Authenticate(ctx, "reception", "desk-pw")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestStaffLoginDisabledWithoutConfig(t *testing.T) {
	a := NewStaffAuthenticator("", "", time.Minute, 3, nil)

	_, err := a.Authenticate(context.Background(), "reception", "desk-pw")
	assert.ErrorIs(t, err, ErrStaffLoginDisabled)
}

func TestTokensKeepRolesApart(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	staff, _, err := tokens.IssueStaff("reception")
	require.NoError(t, err)
	login, err := tokens.ParseStaff(staff)
	require.NoError(t, err)
	assert.Equal(t, "reception", login)
	_, err = tokens.Parse(staff)
	assert.ErrorIs(t, err, ErrInvalidToken)

	guardian, _, err := tokens.Issue("guardian-1")
	require.NoError(t, err)
	_, err = tokens.ParseStaff(guardian)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
