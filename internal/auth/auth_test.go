package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/pediatric-clinic-booking/internal/clinic"
)

type phoneBook map[string]*clinic.Guardian

func (p phoneBook) GetGuardianByPhone(ctx context.Context, phone string) (*clinic.Guardian, error) {
	if phone == "+70000000500" {
		return nil, errors.New("db down")
	}
	g, ok := p[phone]
	if !ok {
		return nil, clinic.ErrGuardianNotFound
	}
	return g, nil
}

func newTestAuthenticator(t *testing.T, burst int) (*Authenticator, *clinic.Guardian, *time.Time) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	g := &clinic.Guardian{ID: uuid.New(), Phone: "+79991234567", PasswordHash: string(hash), FirstName: "Anna"}
	a := NewAuthenticator(phoneBook{g.Phone: g}, time.Minute, burst, nil)
	now := time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	return a, g, &now
}

func TestAuthenticateSuccess(t *testing.T) {
	a, g, _ := newTestAuthenticator(t, 3)

	got, err := a.Authenticate(context.Background(), "8 (999) 123-45-67", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, g.ID, got.ID)
}

func TestAuthenticateRejectsWrongSecretAndUnknownPhone(t *testing.T) {
	a, _, _ := newTestAuthenticator(t, 5)

	_, err := a.Authenticate(context.Background(), "+79991234567", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Authenticate(context.Background(), "+79990000000", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Authenticate(context.Background(), "call me", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestUnknownPhoneStillComparesSecret(t *testing.T) {
	a, g, _ := newTestAuthenticator(t, 5)
	var hashes [][]byte
	a.compare = func(hash, secret []byte) error {
		hashes = append(hashes, hash)
		return bcrypt.CompareHashAndPassword(hash, secret)
	}

	_, err := a.Authenticate(context.Background(), "+79990000000", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	require.Len(t, hashes, 1)
	assert.NotEqual(t, g.PasswordHash, string(hashes[0]))

	_, err = a.Authenticate(context.Background(), "+79991234567", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	require.Len(t, hashes, 2)
	assert.Equal(t, g.PasswordHash, string(hashes[1]))
}

func TestAuthenticateThrottlesAfterBurst(t *testing.T) {
	a, _, now := newTestAuthenticator(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := a.Authenticate(ctx, "+79991234567", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := a.Authenticate(ctx, "+79991234567", "s3cret")
	assert.ErrorIs(t, err, ErrTooManyAttempts, "even the right secret is refused while throttled")

	*now = now.Add(time.Minute)
	_, err = a.Authenticate(ctx, "+79991234567", "s3cret")
	assert.NoError(t, err)
}

func TestAuthenticateSuccessDoesNotConsumeAttempts(t *testing.T) {
	a, _, _ := newTestAuthenticator(t, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := a.Authenticate(ctx, "+79991234567", "s3cret")
		require.NoError(t, err)
	}
}

func TestAuthenticateUpstreamError(t *testing.T) {
	a, _, _ := newTestAuthenticator(t, 1)

	_, err := a.Authenticate(context.Background(), "+70000000500", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+7 999 123-45-67", "+79991234567", false},
		{"89991234567", "+79991234567", false},
		{"(999) 123 4567", "+9991234567", false},
		{"+44 20 7946 0958", "+442079460958", false},
		{"12345", "", true},
		{"+7999abc4567", "", true},
		{"7+9991234567", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHashSecretVerifies(t *testing.T) {
	hash, err := HashSecret("pw")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("pw")))
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	signed, expires, err := tokens.Issue("guardian-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	sub, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "guardian-1", sub)
}

func TestTokensRejectForeignAndExpired(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	other := NewTokens("other-secret", time.Hour)

	signed, _, err := other.Issue("guardian-1")
	require.NoError(t, err)
	_, err = tokens.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	signed, _, err = tokens.Issue("guardian-1")
	require.NoError(t, err)
	tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = tokens.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
