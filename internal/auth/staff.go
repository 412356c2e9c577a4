package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/hackgods/pediatric-clinic-booking/internal/logging"
)

var ErrStaffLoginDisabled = errors.New("staff login is not configured")

// StaffAuthenticator checks the front-desk account configured by login and
// bcrypt hash. Failed attempts share one limiter.
type StaffAuthenticator struct {
	login   string
	hash    []byte
	limiter *rate.Limiter
	log     *zap.Logger
	now     func() time.Time
	compare func(hash, secret []byte) error
}

func NewStaffAuthenticator(login, secretHash string, refill time.Duration, burst int, logger *zap.Logger) *StaffAuthenticator {
	if burst <= 0 {
		burst = 1
	}
	return &StaffAuthenticator{
		login:   login,
		hash:    []byte(secretHash),
		limiter: rate.NewLimiter(rate.Every(refill), burst),
		log:     logging.OrNop(logger),
		now:     time.Now,
		compare: bcrypt.CompareHashAndPassword,
	}
}

// Authenticate returns the staff login when login and secret match.
func (a *StaffAuthenticator) Authenticate(ctx context.Context, login, secret string) (string, error) {
	if a.login == "" || len(a.hash) == 0 {
		return "", ErrStaffLoginDisabled
	}
	if a.limiter.TokensAt(a.now()) < 1 {
		a.log.Warn("staff login throttled")
		return "", ErrTooManyAttempts
	}

	known := subtle.ConstantTimeCompare([]byte(login), []byte(a.login)) == 1
	hash := a.hash
	if !known {
		hash = placeholderHash()
	}
	if err := a.compare(hash, []byte(secret)); err != nil || !known {
		a.limiter.AllowN(a.now(), 1)
		return "", ErrInvalidCredentials
	}
	return a.login, nil
}
