package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/hackgods/pediatric-clinic-booking/internal/clinic"
	"github.com/hackgods/pediatric-clinic-booking/internal/logging"
)

var (
	ErrInvalidCredentials = errors.New("invalid phone or secret")
	ErrTooManyAttempts    = errors.New("too many login attempts, try again later")
	ErrInvalidPhone       = errors.New("phone number is not valid")
)

const maxTrackedPhones = 10000

// placeholderHash is compared against when the account does not exist, so
// an unknown account costs the same bcrypt comparison as a wrong secret.
var placeholderHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("no-such-account"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("hash placeholder secret: %v", err))
	}
	return hash
})

// GuardianLookup finds a guardian by normalized phone.
type GuardianLookup interface {
	GetGuardianByPhone(ctx context.Context, phone string) (*clinic.Guardian, error)
}

// Authenticator checks a phone and secret against the stored bcrypt hash.
// Failed attempts are limited per phone.
type Authenticator struct {
	lookup GuardianLookup
	log    *zap.Logger

	every   rate.Limit
	burst   int
	now     func() time.Time
	compare func(hash, secret []byte) error

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewAuthenticator allows burst failed attempts per phone, refilled one per
// refill interval.
func NewAuthenticator(lookup GuardianLookup, refill time.Duration, burst int, logger *zap.Logger) *Authenticator {
	if burst <= 0 {
		burst = 1
	}
	return &Authenticator{
		lookup:   lookup,
		log:      logging.OrNop(logger),
		every:    rate.Every(refill),
		burst:    burst,
		now:      time.Now,
		compare:  bcrypt.CompareHashAndPassword,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (a *Authenticator) getLimiter(phone string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()

	lim, ok := a.limiters[phone]
	if !ok {
		if len(a.limiters) >= maxTrackedPhones {
			a.pruneLocked()
		}
		lim = rate.NewLimiter(a.every, a.burst)
		a.limiters[phone] = lim
	}
	return lim
}

// pruneLocked drops limiters that have refilled completely.
func (a *Authenticator) pruneLocked() {
	now := a.now()
	for phone, lim := range a.limiters {
		if lim.TokensAt(now) >= float64(a.burst) {
			delete(a.limiters, phone)
		}
	}
}

// Authenticate returns the guardian owning phone when secret matches.
func (a *Authenticator) Authenticate(ctx context.Context, rawPhone, secret string) (*clinic.Guardian, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	lim := a.getLimiter(phone)
	if lim.TokensAt(a.now()) < 1 {
		a.log.Warn("login throttled", zap.String("phone", maskPhone(phone)))
		return nil, ErrTooManyAttempts
	}

	g, err := a.lookup.GetGuardianByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, clinic.ErrGuardianNotFound) {
			_ = a.compare(placeholderHash(), []byte(secret))
			lim.AllowN(a.now(), 1)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load guardian: %w", err)
	}

	if err := a.compare([]byte(g.PasswordHash), []byte(secret)); err != nil {
		lim.AllowN(a.now(), 1)
		return nil, ErrInvalidCredentials
	}

	return g, nil
}

// HashSecret returns the bcrypt hash stored for a guardian.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// NormalizePhone reduces a phone number to +<digits>. Local numbers starting
// with 8 and eleven digits long are rewritten to +7.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}

	digits := b.String()
	if len(digits) < 10 || len(digits) > 15 {
		return "", ErrInvalidPhone
	}
	if len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}
	return "+" + digits, nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
