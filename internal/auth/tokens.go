package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const issuer = "pediatric-clinic"

// Roles carried in the role claim.
const (
	RoleGuardian = "guardian"
	RoleStaff    = "staff"
)

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 tokens. The subject is the guardian id
// or the staff login; the role claim says which.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) Issue(guardianID string) (string, time.Time, error) {
	return t.issue(RoleGuardian, guardianID)
}

func (t *Tokens) IssueStaff(login string) (string, time.Time, error) {
	return t.issue(RoleStaff, login)
}

func (t *Tokens) issue(role, subject string) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse returns the guardian id of a valid guardian token.
func (t *Tokens) Parse(tokenString string) (string, error) {
	return t.parse(tokenString, RoleGuardian)
}

// ParseStaff returns the login of a valid staff token.
func (t *Tokens) ParseStaff(tokenString string) (string, error) {
	return t.parse(tokenString, RoleStaff)
}

func (t *Tokens) parse(tokenString, role string) (string, error) {
	c := claims{}
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if c.Subject == "" || c.Role != role {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}
