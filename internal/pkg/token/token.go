package token

import (
	"errors"
	"fmt"
	"time"

	"todoapp/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
	ErrMalformed    = errors.New("malformed token")
)

// DefaultTTL is the token lifetime when none is configured.
const DefaultTTL = 20 * time.Minute

type customClaims struct {
	jwt.RegisteredClaims
	UserID uint   `json:"uid"`
	Role   string `json:"role"`
}

// Issuer signs and validates HS256 bearer tokens with a process-wide secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer builds an Issuer. A nil clock means time.Now.
func NewIssuer(secret string, ttl time.Duration, now func() time.Time) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: now}
}

// Issue encodes the user's id, username and role with an expiry.
func (i *Issuer) Issue(user *model.User) (string, error) {
	if user == nil || user.ID == 0 || user.Username == "" {
		return "", fmt.Errorf("issue token: incomplete user")
	}
	now := i.now()
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		UserID: user.ID,
		Role:   user.Role.String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature and expiry and returns the caller identity.
func (i *Issuer) Validate(raw string) (model.Identity, error) {
	claims := &customClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return model.Identity{}, ErrMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return model.Identity{}, ErrExpired
		default:
			return model.Identity{}, ErrInvalidToken
		}
	}

	role, err := model.ParseRole(claims.Role)
	if err != nil || claims.Subject == "" || claims.UserID == 0 {
		return model.Identity{}, ErrMalformed
	}
	return model.Identity{
		UserID:   claims.UserID,
		Username: claims.Subject,
		Role:     role,
	}, nil
}
