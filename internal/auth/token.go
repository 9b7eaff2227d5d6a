package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/commdir/apiserver/types"
)

// DefaultTokenTTL is the lifetime of an issued bearer token.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrMissingSecret is returned when no signing secret is configured.
	ErrMissingSecret = errors.New("token signing secret is required")

	// ErrInvalidToken is returned for tokens that fail signature, expiry, or claim checks.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the payload embedded in an admin bearer token.
type Claims struct {
	ID    int            `json:"id"`
	Email string         `json:"email"`
	Role  types.RoleList `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and parses HS256 bearer tokens.
// Tokens are stateless: there is no revocation, so a token stays valid until
// it expires regardless of later password, role, or account changes.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer constructs an Issuer. An empty secret is rejected; a zero ttl selects DefaultTokenTTL.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a signed token for the given identity and roles.
func (i *Issuer) Issue(id int, email string, roles types.RoleList) (string, error) {
	now := i.now()
	claims := Claims{
		ID:    id,
		Email: email,
		Role:  roles.Clone(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(id),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse verifies tokenString and returns its claims.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID < 1 {
		return nil, ErrInvalidToken
	}
	if claims.Role == nil {
		claims.Role = types.RoleList{}
	}
	return claims, nil
}
