package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/miniiam/apiserver/types"
)

var (
	ErrMissingSecret = errors.New("token signing secret is required")
	ErrInvalidToken  = errors.New("invalid token")
)

// Claim is the signed identity a caller presents. It is an immutable value;
// downstream components trust it without re-querying the store.
type Claim struct {
	Subject    string     `json:"sub"`
	Role       types.Role `json:"role"`
	UserID     int        `json:"id"`
	Department *string    `json:"department"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// Refresh returns a copy of c whose role and department come from the live
// user record. Identity (subject and id) is kept from the claim.
func (c Claim) Refresh(user types.User) Claim {
	c.Role = user.Role
	c.Department = user.Department
	return c
}

type tokenClaims struct {
	Role       types.Role `json:"role"`
	UserID     int        `json:"id"`
	Department *string    `json:"department"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies claims with HMAC-SHA256.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue produces a signed token for user along with the claim it encodes.
func (i *Issuer) Issue(user types.User) (string, Claim, error) {
	now := i.now().UTC().Truncate(time.Second)
	claims := tokenClaims{
		Role:       user.Role,
		UserID:     user.ID,
		Department: user.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", Claim{}, err
	}
	return token, Claim{
		Subject:    user.Username,
		Role:       user.Role,
		UserID:     user.ID,
		Department: user.Department,
		IssuedAt:   now,
		ExpiresAt:  now.Add(i.ttl),
	}, nil
}

// Parse verifies the signature and expiry of tokenString and returns its claim.
func (i *Issuer) Parse(tokenString string) (Claim, error) {
	claims := tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	},
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return Claim{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.UserID < 1 || !claims.Role.Valid() {
		return Claim{}, ErrInvalidToken
	}

	claim := Claim{
		Subject:    claims.Subject,
		Role:       claims.Role,
		UserID:     claims.UserID,
		Department: claims.Department,
	}
	if claims.IssuedAt != nil {
		claim.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		claim.ExpiresAt = claims.ExpiresAt.Time
	}
	return claim, nil
}

// String identifies the claim in logs without exposing the token.
func (c Claim) String() string {
	return c.Subject + "#" + strconv.Itoa(c.UserID) + "(" + string(c.Role) + ")"
}
