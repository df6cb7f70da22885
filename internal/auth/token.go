package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"teamcollab/pkg/interfaces"
)

// Claims is the data carried inside an access token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier issues and validates HS256 access tokens. It implements
// interfaces.TokenVerifier.
type Verifier struct {
	secret []byte
	ttl    time.Duration
}

// NewVerifier creates a token verifier with the given signing secret and
// token lifetime.
func NewVerifier(secret string, ttl time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed token for a user.
func (v *Verifier) Issue(userID, email string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "teamcollab",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses and validates a token string, returning the identity it
// carries. Missing, malformed and expired tokens all fail verification.
func (v *Verifier) Verify(tokenString string) (*interfaces.Identity, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return &interfaces.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}
