package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
)

var ErrInvalidToken = errors.New("invalid bearer token")

// Claims carried by the bearer tokens. The subject is the user id.
type Claims struct {
	IsStaff bool `json:"is_staff"`
	jwt.RegisteredClaims
}

/* Signs a HS256 token for userID that expires after ttl. */
func Issue(secret string, userID uuid.UUID, isStaff bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		IsStaff: isStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

/* Turns the value of an Authorization header into the actor making the request.
An empty header is an anonymous actor; anything else must be a valid, unexpired bearer token. */
func (a *Authenticator) Actor(authHeader string) (library.Actor, error) {
	header := strings.TrimSpace(authHeader)
	if header == "" {
		return library.Anonymous(), nil
	}

	scheme, tokenStr, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return library.Actor{}, fmt.Errorf("%w: authorization scheme must be Bearer", ErrInvalidToken)
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return library.Actor{}, fmt.Errorf("%w: missing token", ErrInvalidToken)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return library.Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return library.Actor{}, fmt.Errorf("%w: subject must be a uuid", ErrInvalidToken)
	}
	if claims.IsStaff {
		return library.NewAdmin(userID), nil
	}
	return library.NewUser(userID), nil
}
