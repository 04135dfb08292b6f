package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/library-service/cmd/api/auth"
	"github.com/library-service/cmd/api/library"
	"github.com/matryer/is"
)

const secret = "test-secret"

func TestActor(t *testing.T) {
	authenticator := auth.NewAuthenticator(secret)
	userID := uuid.New()

	t.Run("no header is an anonymous actor", func(t *testing.T) {
		is := is.New(t)

		actor, err := authenticator.Actor("")
		is.NoErr(err)
		is.Equal(actor, library.Anonymous())
	})

	t.Run("a user token", func(t *testing.T) {
		is := is.New(t)

		token, err := auth.Issue(secret, userID, false, time.Hour)
		is.NoErr(err)

		actor, err := authenticator.Actor("Bearer " + token)
		is.NoErr(err)
		is.Equal(actor, library.NewUser(userID))
	})

	t.Run("a staff token is an admin", func(t *testing.T) {
		is := is.New(t)

		token, err := auth.Issue(secret, userID, true, time.Hour)
		is.NoErr(err)

		actor, err := authenticator.Actor("bearer " + token)
		is.NoErr(err)
		is.Equal(actor, library.NewAdmin(userID))
	})

	invalid := func() map[string]string {
		expired, _ := auth.Issue(secret, userID, false, -time.Minute)
		otherSecret, _ := auth.Issue("another-secret", userID, false, time.Hour)
		badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "42",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}).SignedString([]byte(secret))
		noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
		}).SignedString([]byte(secret))
		valid, _ := auth.Issue(secret, userID, false, time.Hour)

		return map[string]string{
			"expired token":         "Bearer " + expired,
			"signed with other key": "Bearer " + otherSecret,
			"subject is not a uuid": "Bearer " + badSubject,
			"token without expiry":  "Bearer " + noExpiry,
			"wrong scheme":          "Basic " + valid,
			"missing token":         "Bearer ",
			"garbage":               "Bearer not.a.token",
		}
	}()
	for name, header := range invalid {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)

			_, err := authenticator.Actor(header)
			is.True(errors.Is(err, auth.ErrInvalidToken))
		})
	}
}
