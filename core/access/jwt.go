// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package access

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/scaffold/core/apierror"
	"github.com/relabs-tech/scaffold/core/logger"
)

// JwtMiddlewareBuilder is a helper builder for JwtMiddleware
type JwtMiddlewareBuilder struct {
	// Secret is the HMAC key the tokens are signed with
	Secret []byte
	// Issuer is the accepted issuer for the token. If empty, any issuer is accepted.
	Issuer string
}

// Claims are the claims of an access token
type Claims struct {
	Roles     []string          `json:"roles,omitempty"`
	Selectors map[string]string `json:"selectors,omitempty"`
	jwt.RegisteredClaims
}

// NewJwtMiddleware returns a middleware handler to validate
// JWT bearer token.
//
// Java-Web-Token (JWT) are accepted as "Authorization: Bearer"
// header or as "Scaffold-JWT"-cookie. The authorization is taken from
// the token's claims, the identity is issuer and subject separated by the pipe symbol '|'.
//
// This is a final handler with regards to the bearer token. It will return
// http.StatusUnauthorized when a token is available but invalid.
func NewJwtMiddleware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method " + token.Method.Alg())
		}
		return jmb.Secret, nil
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if AuthorizationFromContext(r.Context()) != nil { // already authorized?
				h.ServeHTTP(w, r)
				return
			}
			tokenString := bearerToken(r)
			if len(tokenString) == 0 {
				h.ServeHTTP(w, r) // no token no auth, moving on
				return
			}

			rlog := logger.FromContext(r.Context())
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc)
			if err != nil || !token.Valid || (jmb.Issuer != "" && claims.Issuer != jmb.Issuer) {
				rlog.WithError(err).Debugln("rejected bearer token")
				writeUnauthorized(w, "Invalid token")
				return
			}

			identity := claims.Issuer + "|" + claims.Subject
			ctx, _ := logger.ContextWithLoggerIdentity(r.Context(), identity)
			auth := &Authorization{
				Identity:  identity,
				Roles:     claims.Roles,
				Selectors: claims.Selectors,
			}
			h.ServeHTTP(w, r.WithContext(auth.ContextWithAuthorization(ctx)))
		})
	}
}

// NewToken returns a signed HS256 token for the authorization
func NewToken(secret []byte, issuer string, auth *Authorization, validity time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles:     auth.Roles,
		Selectors: auth.Selectors,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   auth.Identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// bearerToken extracts the token from the Authorization header or the Scaffold-JWT cookie
func bearerToken(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if len(bearer) > 0 && bearer != "null" {
		if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
			return bearer[7:]
		}
		return bearer
	}
	if cookie, _ := r.Cookie("Scaffold-JWT"); cookie != nil {
		return cookie.Value
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	body, _ := json.Marshal(apierror.InvalidRequest(http.StatusUnauthorized, message, "").Body())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write(body)
}
