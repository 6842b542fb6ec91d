package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, userID int64, expires time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expires)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func authProbe(t *testing.T) (http.Handler, *int64) {
	t.Helper()
	var gotUserID int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return Auth(testSecret)(next), &gotUserID
}

func TestAuthBearerHeader(t *testing.T) {
	handler, gotUserID := authProbe(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, 42, time.Hour))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(42), *gotUserID)
}

func TestAuthSessionCookie(t *testing.T) {
	handler, gotUserID := authProbe(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: signToken(t, testSecret, 7, time.Hour)})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(7), *gotUserID)
}

func TestAuthRejections(t *testing.T) {
	handler, _ := authProbe(t)

	cases := map[string]func(r *http.Request){
		"missing credentials": func(r *http.Request) {},
		"wrong secret": func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", 42, time.Hour))
		},
		"expired token": func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, 42, -time.Minute))
		},
		"malformed token": func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer not.a.token")
		},
		"non-bearer scheme": func(r *http.Request) {
			r.Header.Set("Authorization", "Basic dXNlcjpwdw==")
		},
	}

	for name, prepare := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			prepare(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestGetUserIDAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Zero(t, GetUserID(req.Context()))
}
