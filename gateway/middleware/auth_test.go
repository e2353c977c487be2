package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"epkfarm/crypto"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func callerEcho(t *testing.T, want crypto.Address) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		require.True(t, ok)
		require.True(t, caller.Equal(want))
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticatorAcceptsSubjectClaim(t *testing.T) {
	alice := crypto.DeriveAddress("alice")
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "epk-auth"}, nil)
	handler := auth.Middleware()(callerEcho(t, alice))

	token := signToken(t, jwt.MapClaims{
		"sub": alice.String(),
		"iss": "epk-auth",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/farm/harvest", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	alice := crypto.DeriveAddress("alice")
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "epk-auth"}, nil)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	future := time.Now().Add(time.Hour).Unix()
	cases := map[string]string{
		"missing":        "",
		"expired":        signToken(t, jwt.MapClaims{"sub": alice.String(), "iss": "epk-auth", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no expiry":      signToken(t, jwt.MapClaims{"sub": alice.String(), "iss": "epk-auth"}),
		"wrong issuer":   signToken(t, jwt.MapClaims{"sub": alice.String(), "iss": "other", "exp": future}),
		"module subject": signToken(t, jwt.MapClaims{"sub": crypto.ModuleAddress("farm").String(), "iss": "epk-auth", "exp": future}),
		"no subject":     signToken(t, jwt.MapClaims{"iss": "epk-auth", "exp": future}),
		"garbage":        "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/farm/harvest", nil)
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, http.StatusUnauthorized, res.Code)
		})
	}
}

func TestAuthenticatorCallerHeader(t *testing.T) {
	bob := crypto.DeriveAddress("bob")

	open := NewAuthenticator(AuthConfig{AllowCallerHeader: true}, nil).Middleware()(callerEcho(t, bob))
	req := httptest.NewRequest(http.MethodPost, "/v1/farm/stake", nil)
	req.Header.Set(CallerHeader, bob.String())
	res := httptest.NewRecorder()
	open.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/farm/stake", nil)
	req.Header.Set(CallerHeader, "garbage")
	res = httptest.NewRecorder()
	open.ServeHTTP(res, req)
	require.Equal(t, http.StatusBadRequest, res.Code)

	closed := NewAuthenticator(AuthConfig{}, nil).Middleware()(okHandler())
	req = httptest.NewRequest(http.MethodPost, "/v1/farm/stake", nil)
	req.Header.Set(CallerHeader, bob.String())
	res = httptest.NewRecorder()
	closed.ServeHTTP(res, req)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}
