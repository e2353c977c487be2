package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"epkfarm/crypto"
	"epkfarm/observability"
)

// CallerHeader names the caller on devnets running without JWT auth.
const CallerHeader = "X-Farm-Caller"

type AuthConfig struct {
	Enabled           bool
	HMACSecret        string
	Issuer            string
	Audience          string
	ClockSkew         time.Duration
	AllowCallerHeader bool
}

type contextKey string

const contextKeyCaller contextKey = "gateway.caller"

var (
	errMissingCaller = errors.New("caller not identified")
	errBadSubject    = errors.New("subject is not an account address")
)

// CallerFromContext returns the account authenticated for this request.
func CallerFromContext(ctx context.Context) (crypto.Address, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(crypto.Address)
	return caller, ok
}

// WithCaller attaches caller to ctx.
func WithCaller(ctx context.Context, caller crypto.Address) context.Context {
	return context.WithValue(ctx, contextKeyCaller, caller)
}

type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		logger: logger.With("component", "gateway.auth"),
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		now:    time.Now,
	}
}

// Middleware resolves the caller of a mutating request. With auth enabled the
// caller is the bech32 `sub` claim of an HMAC-signed bearer token; otherwise
// it is read from CallerHeader when that is allowed.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, status, err := a.resolve(r)
			if err != nil {
				a.logger.Debug("request rejected", "path", r.URL.Path, "error", err)
				observability.Gateway().RecordAuthFailure(strings.ToLower(http.StatusText(status)))
				http.Error(w, http.StatusText(status), status)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func (a *Authenticator) resolve(r *http.Request) (crypto.Address, int, error) {
	if !a.cfg.Enabled {
		if !a.cfg.AllowCallerHeader {
			return crypto.Address{}, http.StatusUnauthorized, errMissingCaller
		}
		raw := strings.TrimSpace(r.Header.Get(CallerHeader))
		if raw == "" {
			return crypto.Address{}, http.StatusUnauthorized, errMissingCaller
		}
		caller, err := parseAccount(raw)
		if err != nil {
			return crypto.Address{}, http.StatusBadRequest, err
		}
		return caller, 0, nil
	}

	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return crypto.Address{}, http.StatusUnauthorized, errMissingCaller
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return crypto.Address{}, http.StatusUnauthorized, err
	}
	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return crypto.Address{}, http.StatusUnauthorized, errMissingCaller
	}
	caller, err := parseAccount(subject)
	if err != nil {
		return crypto.Address{}, http.StatusUnauthorized, err
	}
	return caller, 0, nil
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func parseAccount(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", errBadSubject, err)
	}
	if addr.Prefix() != crypto.EPKPrefix {
		return crypto.Address{}, fmt.Errorf("%w: prefix %q", errBadSubject, addr.Prefix())
	}
	return addr, nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
