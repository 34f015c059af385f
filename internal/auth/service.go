// Package auth implements the shared-password login of the three modules.
// Each module (pricing, offer, admin) has one password; a successful login
// issues a short-lived HS256 token carrying the module as its role claim.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/mveljko/backend-cenik/internal/common"
)

const (
	defaultTokenTTL = 12 * time.Hour
	roleClaim       = "role"
)

// Module roles. The admin role implies access to the other two modules.
const (
	RolePricing = "pricing"
	RoleOffer   = "offer"
	RoleAdmin   = "admin"
)

// KnownRole reports whether role names one of the three modules.
func KnownRole(role string) bool {
	return role == RolePricing || role == RoleOffer || role == RoleAdmin
}

// PasswordStore provides the stored argon2id hashes per module.
type PasswordStore interface {
	PasswordHash(ctx context.Context, module string) (string, error)
	SetPasswordHash(ctx context.Context, module, hash string) error
}

// Service verifies module passwords and mints/validates tokens.
type Service struct {
	store     PasswordStore
	secret    []byte
	tokenTTL  time.Duration
	issuer    string
	audience  string
	clockSkew time.Duration
	signer    jwa.SignatureAlgorithm
	now       func() time.Time
}

// Config configures the auth service.
type Config struct {
	Store     PasswordStore
	Secret    string
	TokenTTL  time.Duration
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// LoginResult bundles token material returned after a successful login.
type LoginResult struct {
	Role      string    `json:"role"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth: password store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-cenik"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "cenik-frontend"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}
	return &Service{
		store:     cfg.Store,
		secret:    []byte(secret),
		tokenTTL:  ttl,
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		signer:    jwa.HS256,
		now:       time.Now,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login checks the module password and issues a token for the module role.
func (s *Service) Login(ctx context.Context, module, password string) (LoginResult, error) {
	module = strings.ToLower(strings.TrimSpace(module))
	if !KnownRole(module) {
		return LoginResult{}, common.NewAppError("VALIDATION_ERROR", "unknown module", http.StatusBadRequest, nil)
	}
	hash, err := s.store.PasswordHash(ctx, module)
	if err != nil {
		return LoginResult{}, err
	}
	if hash == "" {
		return LoginResult{}, common.NewAppError("UNAUTHORIZED", "module has no password configured", http.StatusUnauthorized, nil)
	}
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil || !match {
		return LoginResult{}, common.NewAppError("UNAUTHORIZED", "wrong password", http.StatusUnauthorized, err)
	}
	token, expiresAt, err := s.signToken(module)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Role: module, Token: token, ExpiresAt: expiresAt}, nil
}

// SetPassword hashes and stores a new password for the module.
func (s *Service) SetPassword(ctx context.Context, module, password string) error {
	module = strings.ToLower(strings.TrimSpace(module))
	if !KnownRole(module) {
		return common.NewAppError("VALIDATION_ERROR", "unknown module", http.StatusBadRequest, nil)
	}
	if len(password) < 4 {
		return common.NewAppError("VALIDATION_ERROR", "password too short", http.StatusBadRequest, nil)
	}
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return err
	}
	return s.store.SetPasswordHash(ctx, module, hash)
}

// ParseToken validates a signed token and returns its module role.
func (s *Service) ParseToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", unauthorized("missing token", nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", unauthorized("invalid token", err)
	}
	if algorithm != s.signer {
		return "", unauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return "", unauthorized("invalid token", err)
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(s.now)),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	}
	if s.clockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(s.clockSkew))
	}
	if err := jwt.Validate(parsed, options...); err != nil {
		return "", unauthorized("invalid token", err)
	}
	roleValue, ok := parsed.Get(roleClaim)
	role, _ := roleValue.(string)
	if !ok || !KnownRole(role) {
		return "", unauthorized("invalid token", errors.New("auth: missing role claim"))
	}
	return role, nil
}

func (s *Service) signToken(role string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	token, err := jwt.NewBuilder().
		Subject(role).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(roleClaim, role).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func unauthorized(message string, err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", message, http.StatusUnauthorized, err)
}
