package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// HeaderAuthToken is the custom credential header, checked first.
	HeaderAuthToken = "X-Auth-Token"
	// HeaderAuthorization carries "Bearer <token>".
	HeaderAuthorization = "Authorization"
)

// Revocations records credentials withdrawn before their expiry.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Config holds credential signing configuration
type Config struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// Verifier issues and verifies HS256-signed credentials.
type Verifier struct {
	secret      []byte
	ttl         time.Duration
	issuer      string
	now         func() time.Time
	revocations Revocations
}

// VerifierOption configures a Verifier
type VerifierOption func(*Verifier)

// WithClock overrides the time source used for issue and expiry checks
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// WithRevocations enables revocation checks
func WithRevocations(r Revocations) VerifierOption {
	return func(v *Verifier) {
		v.revocations = r
	}
}

// NewVerifier creates a new credential verifier
func NewVerifier(cfg Config, opts ...VerifierOption) *Verifier {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	v := &Verifier{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ExtractToken reads the bearer credential from the custom header or the
// Authorization header, in that order.
func ExtractToken(r *http.Request) (string, error) {
	if token := strings.TrimSpace(r.Header.Get(HeaderAuthToken)); token != "" {
		return token, nil
	}

	authHeader := strings.TrimSpace(r.Header.Get(HeaderAuthorization))
	if authHeader == "" {
		return "", apperr.New(apperr.KindMissingCredential, "authentication credential is required")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperr.New(apperr.KindInvalidCredential, "invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// Verify checks signature, expiry and revocation and returns the claims.
func (v *Verifier) Verify(ctx context.Context, token string) (*models.Claims, error) {
	claims := &models.Claims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, apperr.Wrap(apperr.KindInvalidCredential, "invalid or expired credential", err)
	}

	if claims.UserID <= 0 {
		return nil, apperr.New(apperr.KindInvalidCredential, "invalid or expired credential")
	}
	if claims.SuperAdmin && claims.TenantID != nil {
		return nil, apperr.New(apperr.KindInvalidCredential, "invalid or expired credential")
	}

	if v.revocations != nil && claims.ID != "" {
		revoked, err := v.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			log.Error().Err(err).Str("jti", claims.ID).Msg("Revocation lookup failed")
			return nil, apperr.Wrap(apperr.KindInternal, "credential check unavailable", err)
		}
		if revoked {
			return nil, apperr.New(apperr.KindInvalidCredential, "credential has been revoked")
		}
	}

	return claims, nil
}

// Issue signs a credential for the given identity. Registered claims are
// filled in here; any supplied by the caller are ignored.
func (v *Verifier) Issue(identity models.Claims) (string, *models.Claims, error) {
	if identity.SuperAdmin && identity.TenantID != nil {
		return "", nil, errors.New("super admin credentials cannot carry a tenant")
	}

	now := v.now()
	claims := identity
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    v.issuer,
		Subject:   strconv.FormatInt(identity.UserID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(v.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign credential: %w", err)
	}
	return token, &claims, nil
}

// Revoke withdraws claims until their natural expiry.
func (v *Verifier) Revoke(ctx context.Context, claims *models.Claims) error {
	if v.revocations == nil {
		return errors.New("revocation is not configured")
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return errors.New("credential has no id or expiry")
	}
	return v.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
