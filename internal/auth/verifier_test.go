package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/otcheredev/incident-desk/internal/cache"
	"github.com/otcheredev/incident-desk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func int64Ptr(v int64) *int64 { return &v }

func newTestVerifier(t *testing.T, now time.Time, opts ...VerifierOption) *Verifier {
	t.Helper()
	opts = append([]VerifierOption{WithClock(func() time.Time { return now })}, opts...)
	return NewVerifier(Config{Secret: testSecret, TTL: time.Hour, Issuer: "incident-desk"}, opts...)
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(t, now)

	token, issued, err := v.Issue(models.Claims{UserID: 42, TenantID: int64Ptr(7)})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)
	assert.Equal(t, "42", issued.Subject)

	claims, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	require.NotNil(t, claims.TenantID)
	assert.Equal(t, int64(7), *claims.TenantID)
	assert.False(t, claims.SuperAdmin)
	assert.Equal(t, issued.ID, claims.ID)
}

func TestVerifyExpired(t *testing.T) {
	now := time.Now()
	token, _, err := newTestVerifier(t, now.Add(-2*time.Hour)).Issue(models.Claims{UserID: 1})
	require.NoError(t, err)

	_, err = newTestVerifier(t, now).Verify(context.Background(), token)
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredential))
}

func TestVerifyRejectsForgedTokens(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(t, now)

	base := models.Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "incident-desk",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, base).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS384, base).SignedString([]byte(testSecret))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, base).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry := base
	noExpiry.ExpiresAt = nil
	missingExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, noExpiry).SignedString([]byte(testSecret))
	require.NoError(t, err)

	otherIssuer := base
	otherIssuer.Issuer = "someone-else"
	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, otherIssuer).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"wrong key":    wrongKey,
		"wrong alg":    wrongAlg,
		"alg none":     unsigned,
		"missing exp":  missingExp,
		"wrong issuer": wrongIssuer,
		"garbage":      "not.a.token",
		"empty string": "",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			assert.True(t, apperr.Is(err, apperr.KindInvalidCredential), "got %v", err)
		})
	}
}

func TestVerifyRejectsInconsistentClaims(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(t, now)
	exp := jwt.NewNumericDate(now.Add(time.Hour))

	sign := func(c models.Claims) string {
		c.RegisteredClaims = jwt.RegisteredClaims{Issuer: "incident-desk", ExpiresAt: exp}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return token
	}

	_, err := v.Verify(context.Background(), sign(models.Claims{UserID: 0}))
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredential))

	_, err = v.Verify(context.Background(), sign(models.Claims{UserID: 1, SuperAdmin: true, TenantID: int64Ptr(3)}))
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredential))
}

func TestIssueRejectsSuperAdminWithTenant(t *testing.T) {
	v := newTestVerifier(t, time.Now())
	_, _, err := v.Issue(models.Claims{UserID: 1, SuperAdmin: true, TenantID: int64Ptr(3)})
	assert.Error(t, err)
}

func TestRevocation(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()

	v := newTestVerifier(t, time.Now(), WithRevocations(NewCacheRevocations(mem)))
	ctx := context.Background()

	token, claims, err := v.Issue(models.Claims{UserID: 5, TenantID: int64Ptr(7)})
	require.NoError(t, err)

	_, err = v.Verify(ctx, token)
	require.NoError(t, err)

	require.NoError(t, v.Revoke(ctx, claims))

	_, err = v.Verify(ctx, token)
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredential))
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Time) error { return nil }
func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRevocationLookupFailureFailsClosed(t *testing.T) {
	v := newTestVerifier(t, time.Now(), WithRevocations(failingRevocations{}))

	token, _, err := v.Issue(models.Claims{UserID: 5})
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
}

func TestRevokeWithoutStore(t *testing.T) {
	v := newTestVerifier(t, time.Now())
	_, claims, err := v.Issue(models.Claims{UserID: 5})
	require.NoError(t, err)
	assert.Error(t, v.Revoke(context.Background(), claims))
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
		kind    apperr.Kind
	}{
		{"custom header", map[string]string{HeaderAuthToken: "abc"}, "abc", ""},
		{"bearer", map[string]string{HeaderAuthorization: "Bearer xyz"}, "xyz", ""},
		{"lower case scheme", map[string]string{HeaderAuthorization: "bearer xyz"}, "xyz", ""},
		{"custom header wins", map[string]string{HeaderAuthToken: "abc", HeaderAuthorization: "Bearer xyz"}, "abc", ""},
		{"missing", nil, "", apperr.KindMissingCredential},
		{"basic scheme", map[string]string{HeaderAuthorization: "Basic dXNlcjpwYXNz"}, "", apperr.KindInvalidCredential},
		{"bearer without token", map[string]string{HeaderAuthorization: "Bearer "}, "", apperr.KindInvalidCredential},
		{"no scheme", map[string]string{HeaderAuthorization: "xyz"}, "", apperr.KindInvalidCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			token, err := ExtractToken(r)
			if tt.kind != "" {
				assert.True(t, apperr.Is(err, tt.kind), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}
