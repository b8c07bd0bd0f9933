package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-graphql/internal/action"
	"content-graphql/internal/logging"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

type authCounts struct {
	attempts, failures, successes, tokenErrors int
}

func (c *authCounts) RecordAuthAttempt(context.Context, string)          { c.attempts++ }
func (c *authCounts) RecordAuthFailure(context.Context, string, string)  { c.failures++ }
func (c *authCounts) RecordAuthSuccess(context.Context, string, string)  { c.successes++ }
func (c *authCounts) RecordTokenValidationError(context.Context, string) { c.tokenErrors++ }

func TestAuthMiddleware(t *testing.T) {
	now := time.Now()
	valid := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub":  "42",
		"role": "editor",
		"exp":  now.Add(time.Hour).Unix(),
	})
	expired := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub": "42",
		"exp": now.Add(-time.Hour).Unix(),
	})
	wrongKey := signToken(t, jwt.SigningMethodHS256, "another-secret-another-secret-xx", jwt.MapClaims{"sub": "42"})
	numericSub := signToken(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{"sub": 7})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   *action.User
		wantCounts authCounts
	}{
		{name: "anonymous", wantStatus: http.StatusNoContent},
		{name: "non bearer scheme", header: "Basic abc", wantStatus: http.StatusNoContent},
		{
			name:       "valid token",
			header:     "Bearer " + valid,
			wantStatus: http.StatusNoContent,
			wantUser:   &action.User{ID: "42", Role: "editor"},
			wantCounts: authCounts{attempts: 1, successes: 1},
		},
		{
			name:       "numeric subject",
			header:     "bearer " + numericSub,
			wantStatus: http.StatusNoContent,
			wantUser:   &action.User{ID: "7"},
			wantCounts: authCounts{attempts: 1, successes: 1},
		},
		{
			name:       "expired token",
			header:     "Bearer " + expired,
			wantStatus: http.StatusUnauthorized,
			wantCounts: authCounts{attempts: 1, failures: 1, tokenErrors: 1},
		},
		{
			name:       "wrong key",
			header:     "Bearer " + wrongKey,
			wantStatus: http.StatusUnauthorized,
			wantCounts: authCounts{attempts: 1, failures: 1, tokenErrors: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts := &authCounts{}
			var env action.Environment
			called := false
			mw := AuthMiddleware(AuthConfig{
				Verifier:  NewHMACVerifier(testSecret, time.Second),
				RoleClaim: "role",
				Issuer:    "hmac",
			}, logging.Discard(), counts)
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				env = action.EnvironmentFrom(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCounts, *counts)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.False(t, called)
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
				return
			}
			require.True(t, called)
			assert.NotNil(t, env.Header)
			if tt.wantUser == nil {
				assert.Nil(t, env.User)
				return
			}
			require.NotNil(t, env.User)
			assert.Equal(t, tt.wantUser.ID, env.User.ID)
			assert.Equal(t, tt.wantUser.Role, env.User.Role)
			assert.NotEmpty(t, env.User.Claims)
		})
	}
}

func TestAuthMiddleware_NoVerifierIsAnonymous(t *testing.T) {
	var env action.Environment
	handler := AuthMiddleware(AuthConfig{}, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env = action.EnvironmentFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	req.Header.Set("Authorization", "Bearer not-checked")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.User)
	assert.Equal(t, "Bearer not-checked", env.Header.Get("Authorization"))
}

func TestHMACVerifier_RejectsOtherAlgorithms(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "1"})
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	v := NewHMACVerifier(testSecret, 0)
	_, err = v.Verify(context.Background(), token)
	assert.NoError(t, err)
	_, err = v.Verify(context.Background(), none)
	assert.Error(t, err)
}

func TestNewOIDCVerifier_ConfigErrors(t *testing.T) {
	_, err := NewOIDCVerifier(context.Background(), OIDCConfig{}, nil)
	assert.ErrorContains(t, err, "issuer/audience")

	_, err = NewOIDCVerifier(context.Background(), OIDCConfig{IssuerURL: "http://issuer.example", Audience: "api"}, nil)
	assert.ErrorContains(t, err, "https")
}

func TestValidateTimeClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	skew := time.Minute
	tests := []struct {
		name    string
		claims  map[string]any
		wantErr string
	}{
		{name: "no claims", claims: map[string]any{}},
		{name: "expired within skew", claims: map[string]any{"exp": float64(now.Add(-30 * time.Second).Unix())}},
		{name: "expired beyond skew", claims: map[string]any{"exp": float64(now.Add(-2 * time.Minute).Unix())}, wantErr: "expired"},
		{name: "nbf in future", claims: map[string]any{"nbf": "1700000300"}, wantErr: "not valid yet"},
		{name: "unparseable", claims: map[string]any{"exp": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTimeClaims(tt.claims, skew, now)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken("Bearer"))
	assert.Empty(t, bearerToken(""))
}
