package middleware

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"content-graphql/internal/action"
	"content-graphql/internal/logging"
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (map[string]any, error)
}

// AuthRecorder receives authentication outcomes.
type AuthRecorder interface {
	RecordAuthAttempt(ctx context.Context, endpoint string)
	RecordAuthFailure(ctx context.Context, endpoint, reason string)
	RecordAuthSuccess(ctx context.Context, endpoint, issuer string)
	RecordTokenValidationError(ctx context.Context, errorType string)
}

// AuthConfig configures AuthMiddleware.
type AuthConfig struct {
	// Verifier is nil when authentication is off; every call is then anonymous.
	Verifier TokenVerifier
	// RoleClaim names the claim copied into User.Role.
	RoleClaim string
	// Issuer labels successful authentications in metrics.
	Issuer string
}

// AuthMiddleware installs the action environment for each request. Requests
// without a bearer token run anonymously; requests with an invalid token are
// rejected with 401.
func AuthMiddleware(cfg AuthConfig, logger *logging.Logger, metrics AuthRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			env := action.Environment{Header: r.Header}
			token := bearerToken(r.Header.Get("Authorization"))
			if cfg.Verifier == nil || token == "" {
				next.ServeHTTP(w, r.WithContext(action.WithEnvironment(r.Context(), env)))
				return
			}

			ctx := r.Context()
			endpoint := r.URL.Path
			if metrics != nil {
				metrics.RecordAuthAttempt(ctx, endpoint)
			}
			claims, err := cfg.Verifier.Verify(ctx, token)
			if err != nil {
				if metrics != nil {
					metrics.RecordAuthFailure(ctx, endpoint, "token_verification_failed")
					metrics.RecordTokenValidationError(ctx, "verification_failed")
				}
				if logger != nil {
					logger.Warn("token validation failed",
						slog.String("error", err.Error()),
						slog.String("endpoint", endpoint),
						slog.String("remote_addr", r.RemoteAddr),
					)
				}
				writeUnauthorized(w, "invalid token")
				return
			}

			user := userFromClaims(claims, cfg.RoleClaim)
			if metrics != nil {
				metrics.RecordAuthSuccess(ctx, endpoint, cfg.Issuer)
			}
			if logger != nil {
				logger.Debug("authentication successful",
					slog.String("subject", user.ID),
					slog.String("role", user.Role),
				)
			}
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", user.ID),
					attribute.Bool("auth.authenticated", true),
				)
			}

			env.User = user
			next.ServeHTTP(w, r.WithContext(action.WithEnvironment(ctx, env)))
		})
	}
}

func userFromClaims(claims map[string]any, roleClaim string) *action.User {
	user := &action.User{Claims: claims}
	switch sub := claims["sub"].(type) {
	case string:
		user.ID = sub
	case float64:
		user.ID = strconv.FormatInt(int64(sub), 10)
	}
	if roleClaim != "" {
		user.Role, _ = claims[roleClaim].(string)
	}
	return user
}

// hmacVerifier accepts HS256/384/512 tokens signed with a shared secret.
type hmacVerifier struct {
	secret []byte
	skew   time.Duration
}

// NewHMACVerifier verifies tokens signed with secret. Expiry and not-before
// are checked with skew of leeway.
func NewHMACVerifier(secret string, skew time.Duration) TokenVerifier {
	return &hmacVerifier{secret: []byte(secret), skew: skew}
}

func (v *hmacVerifier) Verify(_ context.Context, token string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(v.skew),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// OIDCConfig controls OIDC/JWKS validation behavior.
type OIDCConfig struct {
	IssuerURL     string
	Audience      string
	ClockSkew     time.Duration
	SkipTLSVerify bool
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
	skew     time.Duration
}

// NewOIDCVerifier discovers the issuer and verifies tokens against its JWKS.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig, logger *logging.Logger) (TokenVerifier, error) {
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}
	if logger != nil && cfg.SkipTLSVerify {
		logger.Warn("oidc tls verification is disabled; enable only for local development",
			slog.String("issuer", cfg.IssuerURL),
		)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.SkipTLSVerify},
		},
		Timeout: 10 * time.Second,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	return &oidcVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.Audience}),
		skew:     cfg.ClockSkew,
	}, nil
}

func (v *oidcVerifier) Verify(ctx context.Context, token string) (map[string]any, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("invalid token claims: %w", err)
	}
	if err := validateTimeClaims(claims, v.skew, time.Now()); err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(value string) string {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSONError(w, http.StatusUnauthorized, message)
}

func validateTimeClaims(claims map[string]any, skew time.Duration, now time.Time) error {
	if skew <= 0 {
		return nil
	}
	if exp, ok := numericDate(claims["exp"]); ok && now.After(exp.Add(skew)) {
		return errors.New("token expired")
	}
	if nbf, ok := numericDate(claims["nbf"]); ok && now.Add(skew).Before(nbf) {
		return errors.New("token not valid yet")
	}
	return nil
}

func numericDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	default:
		return time.Time{}, false
	}
}
