package transport_test

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"codejudge/internal/judge/transport"
	pkgerrors "codejudge/pkg/errors"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func newAuthenticator(t *testing.T, issuer string) *transport.JWTAuthenticator {
	t.Helper()
	auth, err := transport.NewJWTAuthenticator(transport.AuthConfig{Secret: testSecret, Issuer: issuer})
	if err != nil {
		t.Fatalf("NewJWTAuthenticator failed: %v", err)
	}
	return auth
}

func TestVerifyAcceptsHS512(t *testing.T) {
	auth := newAuthenticator(t, "")
	tests := []struct {
		name string
		id   interface{}
		want string
	}{
		{name: "string id", id: "user-1", want: "user-1"},
		{name: "numeric id", id: 42, want: "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := signToken(t, jwt.SigningMethodHS512, jwt.MapClaims{
				"id":  tt.id,
				"exp": time.Now().Add(time.Hour).Unix(),
			})
			got, err := auth.Verify(context.Background(), token)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestVerifyRejects(t *testing.T) {
	auth := newAuthenticator(t, "codejudge")
	tests := []struct {
		name  string
		token string
		code  pkgerrors.ErrorCode
	}{
		{name: "empty", token: "", code: pkgerrors.TokenInvalid},
		{name: "garbage", token: "not-a-token", code: pkgerrors.TokenInvalid},
		{
			name:  "wrong algorithm",
			token: signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"id": "u1", "iss": "codejudge"}),
			code:  pkgerrors.TokenInvalid,
		},
		{
			name:  "missing id",
			token: signToken(t, jwt.SigningMethodHS512, jwt.MapClaims{"iss": "codejudge"}),
			code:  pkgerrors.TokenInvalid,
		},
		{
			name:  "wrong issuer",
			token: signToken(t, jwt.SigningMethodHS512, jwt.MapClaims{"id": "u1", "iss": "other"}),
			code:  pkgerrors.TokenInvalid,
		},
		{
			name:  "expired",
			token: signToken(t, jwt.SigningMethodHS512, jwt.MapClaims{"id": "u1", "iss": "codejudge", "exp": time.Now().Add(-time.Hour).Unix()}),
			code:  pkgerrors.TokenExpired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Verify(context.Background(), tt.token)
			if !pkgerrors.Is(err, tt.code) {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
		})
	}
}

func TestNewJWTAuthenticatorValidation(t *testing.T) {
	if _, err := transport.NewJWTAuthenticator(transport.AuthConfig{}); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
	if _, err := transport.NewJWTAuthenticator(transport.AuthConfig{Secret: "s", Algorithm: "RS256"}); err == nil {
		t.Fatalf("expected non-HMAC algorithm to fail")
	}
	if _, err := transport.NewJWTAuthenticator(transport.AuthConfig{Secret: "s", JWK: `{"kty":"oct","k":"cw"}`}); err == nil {
		t.Fatalf("expected secret plus jwk to fail")
	}
}

func TestVerifyWithOctetJWK(t *testing.T) {
	k := base64.RawURLEncoding.EncodeToString([]byte(testSecret))
	tests := []struct {
		name    string
		jwk     string
		wantErr bool
	}{
		{name: "oct key", jwk: `{"kty":"oct","k":"` + k + `"}`},
		{name: "oct key with alg", jwk: `{"kty":"oct","k":"` + k + `","alg":"HS512"}`},
		{name: "padded k", jwk: `{"kty":"oct","k":"` + base64.URLEncoding.EncodeToString([]byte(testSecret)) + `"}`},
		{name: "rsa key", jwk: `{"kty":"RSA","n":"abc","e":"AQAB"}`, wantErr: true},
		{name: "empty k", jwk: `{"kty":"oct","k":""}`, wantErr: true},
		{name: "bad base64", jwk: `{"kty":"oct","k":"***"}`, wantErr: true},
		{name: "not json", jwk: `kty=oct`, wantErr: true},
		{name: "non-hmac alg", jwk: `{"kty":"oct","k":"` + k + `","alg":"RS256"}`, wantErr: true},
	}
	token := signToken(t, jwt.SigningMethodHS512, jwt.MapClaims{"id": "user-7", "exp": time.Now().Add(time.Hour).Unix()})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, err := transport.NewJWTAuthenticator(transport.AuthConfig{JWK: tt.jwk})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected jwk to be rejected")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewJWTAuthenticator failed: %v", err)
			}
			got, err := auth.Verify(context.Background(), token)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if got != "user-7" {
				t.Fatalf("expected user-7, got %s", got)
			}
		})
	}
}

func TestJWKAlgorithmSelectsMethod(t *testing.T) {
	k := base64.RawURLEncoding.EncodeToString([]byte(testSecret))
	auth, err := transport.NewJWTAuthenticator(transport.AuthConfig{JWK: `{"kty":"oct","k":"` + k + `","alg":"HS256"}`})
	if err != nil {
		t.Fatalf("NewJWTAuthenticator failed: %v", err)
	}
	if _, err := auth.Verify(context.Background(), signToken(t, jwt.SigningMethodHS512, jwt.MapClaims{"id": "u1"})); err == nil {
		t.Fatalf("HS512 token must be rejected when the key declares HS256")
	}
	if _, err := auth.Verify(context.Background(), signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"id": "u1"})); err != nil {
		t.Fatalf("HS256 token should verify: %v", err)
	}
}
