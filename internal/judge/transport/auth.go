package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "codejudge/pkg/errors"
)

const defaultAlgorithm = "HS512"

// AuthConfig configures token verification. Exactly one of Secret and JWK is set.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	// JWK is a symmetric JSON Web Key ("kty": "oct") holding the base64url secret in "k".
	JWK       string `yaml:"jwk"`
	Algorithm string `yaml:"algorithm"`
	Issuer    string `yaml:"issuer"`
}

type octetKey struct {
	Kty string `json:"kty"`
	K   string `json:"k"`
	Alg string `json:"alg"`
}

// parseOctetJWK returns the decoded secret and the key's declared algorithm.
func parseOctetJWK(raw string) ([]byte, string, error) {
	var key octetKey
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return nil, "", fmt.Errorf("parse jwk failed: %w", err)
	}
	if key.Kty != "oct" {
		return nil, "", fmt.Errorf("unsupported jwk key type: %q", key.Kty)
	}
	secret, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(key.K, "="))
	if err != nil {
		return nil, "", fmt.Errorf("decode jwk key failed: %w", err)
	}
	if len(secret) == 0 {
		return nil, "", fmt.Errorf("jwk key is empty")
	}
	return secret, key.Alg, nil
}

// JWTAuthenticator verifies HMAC-signed tokens carrying the user id in the "id" claim.
type JWTAuthenticator struct {
	secret    []byte
	algorithm string
	issuer    string
}

type tokenClaims struct {
	ID interface{} `json:"id"`
	jwt.RegisteredClaims
}

// NewJWTAuthenticator creates an authenticator. Only HMAC algorithms are accepted.
// A JWK's "alg" applies when Algorithm is empty.
func NewJWTAuthenticator(cfg AuthConfig) (*JWTAuthenticator, error) {
	var (
		secret []byte
		keyAlg string
	)
	switch {
	case cfg.Secret != "" && cfg.JWK != "":
		return nil, fmt.Errorf("jwt secret and jwk are mutually exclusive")
	case cfg.JWK != "":
		var err error
		secret, keyAlg, err = parseOctetJWK(cfg.JWK)
		if err != nil {
			return nil, err
		}
	case cfg.Secret != "":
		secret = []byte(cfg.Secret)
	default:
		return nil, fmt.Errorf("jwt secret is required")
	}
	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = strings.ToUpper(keyAlg)
	}
	if alg == "" {
		alg = defaultAlgorithm
	}
	if _, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm: %s", alg)
	}
	return &JWTAuthenticator{secret: secret, algorithm: alg, issuer: cfg.Issuer}, nil
}

// Verify returns the user id of a valid token.
func (a *JWTAuthenticator) Verify(_ context.Context, raw string) (string, error) {
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{a.algorithm})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", pkgerrors.New(pkgerrors.TokenExpired)
		}
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	id := claimID(claims.ID)
	if id == "" {
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return id, nil
}

func claimID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		if id != float64(int64(id)) {
			return ""
		}
		return strconv.FormatInt(int64(id), 10)
	default:
		return ""
	}
}
