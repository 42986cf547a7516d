// Package cbdauth issues the short-lived HS256 tokens the Business Dashboard
// v2 API accepts as bearer credentials.
package cbdauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience identifies the Dashboard API to the verifier.
const Audience = "business-dashboard.cisco.com"

const (
	DefaultAppName    = "cbdscript.example.com"
	DefaultAppVersion = "1.0"
	DefaultLifetime   = time.Hour
)

type Claims struct {
	Issuer     string `json:"iss"`
	ClientID   string `json:"cid"`
	AppVersion string `json:"appver"`
	Audience   string `json:"aud"`
	IssuedAt   int64  `json:"iat"`
	ExpiresAt  int64  `json:"exp"`
}

// AccessToken is an issued token. It is never modified after Issue returns.
type AccessToken struct {
	Raw    string
	KeyID  string
	Claims Claims
}

func (t AccessToken) IssuedAt() time.Time {
	return time.Unix(t.Claims.IssuedAt, 0)
}

func (t AccessToken) ExpiresAt() time.Time {
	return time.Unix(t.Claims.ExpiresAt, 0)
}

func (t AccessToken) Lifetime() time.Duration {
	return time.Duration(t.Claims.ExpiresAt-t.Claims.IssuedAt) * time.Second
}

// SigningError reports a token that could not be produced from the given key
// material.
type SigningError struct {
	KeyID string
	Err   error
}

func (e *SigningError) Error() string {
	if e == nil || e.Err == nil {
		return "token signing failed"
	}
	if e.KeyID == "" {
		return "token signing failed: " + e.Err.Error()
	}
	return fmt.Sprintf("token signing failed for key %q: %v", e.KeyID, e.Err)
}

func (e *SigningError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var (
	errEmptySecret = errors.New("secret is empty")
	errEmptyKeyID  = errors.New("key id is empty")
	errLifetime    = errors.New("lifetime must be at least one second")
)

// Issue signs a token for clientID valid from now for lifetime. The key id is
// carried in the JOSE "kid" header so the Dashboard can select the secret.
// clientID is used verbatim; callers that need a generated id should use an
// Issuer.
func Issue(keyID, secret, clientID, appName, appVersion string, lifetime time.Duration, now time.Time) (AccessToken, error) {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return AccessToken{}, &SigningError{Err: errEmptyKeyID}
	}
	if strings.TrimSpace(secret) == "" {
		return AccessToken{}, &SigningError{KeyID: keyID, Err: errEmptySecret}
	}
	seconds := int64(lifetime / time.Second)
	if seconds < 1 {
		return AccessToken{}, &SigningError{KeyID: keyID, Err: errLifetime}
	}
	if appName == "" {
		appName = DefaultAppName
	}
	if appVersion == "" {
		appVersion = DefaultAppVersion
	}

	iat := now.Unix()
	claims := Claims{
		Issuer:     appName,
		ClientID:   clientID,
		AppVersion: appVersion,
		Audience:   Audience,
		IssuedAt:   iat,
		ExpiresAt:  iat + seconds,
	}

	// MapClaims keeps "aud" a plain string on the wire.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":    claims.Issuer,
		"cid":    claims.ClientID,
		"appver": claims.AppVersion,
		"aud":    claims.Audience,
		"iat":    claims.IssuedAt,
		"exp":    claims.ExpiresAt,
	})
	token.Header["kid"] = keyID

	raw, err := token.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, &SigningError{KeyID: keyID, Err: err}
	}
	return AccessToken{Raw: raw, KeyID: keyID, Claims: claims}, nil
}

// Verify checks the signature, audience and validity window of raw at now.
func Verify(raw, secret string, now time.Time) (AccessToken, error) {
	mapClaims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(raw, mapClaims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return AccessToken{}, err
	}

	keyID, _ := parsed.Header["kid"].(string)
	claims := Claims{
		Issuer:     stringClaim(mapClaims, "iss"),
		ClientID:   stringClaim(mapClaims, "cid"),
		AppVersion: stringClaim(mapClaims, "appver"),
		Audience:   stringClaim(mapClaims, "aud"),
		IssuedAt:   int64Claim(mapClaims, "iat"),
		ExpiresAt:  int64Claim(mapClaims, "exp"),
	}
	return AccessToken{Raw: raw, KeyID: keyID, Claims: claims}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}

func int64Claim(claims jwt.MapClaims, key string) int64 {
	switch v := claims[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}
