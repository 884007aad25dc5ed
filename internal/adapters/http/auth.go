package httpadapter

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

var errInvalidToken = errors.New("invalid token")

// Claims is the subset of the HS256 token payload the API relies on.
type Claims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp,omitempty"`
	Iat int64  `json:"iat,omitempty"`
}

type ownerIDContextKey struct{}

func ownerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ownerID, _ := ctx.Value(ownerIDContextKey{}).(string)
	return ownerID
}

func (rt *Router) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("missing bearer token")))
			return
		}
		claims, err := VerifyToken(rt.jwtSecret, token, time.Now())
		if err != nil {
			writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "authenticate", err))
			return
		}

		annotateOwner(r.Context(), claims.Sub)
		ctx := context.WithValue(r.Context(), ownerIDContextKey{}, claims.Sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	return token, token != ""
}

// SignToken issues an HS256 token for the given claims.
func SignToken(secret []byte, claims Claims) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	if strings.TrimSpace(claims.Sub) == "" {
		return "", errors.New("sub is required")
	}
	headerJSON, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(payloadJSON)
	return signingInput + "." + sign(signingInput, secret), nil
}

// VerifyToken checks the signature, algorithm and expiry and returns the claims.
func VerifyToken(secret []byte, token string, now time.Time) (Claims, error) {
	if len(secret) == 0 {
		return Claims{}, errors.New("jwt secret not configured")
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, errInvalidToken
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, errInvalidToken
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil || header.Alg != "HS256" {
		return Claims{}, errInvalidToken
	}

	expectedSig := sign(parts[0]+"."+parts[1], secret)
	if !hmac.Equal([]byte(parts[2]), []byte(expectedSig)) {
		return Claims{}, errInvalidToken
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, errInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return Claims{}, errInvalidToken
	}
	claims.Sub = strings.TrimSpace(claims.Sub)
	if claims.Sub == "" {
		return Claims{}, errInvalidToken
	}
	if claims.Exp > 0 && now.UTC().Unix() > claims.Exp {
		return Claims{}, errInvalidToken
	}
	return claims, nil
}

func sign(input string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(input))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
