package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const linkTokenType = "account_link"

// LinkTokenIssuer mints and verifies the short-lived single-use tokens
// embedded in manual-link URLs. The signed claims carry the sender identity;
// single use is enforced through the jti record in the store.
type LinkTokenIssuer struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
}

// NewLinkTokenIssuer creates a link token issuer.
func NewLinkTokenIssuer(secret, baseURL string, ttl time.Duration) *LinkTokenIssuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &LinkTokenIssuer{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		ttl:     ttl,
	}
}

// TTL returns the configured token lifetime.
func (i *LinkTokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a link token for the sender and returns the token, its jti,
// and the expiry instant.
func (i *LinkTokenIssuer) Issue(platformName, workspaceID, sender string) (token, jti string, expiresAt time.Time, err error) {
	if len(i.secret) == 0 {
		return "", "", time.Time{}, fmt.Errorf("link token secret not configured")
	}
	now := time.Now().UTC()
	expiresAt = now.Add(i.ttl)
	jti = uuid.NewString()
	claims := jwt.MapClaims{
		"jti":       jti,
		"typ":       linkTokenType,
		"platform":  strings.TrimSpace(platformName),
		"workspace": strings.TrimSpace(workspaceID),
		"sender":    strings.TrimSpace(sender),
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign link token: %w", err)
	}
	return token, jti, expiresAt, nil
}

// LinkURL renders the manual-link URL for a signed token.
func (i *LinkTokenIssuer) LinkURL(token string) string {
	base := i.baseURL
	if base == "" {
		base = "https://app.ledgerchat.io"
	}
	return base + "/link?token=" + token
}

// Verify checks signature, expiry, and token type, returning the claims.
func (i *LinkTokenIssuer) Verify(token string) (jti, platformName, workspaceID, sender string, err error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return "", "", "", "", fmt.Errorf("parse link token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", "", "", "", fmt.Errorf("invalid link token claims")
	}
	if typ, _ := claims["typ"].(string); typ != linkTokenType {
		return "", "", "", "", fmt.Errorf("unexpected link token type %q", typ)
	}
	jti, _ = claims["jti"].(string)
	platformName, _ = claims["platform"].(string)
	workspaceID, _ = claims["workspace"].(string)
	sender, _ = claims["sender"].(string)
	if strings.TrimSpace(jti) == "" {
		return "", "", "", "", fmt.Errorf("link token missing jti")
	}
	return jti, platformName, workspaceID, sender, nil
}
