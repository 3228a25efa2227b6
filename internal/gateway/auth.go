package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sunilpie-kumar/kustom-backend/internal/config"
	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/errs"
)

// Auth errors. They surface to clients as unauthenticated.
var (
	ErrNoToken          = errors.New("access token required")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidTokenForm = errors.New("invalid token format")
	ErrNoSecret         = errors.New("jwt secret not configured")
)

// Claims are the bearer token claims. Exactly one of UserID and ProviderID
// names the caller; UserID wins when both are present.
type Claims struct {
	UserID     string `json:"userId,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
	jwt.RegisteredClaims
}

// Participant returns the identity the claims name.
func (c *Claims) Participant() (domain.Participant, error) {
	var p domain.Participant
	switch {
	case c.UserID != "":
		p = domain.User(c.UserID)
	case c.ProviderID != "":
		p = domain.Provider(c.ProviderID)
	default:
		return domain.Participant{}, ErrInvalidTokenForm
	}
	if err := p.Validate(); err != nil {
		return domain.Participant{}, ErrInvalidTokenForm
	}
	return p, nil
}

// Authenticator verifies HMAC-signed bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewAuthenticator creates an Authenticator from config. The issuer is only
// checked when configured.
func NewAuthenticator(cfg config.AuthConfig) (*Authenticator, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Authenticator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify parses token and returns the participant it names.
func (a *Authenticator) Verify(token string) (domain.Participant, error) {
	if token == "" {
		return domain.Participant{}, ErrNoToken
	}
	var claims Claims
	_, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.Participant{}, ErrTokenExpired
	case err != nil:
		return domain.Participant{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Participant()
}

// Sign issues a token for p valid for ttl. A zero ttl issues a token without
// expiry.
func (a *Authenticator) Sign(p domain.Participant, ttl time.Duration) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   a.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	switch p.Type {
	case domain.ParticipantProvider:
		claims.ProviderID = p.ID
	default:
		claims.UserID = p.ID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate resolves the caller of an HTTP request.
func (a *Authenticator) Authenticate(r *http.Request) (domain.Participant, error) {
	p, err := a.Verify(bearerToken(r))
	if err != nil {
		return domain.Participant{}, authError(err)
	}
	return p, nil
}

// authError maps a verification failure onto an unauthenticated error
// carrying a client-facing message.
func authError(err error) error {
	switch {
	case errors.Is(err, ErrNoToken):
		return errs.NewUnauthenticatedError("Access token required")
	case errors.Is(err, ErrTokenExpired):
		return errs.NewUnauthenticatedError("Token expired")
	case errors.Is(err, ErrInvalidTokenForm):
		return errs.NewUnauthenticatedError("Invalid token format")
	default:
		return errs.NewUnauthenticatedError("Invalid token")
	}
}
