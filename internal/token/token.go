// Package token implements the token service: JWS-signed
// access/refresh/app tokens with an asymmetric key pair and a published
// JWKS document.
package token

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/aegiscore/identity/internal/telemetry"
	"github.com/aegiscore/identity/pkg/apperr"
)

// Type identifies which of the three token classes a JWS carries.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
	TypeApp     Type = "app"
)

// AccessClaims is the access-token claim set.
type AccessClaims struct {
	Subject string `json:"sub"`
	AppID   string `json:"app_id"`
	OrgID   string `json:"org_id,omitempty"`
	Email   string `json:"email"`
	JTI     string `json:"jti"`
	Type    Type   `json:"type"`
	IAT     int64  `json:"iat"`
	EXP     int64  `json:"exp"`
}

// RefreshClaims is the refresh-token claim set.
type RefreshClaims struct {
	Subject string `json:"sub"`
	JTI     string `json:"jti"`
	Type    Type   `json:"type"`
	IAT     int64  `json:"iat"`
	EXP     int64  `json:"exp"`
}

// AppClaims is the app-credential token claim set.
type AppClaims struct {
	Subject       string   `json:"sub"`
	ClientID      string   `json:"client_id"`
	Name          string   `json:"name"`
	Scopes        []string `json:"scopes"`
	RateLimitMin  int      `json:"rate_limit_per_min"`
	Type          Type     `json:"type"`
	IAT           int64    `json:"iat"`
	EXP           int64    `json:"exp"`
}

// ClaimsContext is what callers supply alongside a user to mint an access
// token — a narrow view over the identity the handler has already loaded.
type ClaimsContext struct {
	AppID string
	OrgID string
	Email string
}

// Service issues and validates the three token classes. Key material is
// loaded once at startup and held read-only.
type Service struct {
	privateKey    *rsa.PrivateKey
	publicKey     *rsa.PublicKey
	keyID         string
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewService constructs a Service from an already-loaded RSA key pair.
func NewService(priv *rsa.PrivateKey, keyID, issuer, audience string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		privateKey: priv,
		publicKey:  &priv.PublicKey,
		keyID:      keyID,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (s *Service) signer() (jose.Signer, error) {
	key := jose.SigningKey{Algorithm: jose.RS256, Key: s.privateKey}
	signer, err := jose.NewSigner(key, (&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", s.keyID))
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}
	return signer, nil
}

func newJTI() string { return uuid.NewString() }

// GenerateAccess mints an access token for the given subject/claims context.
func (s *Service) GenerateAccess(userID string, ctx ClaimsContext) (string, string, error) {
	signer, err := s.signer()
	if err != nil {
		return "", "", err
	}
	now := time.Now()
	jti := newJTI()
	claims := AccessClaims{
		Subject: userID,
		AppID:   ctx.AppID,
		OrgID:   ctx.OrgID,
		Email:   ctx.Email,
		JTI:     jti,
		Type:    TypeAccess,
		IAT:     now.Unix(),
		EXP:     now.Add(s.accessTTL).Unix(),
	}
	tok, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", "", fmt.Errorf("signing access token: %w", err)
	}
	telemetry.TokensIssuedTotal.WithLabelValues(string(TypeAccess)).Inc()
	return tok, jti, nil
}

// GenerateRefresh mints a refresh token for userID.
func (s *Service) GenerateRefresh(userID string) (string, string, error) {
	signer, err := s.signer()
	if err != nil {
		return "", "", err
	}
	now := time.Now()
	jti := newJTI()
	claims := RefreshClaims{
		Subject: userID,
		JTI:     jti,
		Type:    TypeRefresh,
		IAT:     now.Unix(),
		EXP:     now.Add(s.refreshTTL).Unix(),
	}
	tok, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", "", fmt.Errorf("signing refresh token: %w", err)
	}
	telemetry.TokensIssuedTotal.WithLabelValues(string(TypeRefresh)).Inc()
	return tok, jti, nil
}

// GenerateTokenPair mints an access+refresh pair in one call.
func (s *Service) GenerateTokenPair(userID string, ctx ClaimsContext) (access, refresh, refreshJTI string, err error) {
	access, _, err = s.GenerateAccess(userID, ctx)
	if err != nil {
		return "", "", "", err
	}
	refresh, refreshJTI, err = s.GenerateRefresh(userID)
	if err != nil {
		return "", "", "", err
	}
	return access, refresh, refreshJTI, nil
}

// GenerateApp mints an app-credential token for a service account.
func (s *Service) GenerateApp(clientID, name string, scopes []string, rateLimitPerMin int) (string, error) {
	signer, err := s.signer()
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := AppClaims{
		Subject:      clientID,
		ClientID:     clientID,
		Name:         name,
		Scopes:       scopes,
		RateLimitMin: rateLimitPerMin,
		Type:         TypeApp,
		IAT:          now.Unix(),
		EXP:          now.Add(s.accessTTL).Unix(),
	}
	tok, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing app token: %w", err)
	}
	telemetry.TokensIssuedTotal.WithLabelValues(string(TypeApp)).Inc()
	return tok, nil
}

func (s *Service) parse(raw string, dst any) error {
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return apperr.Wrap(apperr.Unauthenticated, "malformed token", err)
	}
	if err := parsed.Claims(s.publicKey, dst); err != nil {
		return apperr.Wrap(apperr.Unauthenticated, "bad signature", err)
	}
	return nil
}

// ValidateAccess validates an access token's signature, expiry, and type.
// It does NOT consult the blacklist; callers (middleware) do, so either
// path can be exercised independently.
func (s *Service) ValidateAccess(raw string) (AccessClaims, error) {
	var c AccessClaims
	if err := s.parse(raw, &c); err != nil {
		return AccessClaims{}, err
	}
	if c.Type != TypeAccess {
		return AccessClaims{}, apperr.New(apperr.Unauthenticated, "wrong token type")
	}
	if time.Now().Unix() >= c.EXP {
		return AccessClaims{}, apperr.New(apperr.Unauthenticated, "token expired")
	}
	return c, nil
}

// ValidateRefresh validates a refresh token's signature, expiry, and type.
func (s *Service) ValidateRefresh(raw string) (RefreshClaims, error) {
	var c RefreshClaims
	if err := s.parse(raw, &c); err != nil {
		return RefreshClaims{}, err
	}
	if c.Type != TypeRefresh {
		return RefreshClaims{}, apperr.New(apperr.Unauthenticated, "wrong token type")
	}
	if time.Now().Unix() >= c.EXP {
		return RefreshClaims{}, apperr.New(apperr.Unauthenticated, "token expired")
	}
	return c, nil
}

// ValidateApp validates an app-credential token's signature, expiry, and type.
func (s *Service) ValidateApp(raw string) (AppClaims, error) {
	var c AppClaims
	if err := s.parse(raw, &c); err != nil {
		return AppClaims{}, err
	}
	if c.Type != TypeApp {
		return AppClaims{}, apperr.New(apperr.Unauthenticated, "wrong token type")
	}
	if time.Now().Unix() >= c.EXP {
		return AppClaims{}, apperr.New(apperr.Unauthenticated, "token expired")
	}
	return c, nil
}

// RefreshTTL returns the configured refresh-token lifetime, so callers that
// persist a RefreshToken record can compute its expiry without re-parsing
// the token they just minted.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// PublicKeySet returns the JWKS document exposed at
// /.well-known/jwks.json.
func (s *Service) PublicKeySet() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       s.publicKey,
				KeyID:     s.keyID,
				Algorithm: string(jose.RS256),
				Use:       "sig",
			},
		},
	}
}
