package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, of the wrong type, or signed by another key.
	ErrInvalidToken = errors.New("invalid token")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessClaims holds JWT claims for the access token. The identity snapshot lets callers authenticate
// from the token alone when the session store is unreachable.
type AccessClaims struct {
	jwt.RegisteredClaims
	Type          string `json:"typ"`
	SessionID     string `json:"session_id"`
	Username      string `json:"username,omitempty"`
	Role          string `json:"role"`
	OrgID         string `json:"org_id,omitempty"`
	SecurityLevel string `json:"sl"`
}

// RefreshClaims holds JWT claims for the refresh token (includes jti for rotation).
type RefreshClaims struct {
	jwt.RegisteredClaims
	Type      string `json:"typ"`
	SessionID string `json:"session_id"`
	OrgID     string `json:"org_id,omitempty"`
}

// SessionClaims is the identity embedded in a freshly issued token pair.
type SessionClaims struct {
	SessionID     string
	UserID        string
	Username      string
	Role          string
	OrgID         string
	SecurityLevel string
}

// Issued is a signed access/refresh pair together with the jti of each token.
type Issued struct {
	AccessToken      string
	AccessJti        string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshJti       string
	RefreshExpiresAt time.Time
}

// VerifiedAccess is the content of a valid access token.
type VerifiedAccess struct {
	SessionClaims
	Jti       string
	ExpiresAt time.Time
}

// VerifiedRefresh is the content of a valid refresh token.
type VerifiedRefresh struct {
	SessionID string
	UserID    string
	OrgID     string
	Jti       string
}

// TokenProvider issues and validates JWT access and refresh tokens using RS256, ES256/384/512 or EdDSA.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	method     jwt.SigningMethod
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with privateKey. The algorithm is derived from the key type.
// issuer and audience are set on claims and checked on verification.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrInvalidKey
	}
	method := jwt.GetSigningMethod(KeyAlg(privateKey.Public()))
	if method == nil {
		return nil, ErrInvalidKey
	}
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		method:     method,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// Issue signs a new access/refresh pair for the session. maxLifetime caps both tokens; a zero value
// means the configured lifetimes apply unchanged.
func (p *TokenProvider) Issue(c SessionClaims, maxLifetime time.Duration) (*Issued, error) {
	if c.SessionID == "" || c.UserID == "" {
		return nil, ErrInvalidToken
	}
	now := p.now().UTC()
	accessTTL := capTTL(p.accessTTL, maxLifetime)
	refreshTTL := capTTL(p.refreshTTL, maxLifetime)

	accessJti, err := generateJTI()
	if err != nil {
		return nil, err
	}
	accessExp := now.Add(accessTTL)
	access, err := p.sign(AccessClaims{
		RegisteredClaims: p.registered(accessJti, c.UserID, now, accessExp),
		Type:             tokenTypeAccess,
		SessionID:        c.SessionID,
		Username:         c.Username,
		Role:             c.Role,
		OrgID:            c.OrgID,
		SecurityLevel:    c.SecurityLevel,
	})
	if err != nil {
		return nil, err
	}

	refreshJti, err := generateJTI()
	if err != nil {
		return nil, err
	}
	refreshExp := now.Add(refreshTTL)
	refresh, err := p.sign(RefreshClaims{
		RegisteredClaims: p.registered(refreshJti, c.UserID, now, refreshExp),
		Type:             tokenTypeRefresh,
		SessionID:        c.SessionID,
		OrgID:            c.OrgID,
	})
	if err != nil {
		return nil, err
	}
	return &Issued{
		AccessToken:      access,
		AccessJti:        accessJti,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshJti:       refreshJti,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyRefresh parses and validates a refresh token (signature, alg, exp, iss, aud, type).
func (p *TokenProvider) VerifyRefresh(tokenString string) (*VerifiedRefresh, error) {
	var claims RefreshClaims
	if err := p.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeRefresh || claims.SessionID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &VerifiedRefresh{
		SessionID: claims.SessionID,
		UserID:    claims.Subject,
		OrgID:     claims.OrgID,
		Jti:       claims.ID,
	}, nil
}

// VerifyAccess parses and validates an access token (signature, alg, exp, iss, aud, type).
func (p *TokenProvider) VerifyAccess(tokenString string) (*VerifiedAccess, error) {
	var claims AccessClaims
	if err := p.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAccess || claims.SessionID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	out := &VerifiedAccess{
		SessionClaims: SessionClaims{
			SessionID:     claims.SessionID,
			UserID:        claims.Subject,
			Username:      claims.Username,
			Role:          claims.Role,
			OrgID:         claims.OrgID,
			SecurityLevel: claims.SecurityLevel,
		},
		Jti: claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (p *TokenProvider) registered(jti, subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(p.method, claims)
	return t.SignedString(p.privateKey)
}

func (p *TokenProvider) parse(tokenString string, claims jwt.Claims) error {
	if tokenString == "" {
		return ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	},
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

func capTTL(ttl, limit time.Duration) time.Duration {
	if limit > 0 && limit < ttl {
		return limit
	}
	return ttl
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
