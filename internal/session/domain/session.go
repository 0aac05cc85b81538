package domain

import (
	"fmt"
	"time"
)

// SecurityLevel is the risk tier a session is classified into at creation. It never changes for the
// lifetime of the session.
type SecurityLevel int

const (
	SecurityLevelStandard SecurityLevel = iota
	SecurityLevelHigh
	SecurityLevelCritical
)

// String returns the wire name of the level ("standard", "high", "critical").
func (l SecurityLevel) String() string {
	switch l {
	case SecurityLevelStandard:
		return "standard"
	case SecurityLevelHigh:
		return "high"
	case SecurityLevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("SecurityLevel(%d)", int(l))
	}
}

// ParseSecurityLevel parses a wire name produced by String.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	switch s {
	case "standard":
		return SecurityLevelStandard, nil
	case "high":
		return SecurityLevelHigh, nil
	case "critical":
		return SecurityLevelCritical, nil
	default:
		return 0, fmt.Errorf("unknown security level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so records serialize the level by name.
func (l SecurityLevel) MarshalText() ([]byte, error) {
	switch l {
	case SecurityLevelStandard, SecurityLevelHigh, SecurityLevelCritical:
		return []byte(l.String()), nil
	default:
		return nil, fmt.Errorf("invalid security level %d", int(l))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *SecurityLevel) UnmarshalText(b []byte) error {
	v, err := ParseSecurityLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Session is the persisted session record. The identity fields are a snapshot taken at creation and
// are not re-read from the user store on each request.
type Session struct {
	ID             string  `json:"sessionId"`
	UserID         string  `json:"userId"`
	Username       string  `json:"username"`
	Role           string  `json:"role"`
	OrganizationID *string `json:"organizationId,omitempty"`

	IPAddress     string  `json:"ipAddress"`
	UserAgent     string  `json:"userAgent"`
	UAFingerprint string  `json:"uaFingerprint"`
	DeviceInfo    *string `json:"deviceInfo,omitempty"`

	CreatedAt  time.Time `json:"createdAt"`
	LastAccess time.Time `json:"lastAccess"`
	ExpiresAt  time.Time `json:"expiresAt"`

	IsActive      bool          `json:"isActive"`
	SecurityLevel SecurityLevel `json:"securityLevel"`

	AccessJti        string `json:"accessJti"`
	RefreshJti       string `json:"refreshJti"`
	RefreshTokenHash string `json:"refreshTokenHash"` // SHA-256 of the current refresh token
}

// OrgID returns the organization id or "" when the session has none.
func (s *Session) OrgID() string {
	if s == nil || s.OrganizationID == nil {
		return ""
	}
	return *s.OrganizationID
}

// Clone returns a deep copy so stores can hand out records without sharing pointers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.OrganizationID != nil {
		v := *s.OrganizationID
		c.OrganizationID = &v
	}
	if s.DeviceInfo != nil {
		v := *s.DeviceInfo
		c.DeviceInfo = &v
	}
	return &c
}

// Identity is what the login flow knows about the authenticated principal.
type Identity struct {
	UserID         string
	Username       string
	Role           string
	OrganizationID string
}

// Origin is the client fingerprint of a request.
type Origin struct {
	IPAddress  string
	UserAgent  string
	DeviceInfo string // optional; derived from UserAgent when empty
}

// TokenPair is an access/refresh token pair issued for a session.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
