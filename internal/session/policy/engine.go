// Package policy classifies sessions into security levels and bounds their lifetime.
// Every function here is pure: the same inputs always give the same outputs.
package policy

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"course-admin/backend/internal/session/domain"
)

const (
	// CriticalLifetime caps sessions of privileged roles.
	CriticalLifetime = time.Hour
	// HighLifetime caps sessions of sensitive roles and of unrecognized origins.
	HighLifetime = 4 * time.Hour
)

// DefaultPrivateNetworks are the ranges treated as a recognized private network when none are configured.
var DefaultPrivateNetworks = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var (
	criticalRoles = map[string]bool{"admin": true, "system_admin": true}
	// Roles with access to invoicing and payouts.
	highRoles = map[string]bool{"accounting": true, "accountant": true, "finance": true}
)

// Engine computes a session's security level and its maximum lifetime.
type Engine struct {
	privateNets []netip.Prefix
	fullTTL     time.Duration
}

// NewEngine returns an Engine. cidrs lists the private networks (DefaultPrivateNetworks when empty);
// fullTTL is the configured refresh-token lifetime used for standard sessions.
func NewEngine(cidrs []string, fullTTL time.Duration) (*Engine, error) {
	if fullTTL <= 0 {
		return nil, fmt.Errorf("policy: refresh lifetime must be positive, got %v", fullTTL)
	}
	if len(cidrs) == 0 {
		cidrs = DefaultPrivateNetworks
	}
	nets := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("policy: invalid private network %q: %w", c, err)
		}
		nets = append(nets, p.Masked())
	}
	return &Engine{privateNets: nets, fullTTL: fullTTL}, nil
}

// Classify returns the security level for a role accessing from ipAddress. Privileged roles are always
// critical and accounting roles high; any other role is standard only from a private network.
// Unknown or unparseable origins are high.
func (e *Engine) Classify(role, ipAddress string) domain.SecurityLevel {
	r := strings.ToLower(strings.TrimSpace(role))
	switch {
	case criticalRoles[r]:
		return domain.SecurityLevelCritical
	case highRoles[r]:
		return domain.SecurityLevelHigh
	case e.IsPrivate(ipAddress):
		return domain.SecurityLevelStandard
	default:
		return domain.SecurityLevelHigh
	}
}

// MaxLifetime returns the longest a session of the given level may live. The level caps are ceilings on
// the configured lifetime, never extensions of it.
func (e *Engine) MaxLifetime(level domain.SecurityLevel) time.Duration {
	switch level {
	case domain.SecurityLevelCritical:
		return min(CriticalLifetime, e.fullTTL)
	case domain.SecurityLevelHigh:
		return min(HighLifetime, e.fullTTL)
	case domain.SecurityLevelStandard:
		return e.fullTTL
	default:
		// Unknown levels get the strictest cap.
		return min(CriticalLifetime, e.fullTTL)
	}
}

// IsPrivate reports whether ipAddress lies in one of the configured private networks.
func (e *Engine) IsPrivate(ipAddress string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ipAddress))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range e.privateNets {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
