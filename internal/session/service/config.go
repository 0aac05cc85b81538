package service

import (
	"fmt"
	"time"
)

// Config is the immutable session configuration, read once at startup.
type Config struct {
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	MaxSessionsPerUser int
	IPBinding          bool
	UABinding          bool
	// StatelessFallback lets Authenticate accept a verified access token when the store is unreachable.
	StatelessFallback bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:     900 * time.Second,
		RefreshTokenTTL:    604800 * time.Second,
		MaxSessionsPerUser: 5,
		IPBinding:          true,
		UABinding:          true,
		StatelessFallback:  true,
	}
}

// Validate reports configuration that would make the manager unusable.
func (c Config) Validate() error {
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("access token ttl must be positive, got %s", c.AccessTokenTTL)
	}
	if c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("refresh token ttl must be positive, got %s", c.RefreshTokenTTL)
	}
	if c.MaxSessionsPerUser < 1 {
		return fmt.Errorf("max sessions per user must be at least 1, got %d", c.MaxSessionsPerUser)
	}
	return nil
}
