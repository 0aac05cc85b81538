// Package fingerprint derives a coarse, stable signature from a User-Agent string: browser family,
// browser major version and OS family. Patch-level browser updates keep the same fingerprint; a
// different browser, a major upgrade or a different OS do not.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
)

const (
	version = "v1:"
	hashLen = 16
	unknown = "unknown"
)

// Components are the parts of a User-Agent that make up its fingerprint.
type Components struct {
	Browser      string
	BrowserMajor string
	OS           string
	Mobile       bool
	Bot          bool
}

// Parse extracts fingerprint components from a User-Agent string. Missing parts are "unknown".
func Parse(userAgent string) Components {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return Components{Browser: unknown, BrowserMajor: unknown, OS: unknown}
	}
	ua := useragent.New(userAgent)
	name, ver := ua.Browser()
	c := Components{
		Browser:      normalize(name),
		BrowserMajor: normalize(majorVersion(ver)),
		OS:           normalize(ua.OSInfo().Name),
		Mobile:       ua.Mobile(),
		Bot:          ua.Bot(),
	}
	if c.OS == unknown {
		c.OS = normalize(ua.OS())
	}
	return c
}

// String returns the fingerprint in the form "v1:<hex>".
func (c Components) String() string {
	h := sha256.Sum256([]byte(c.Browser + "|" + c.BrowserMajor + "|" + c.OS))
	return version + hex.EncodeToString(h[:hashLen])
}

// Compute returns the fingerprint of a User-Agent string.
func Compute(userAgent string) string {
	return Parse(userAgent).String()
}

// Match reports whether userAgent has the stored fingerprint.
func Match(stored, userAgent string) bool {
	return stored != "" && stored == Compute(userAgent)
}

// DeviceInfo returns a short human-readable device description, e.g. "desktop; windows; chrome 120".
func DeviceInfo(userAgent string) string {
	c := Parse(userAgent)
	kind := "desktop"
	switch {
	case c.Bot:
		kind = "bot"
	case c.Mobile:
		kind = "mobile"
	case c.Browser == unknown && c.OS == unknown:
		kind = unknown
	}
	return kind + "; " + c.OS + "; " + c.Browser + " " + c.BrowserMajor
}

func majorVersion(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.IndexAny(v, "._"); i >= 0 {
		return v[:i]
	}
	return v
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return unknown
	}
	return s
}
