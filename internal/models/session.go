package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/mediaq/internal/shared"
)

// SessionStatus is the state of a [PlatformSession].
type SessionStatus string

const (
	SessionActive  SessionStatus = "ACTIVE"
	SessionExpired SessionStatus = "EXPIRED"
	SessionNone    SessionStatus = "NONE"
)

// PlatformSession is the stored login state for one platform. Cookies are held separately and sealed.
type PlatformSession struct {
	PlatformID   string        `json:"platform_id"`
	Status       SessionStatus `json:"status"`
	Username     *string       `json:"username,omitempty"`
	CookieMethod *string       `json:"cookie_method,omitempty"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	LastVerified *time.Time    `json:"last_verified,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// EmptySession is the NONE placeholder for a platform without a stored session.
func EmptySession(platformID string) *PlatformSession {
	return &PlatformSession{PlatformID: platformID, Status: SessionNone}
}

// Expired reports whether expires_at has passed.
func (s *PlatformSession) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// CookieMethod is how a session's cookies were acquired.
type CookieMethod string

const (
	MethodManual  CookieMethod = "manual"
	MethodWebview CookieMethod = "webview"
	MethodChrome  CookieMethod = "chrome"
	MethodEdge    CookieMethod = "edge"
	MethodFirefox CookieMethod = "firefox"
	MethodOpera   CookieMethod = "opera"
)

const browserImportPrefix = "browser_import:"

var cookieMethods = []CookieMethod{MethodManual, MethodWebview, MethodChrome, MethodEdge, MethodFirefox, MethodOpera}

// ParseCookieMethod accepts a bare variant name or the stored "browser_import:<browser>" form.
// Anything else is rejected with [shared.ErrInvalidRequest].
func ParseCookieMethod(s string) (CookieMethod, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, browserImportPrefix)
	for _, m := range cookieMethods {
		if CookieMethod(name) == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unknown cookie method %q", shared.ErrInvalidRequest, s)
}

// ParseBrowser accepts only the local browsers whose cookie stores can be imported.
func ParseBrowser(s string) (CookieMethod, error) {
	m, err := ParseCookieMethod(s)
	if err != nil {
		return "", err
	}
	if !m.IsBrowser() {
		return "", fmt.Errorf("%w: %q is not a browser", shared.ErrInvalidRequest, s)
	}
	return m, nil
}

// IsBrowser reports whether the method reads a local browser's cookie store.
func (m CookieMethod) IsBrowser() bool {
	switch m {
	case MethodChrome, MethodEdge, MethodFirefox, MethodOpera:
		return true
	}
	return false
}

// Stored returns the value persisted in cookie_method.
func (m CookieMethod) Stored() string {
	if m.IsBrowser() {
		return browserImportPrefix + string(m)
	}
	return string(m)
}
