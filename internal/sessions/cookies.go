package sessions

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/shared"
)

// authCookies name the cookies that carry a platform's login. Their expiry bounds the session's.
var authCookies = map[string][]string{
	"youtube":   {"SID", "__Secure-1PSID", "__Secure-3PSID", "SAPISID", "LOGIN_INFO"},
	"tiktok":    {"sessionid", "sessionid_ss", "sid_tt"},
	"instagram": {"sessionid"},
	"x":         {"auth_token"},
}

// jsonCookie is the shape produced by browser cookie-export extensions.
type jsonCookie struct {
	Domain         string  `json:"domain"`
	HostOnly       bool    `json:"hostOnly"`
	Path           string  `json:"path"`
	Secure         bool    `json:"secure"`
	HTTPOnly       bool    `json:"httpOnly"`
	Session        bool    `json:"session"`
	ExpirationDate float64 `json:"expirationDate"`
	Name           string  `json:"name"`
	Value          string  `json:"value"`
}

// ParseCookies accepts Netscape cookie-file text, or a JSON cookie export (a bare array or an object with a
// "cookies" array).
func ParseCookies(text string) ([]shared.Cookie, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		return parseJSONCookies(trimmed)
	}
	return shared.ParseNetscapeCookies(text)
}

func parseJSONCookies(text string) ([]shared.Cookie, error) {
	var list []jsonCookie
	if strings.HasPrefix(text, "{") {
		var wrapper struct {
			Cookies []jsonCookie `json:"cookies"`
		}
		if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
			return nil, fmt.Errorf("%w: cookie json: %v", shared.ErrParse, err)
		}
		list = wrapper.Cookies
	} else if err := json.Unmarshal([]byte(text), &list); err != nil {
		return nil, fmt.Errorf("%w: cookie json: %v", shared.ErrParse, err)
	}

	cookies := make([]shared.Cookie, 0, len(list))
	for i, c := range list {
		if c.Domain == "" || c.Name == "" {
			return nil, fmt.Errorf("%w: cookie %d has no domain or name", shared.ErrParse, i+1)
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		var expires int64
		if !c.Session && c.ExpirationDate > 0 {
			expires = int64(c.ExpirationDate)
		}
		cookies = append(cookies, shared.Cookie{
			Domain:            c.Domain,
			IncludeSubdomains: !c.HostOnly,
			Path:              path,
			Secure:            c.Secure,
			HttpOnly:          c.HTTPOnly,
			Expires:           expires,
			Name:              c.Name,
			Value:             c.Value,
		})
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: no cookies found", shared.ErrParse)
	}
	return cookies, nil
}

// forPlatform keeps the unexpired cookies that belong to p.
func forPlatform(p models.Platform, cookies []shared.Cookie, now time.Time) ([]shared.Cookie, error) {
	var kept []shared.Cookie
	expired := 0
	for _, c := range cookies {
		if !p.OwnsHost(c.Domain) {
			continue
		}
		if c.Expires > 0 && !c.ExpiresAt().After(now) {
			expired++
			continue
		}
		kept = append(kept, c)
	}

	switch {
	case len(kept) > 0:
		return kept, nil
	case expired > 0:
		return nil, fmt.Errorf("%w: every %s cookie has expired", shared.ErrParse, p.Name)
	default:
		return nil, fmt.Errorf("%w: no cookies for %s (%s)", shared.ErrParse, p.Name, p.PrimaryDomain())
	}
}

// expiry is the earliest expiry among the login cookies, or now+ttl when they are all session cookies.
func expiry(platformID string, cookies []shared.Cookie, now time.Time, ttl time.Duration) time.Time {
	var earliest time.Time
	for _, name := range authCookies[platformID] {
		for _, c := range cookies {
			if c.Name != name || c.Expires <= 0 {
				continue
			}
			if at := c.ExpiresAt(); earliest.IsZero() || at.Before(earliest) {
				earliest = at
			}
		}
	}
	if earliest.IsZero() {
		return now.Add(ttl)
	}
	return earliest
}

// Username reads the account name a platform leaves in its cookies. YouTube stores none.
func Username(platformID string, cookies []shared.Cookie) string {
	first := func(names ...string) string {
		for _, n := range names {
			if v, ok := shared.CookieValue(cookies, n); ok && v != "" {
				return v
			}
		}
		return ""
	}

	switch platformID {
	case "instagram":
		return first("ds_user", "ds_user_id")
	case "tiktok":
		return first("unique_id", "user_id", "uid_tt")
	case "x":
		twid := first("twid")
		if twid == "" {
			return ""
		}
		if decoded, err := url.QueryUnescape(twid); err == nil {
			twid = decoded
		}
		return strings.TrimPrefix(strings.Trim(twid, `"`), "u=")
	}
	return ""
}
