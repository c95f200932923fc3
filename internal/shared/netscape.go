package shared

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const netscapeHeader = "# Netscape HTTP Cookie File\n"

const httpOnlyPrefix = "#HttpOnly_"

// Cookie is one line of a Netscape cookie file.
type Cookie struct {
	Domain            string
	IncludeSubdomains bool
	Path              string
	Secure            bool
	HttpOnly          bool
	Expires           int64 // unix seconds, 0 for session cookies
	Name              string
	Value             string
}

// ExpiresAt returns the expiry as a time, or the zero time for session cookies.
func (c Cookie) ExpiresAt() time.Time {
	if c.Expires <= 0 {
		return time.Time{}
	}
	return time.Unix(c.Expires, 0).UTC()
}

// MatchesDomain reports whether the cookie applies to host or any of its parents, e.g. ".youtube.com" for "www.youtube.com".
func (c Cookie) MatchesDomain(host string) bool {
	d := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
	host = strings.ToLower(host)
	return host == d || strings.HasSuffix(host, "."+d) || strings.HasSuffix(d, "."+host)
}

// ParseNetscapeCookies parses Netscape cookie-file text:
//
//	domain \t subdomain-flag \t path \t secure-flag \t expiry \t name \t value
//
// Comment and blank lines are skipped; "#HttpOnly_" prefixed lines are cookies.
// Any malformed line fails the whole parse with [ErrParse].
func ParseNetscapeCookies(text string) ([]Cookie, error) {
	var cookies []Cookie

	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		c, err := parseCookieLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrParse, i+1, err)
		}
		c.HttpOnly = httpOnly
		cookies = append(cookies, c)
	}

	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: no cookies found", ErrParse)
	}
	return cookies, nil
}

func parseCookieLine(line string) (Cookie, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 7 {
		return Cookie{}, fmt.Errorf("expected 7 tab-separated fields, got %d", len(fields))
	}

	sub, err := parseFlag(fields[1])
	if err != nil {
		return Cookie{}, fmt.Errorf("subdomain flag: %w", err)
	}
	secure, err := parseFlag(fields[3])
	if err != nil {
		return Cookie{}, fmt.Errorf("secure flag: %w", err)
	}
	expires, err := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 64)
	if err != nil || expires < 0 {
		return Cookie{}, fmt.Errorf("invalid expiry %q", fields[4])
	}

	c := Cookie{
		Domain:            strings.TrimSpace(fields[0]),
		IncludeSubdomains: sub,
		Path:              fields[2],
		Secure:            secure,
		Expires:           expires,
		Name:              fields[5],
		Value:             fields[6],
	}
	if c.Domain == "" {
		return Cookie{}, fmt.Errorf("empty domain")
	}
	if c.Name == "" {
		return Cookie{}, fmt.Errorf("empty cookie name")
	}
	return c, nil
}

func parseFlag(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	}
	return false, fmt.Errorf("expected TRUE or FALSE, got %q", s)
}

func formatFlag(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// FormatNetscapeCookies renders cookies back into a Netscape cookie file.
func FormatNetscapeCookies(cookies []Cookie) string {
	var b strings.Builder
	b.WriteString(netscapeHeader)
	for _, c := range cookies {
		if c.HttpOnly {
			b.WriteString(httpOnlyPrefix)
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Domain, formatFlag(c.IncludeSubdomains), c.Path, formatFlag(c.Secure), c.Expires, c.Name, c.Value)
	}
	return b.String()
}

// CookieValue returns the value of the first cookie named name.
func CookieValue(cookies []Cookie, name string) (string, bool) {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}
