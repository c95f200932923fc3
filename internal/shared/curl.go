// Utilities for reading cookies out of a browser "Copy as cURL" command.
package shared

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	curlHeaderRe = regexp.MustCompile(`-H\s+'([^']+)'|-H\s+"([^"]+)"`)
	curlCookieRe = regexp.MustCompile(`(?:-b|--cookie)\s+'([^']+)'|(?:-b|--cookie)\s+"([^"]+)"`)
)

// CurlHeaders represents parsed headers and cookies from a cURL command.
type CurlHeaders struct {
	Headers map[string]string
	Cookie  string
}

func firstGroup(m []string) string {
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// ParseCurlCommand parses a cURL command string and extracts headers and the cookie string.
func ParseCurlCommand(data []byte) (*CurlHeaders, error) {
	curlCmd := strings.ReplaceAll(string(data), "\\\n", " ")
	curlCmd = strings.ReplaceAll(curlCmd, "\\", "")

	headers := make(map[string]string)
	var cookie string

	for _, match := range curlHeaderRe.FindAllStringSubmatch(curlCmd, -1) {
		key, value, ok := strings.Cut(firstGroup(match), ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if strings.EqualFold(key, "cookie") {
			if cookie == "" {
				cookie = value
			}
			continue
		}
		headers[key] = value
	}

	if m := curlCookieRe.FindStringSubmatch(curlCmd); m != nil {
		cookie = firstGroup(m)
	}

	if len(headers) == 0 && cookie == "" {
		return nil, fmt.Errorf("%w: no headers found in curl command", ErrParse)
	}
	return &CurlHeaders{Headers: headers, Cookie: cookie}, nil
}

// Cookies converts the "a=b; c=d" cookie string into Netscape cookies scoped to domain.
// The cURL form carries no expiry, so each cookie gets expires.
func (c *CurlHeaders) Cookies(domain string, expires int64) ([]Cookie, error) {
	if strings.TrimSpace(c.Cookie) == "" {
		return nil, fmt.Errorf("%w: curl command has no cookies", ErrParse)
	}

	var cookies []Cookie
	for _, pair := range strings.Split(c.Cookie, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, Cookie{
			Domain:            "." + strings.TrimPrefix(domain, "."),
			IncludeSubdomains: true,
			Path:              "/",
			Secure:            true,
			Expires:           expires,
			Name:              name,
			Value:             value,
		})
	}

	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: curl cookie header is malformed", ErrParse)
	}
	return cookies, nil
}
