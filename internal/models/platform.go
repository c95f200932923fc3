package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/mediaq/internal/shared"
)

// Platform is a site that may need a logged-in session for downloads.
type Platform struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	BaseURL  string   `json:"base_url"`
	LoginURL string   `json:"login_url"`
	Domains  []string `json:"-"`
}

var platforms = []Platform{
	{
		ID:       "youtube",
		Name:     "YouTube",
		BaseURL:  "https://www.youtube.com",
		LoginURL: "https://accounts.google.com/ServiceLogin?service=youtube",
		Domains:  []string{"youtube.com", "youtu.be", "google.com"},
	},
	{
		ID:       "tiktok",
		Name:     "TikTok",
		BaseURL:  "https://www.tiktok.com",
		LoginURL: "https://www.tiktok.com/login",
		Domains:  []string{"tiktok.com"},
	},
	{
		ID:       "instagram",
		Name:     "Instagram",
		BaseURL:  "https://www.instagram.com",
		LoginURL: "https://www.instagram.com/accounts/login/",
		Domains:  []string{"instagram.com"},
	},
	{
		ID:       "x",
		Name:     "X (Twitter)",
		BaseURL:  "https://x.com",
		LoginURL: "https://x.com/i/flow/login",
		Domains:  []string{"x.com", "twitter.com"},
	},
}

// Platforms returns the supported platforms in display order.
func Platforms() []Platform {
	out := make([]Platform, len(platforms))
	copy(out, platforms)
	return out
}

// LookupPlatform finds a platform by id.
func LookupPlatform(id string) (Platform, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range platforms {
		if p.ID == id {
			return p, nil
		}
	}
	return Platform{}, fmt.Errorf("%w: %q", shared.ErrUnsupportedPlatform, id)
}

// PlatformForURL returns the platform whose domains cover rawURL's host.
func PlatformForURL(rawURL string) (Platform, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Platform{}, false
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range platforms {
		if p.OwnsHost(host) {
			return p, true
		}
	}
	return Platform{}, false
}

// OwnsHost reports whether host is one of the platform's domains or a subdomain of one.
func (p Platform) OwnsHost(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), ".")
	for _, d := range p.Domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// PrimaryDomain is the cookie domain used when a cookie source carries none.
func (p Platform) PrimaryDomain() string {
	return p.Domains[0]
}
