package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/desertthunder/mediaq/internal/shared"
)

const (
	lookupTimeout = 10 * time.Second
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	screenNameKey = `"screen_name":"`
)

// Lookup resolves a display handle for platforms whose cookies only carry a numeric id.
type Lookup struct {
	client    *http.Client
	endpoints map[string]string
}

// NewLookup creates a [Lookup]. A nil client uses one with a 10s timeout.
func NewLookup(client *http.Client) *Lookup {
	if client == nil {
		client = &http.Client{Timeout: lookupTimeout}
	}
	return &Lookup{
		client: client,
		endpoints: map[string]string{
			"tiktok": "https://www.tiktok.com/passport/web/account/info/",
			"x":      "https://x.com/home",
		},
	}
}

// WithEndpoint points a platform's lookup at another URL, for tests.
func (l *Lookup) WithEndpoint(platformID, url string) *Lookup {
	l.endpoints[platformID] = url
	return l
}

// Username fetches the handle for platformID using cookies. It returns "" when the platform has no lookup.
func (l *Lookup) Username(ctx context.Context, platformID string, cookies []shared.Cookie) (string, error) {
	endpoint, ok := l.endpoints[platformID]
	if !ok {
		return "", nil
	}

	body, err := l.get(ctx, endpoint, cookies)
	if err != nil {
		return "", err
	}

	switch platformID {
	case "tiktok":
		var resp struct {
			Data struct {
				Username   string `json:"username"`
				ScreenName string `json:"screen_name"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("%w: account info: %v", shared.ErrParse, err)
		}
		if resp.Data.Username != "" {
			return resp.Data.Username, nil
		}
		return resp.Data.ScreenName, nil
	case "x":
		return scrapeScreenName(string(body)), nil
	}
	return "", nil
}

func (l *Lookup) get(ctx context.Context, endpoint string, cookies []shared.Cookie) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cookie", cookieHeader(cookies))

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", shared.ErrAuthRequired, endpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func cookieHeader(cookies []shared.Cookie) string {
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// scrapeScreenName returns the first "screen_name" value in a page that is not a route name.
func scrapeScreenName(page string) string {
	parts := strings.Split(page, screenNameKey)
	for _, part := range parts[1:] {
		end := strings.IndexByte(part, '"')
		if end <= 0 {
			continue
		}
		switch handle := part[:end]; handle {
		case "home", "login", "user":
		default:
			return handle
		}
	}
	return ""
}
