package shared

import (
	"errors"
	"strings"
	"testing"
)

const sampleCookies = "# Netscape HTTP Cookie File\n" +
	"# comment line\n" +
	"\n" +
	".instagram.com\tTRUE\t/\tTRUE\t1893456000\tds_user\tjane.doe\n" +
	"#HttpOnly_.instagram.com\tTRUE\t/\tTRUE\t1893456000\tsessionid\tabc123\n" +
	".instagram.com\tTRUE\t/\tFALSE\t0\tcsrftoken\t\r\n"

func TestParseNetscapeCookies(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		cookies, err := ParseNetscapeCookies(sampleCookies)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cookies) != 3 {
			t.Fatalf("expected 3 cookies, got %d", len(cookies))
		}

		if cookies[0].Name != "ds_user" || cookies[0].Value != "jane.doe" {
			t.Errorf("unexpected first cookie %+v", cookies[0])
		}
		if !cookies[1].HttpOnly || cookies[1].Domain != ".instagram.com" {
			t.Errorf("expected HttpOnly cookie with domain, got %+v", cookies[1])
		}
		if cookies[2].Value != "" || cookies[2].Secure || !cookies[2].ExpiresAt().IsZero() {
			t.Errorf("expected empty-value session cookie, got %+v", cookies[2])
		}
		if v, ok := CookieValue(cookies, "sessionid"); !ok || v != "abc123" {
			t.Errorf("CookieValue(sessionid) = %q, %v", v, ok)
		}
	})

	tc := []struct {
		name  string
		input string
		line  string
	}{
		{name: "empty", input: "", line: "no cookies"},
		{name: "only comments", input: "# Netscape HTTP Cookie File\n# nothing\n", line: "no cookies"},
		{name: "too few fields", input: ".x.com\tTRUE\t/\tTRUE\t0\tname\n", line: "line 1"},
		{name: "bad flag", input: ".x.com\tyes\t/\tTRUE\t0\tname\tvalue\n", line: "line 1"},
		{name: "bad expiry", input: "# c\n.x.com\tTRUE\t/\tTRUE\tsoon\tname\tvalue\n", line: "line 2"},
		{name: "space separated", input: ".x.com TRUE / TRUE 0 name value\n", line: "line 1"},
		{name: "empty name", input: ".x.com\tTRUE\t/\tTRUE\t0\t\tvalue\n", line: "line 1"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNetscapeCookies(tt.input)
			if !errors.Is(err, ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.line) {
				t.Errorf("expected error to mention %q, got %v", tt.line, err)
			}
		})
	}
}

func TestFormatNetscapeCookies(t *testing.T) {
	cookies, err := ParseNetscapeCookies(sampleCookies)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := FormatNetscapeCookies(cookies)
	if !strings.HasPrefix(out, "# Netscape HTTP Cookie File") {
		t.Errorf("missing header: %q", out)
	}
	if !strings.Contains(out, "#HttpOnly_.instagram.com\tTRUE\t/\tTRUE\t1893456000\tsessionid\tabc123\n") {
		t.Errorf("HttpOnly line not preserved: %q", out)
	}

	again, err := ParseNetscapeCookies(out)
	if err != nil || len(again) != len(cookies) {
		t.Errorf("formatted output should parse back, got %d cookies, err %v", len(again), err)
	}
}

func TestCookieMatchesDomain(t *testing.T) {
	tc := []struct {
		domain string
		host   string
		want   bool
	}{
		{domain: ".youtube.com", host: "www.youtube.com", want: true},
		{domain: ".youtube.com", host: "youtube.com", want: true},
		{domain: "www.youtube.com", host: "youtube.com", want: true},
		{domain: ".google.com", host: "youtube.com", want: false},
		{domain: ".x.com", host: "notx.com", want: false},
	}

	for _, tt := range tc {
		t.Run(tt.domain+"->"+tt.host, func(t *testing.T) {
			if got := (Cookie{Domain: tt.domain}).MatchesDomain(tt.host); got != tt.want {
				t.Errorf("MatchesDomain = %v, want %v", got, tt.want)
			}
		})
	}
}
