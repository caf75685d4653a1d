package domain

import (
	"net/http"
	"strings"
	"time"
)

// Account is the identity of one forum user
type Account struct {
	ID         int64
	Label      string
	Username   string
	Password   string
	Cookie     string // raw "k=v; k2=v2" blob, optional
	BaseURL    string // per-account override, optional
	MirrorURLs []string
	UserAgent  string // per-account override, optional
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasCredentials reports whether the account carries a username/password pair
func (a *Account) HasCredentials() bool {
	return a.Username != "" && a.Password != ""
}

// HasCookie reports whether the account carries a cookie blob
func (a *Account) HasCookie() bool {
	return strings.TrimSpace(a.Cookie) != ""
}

// ParseCookies splits a raw "k=v; k2=v2" blob into cookies.
// Malformed fragments are skipped.
func ParseCookies(blob string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, part := range strings.Split(blob, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:  strings.TrimSpace(k),
			Value: strings.TrimSpace(v),
		})
	}
	return cookies
}

// FormatCookies renders cookies back to the "k=v; k2=v2" blob form
func FormatCookies(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
