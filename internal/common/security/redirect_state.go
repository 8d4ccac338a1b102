package security

import (
	"encoding/base64"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenQueryParam is the query parameter that carries the session token on
// the final redirect.
const TokenQueryParam = "token"

var DefaultRedirectSchemes = []string{"vscode://", "https://", "http://"}

// EncodeState packs a post-login redirect into the OAuth state parameter.
// An empty redirect yields an empty state, which callers omit.
func EncodeState(redirect string) string {
	redirect = strings.TrimSpace(redirect)
	if redirect == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(redirect))
}

// DecodeState reverses EncodeState. Malformed input reports ok=false and is
// treated the same as no state at all.
func DecodeState(state string) (string, bool) {
	state = strings.TrimSpace(state)
	if state == "" {
		return "", false
	}
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.StdEncoding, base64.RawStdEncoding} {
		raw, err := enc.DecodeString(state)
		if err != nil {
			continue
		}
		if !printable(raw) {
			return "", false
		}
		return string(raw), true
	}
	return "", false
}

func printable(b []byte) bool {
	if len(b) == 0 || !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// RedirectPolicy resolves where the OAuth callback sends the browser.
type RedirectPolicy struct {
	schemes    []string
	defaultURL string
}

func NewRedirectPolicy(schemes []string, defaultURL string) *RedirectPolicy {
	allowed := make([]string, 0, len(schemes))
	for _, s := range schemes {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			allowed = append(allowed, s)
		}
	}
	if len(allowed) == 0 {
		allowed = append(allowed, DefaultRedirectSchemes...)
	}
	return &RedirectPolicy{schemes: allowed, defaultURL: defaultURL}
}

// Allowed reports whether target starts with an allow-listed scheme and
// parses as an absolute URL with a host.
func (p *RedirectPolicy) Allowed(target string) bool {
	lower := strings.ToLower(target)
	matched := false
	for _, s := range p.schemes {
		if strings.HasPrefix(lower, s) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

type Resolution struct {
	URL string
	// Requested is the decoded state, empty when none was supplied or it
	// could not be decoded.
	Requested string
	Rejected  bool
}

// Resolve decodes state and picks the final redirect with token appended.
// Anything that is absent, undecodable or not allow-listed falls back to the
// default URL.
func (p *RedirectPolicy) Resolve(state, token string) Resolution {
	requested, ok := DecodeState(state)
	if ok && p.Allowed(requested) {
		return Resolution{URL: AppendToken(requested, token), Requested: requested}
	}
	return Resolution{
		URL:       AppendToken(p.defaultURL, token),
		Requested: requested,
		Rejected:  ok,
	}
}

// AppendToken adds token as a query parameter, using "?" or "&" depending on
// whether target already has a query. A fragment stays at the end.
func AppendToken(target, token string) string {
	base, fragment, hasFragment := strings.Cut(target, "#")

	sep := "?"
	switch {
	case strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&"):
		sep = ""
	case strings.Contains(base, "?"):
		sep = "&"
	}

	out := base + sep + TokenQueryParam + "=" + url.QueryEscape(token)
	if hasFragment {
		out += "#" + fragment
	}
	return out
}
