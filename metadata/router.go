// Package metadata carries per-request service, redirect and locale options
// into outgoing notifications.
//
// Options are plain values owned by the caller. The Router reads them for one
// call and never writes them back to an account, so clearing an option on the
// next call only affects that call.
package metadata

import (
	"errors"
	"net/url"
	"strings"

	"golang.org/x/text/language"
)

// Header names set on outgoing notifications.
const (
	HeaderLink          = "X-Link"
	HeaderServiceID     = "X-Service-ID"
	HeaderUID           = "X-Uid"
	HeaderVerifyCode    = "X-Verify-Code"
	HeaderRecoveryCode  = "X-Recovery-Code"
	HeaderRecoveryToken = "X-Recovery-Token"
	HeaderLanguage      = "Content-Language"
)

// Options are the optional per-call metadata.
type Options struct {
	Service    string `json:"service,omitempty"`
	RedirectTo string `json:"redirectTo,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

// Config configures a Router.
type Config struct {
	VerifyURL        string
	RecoveryURL      string
	ReportURL        string
	DefaultLocale    string
	SupportedLocales []string
}

// Router resolves locales and builds links and headers.
type Router struct {
	verifyURL   *url.URL
	recoveryURL *url.URL
	reportURL   *url.URL
	supported   []language.Tag
	matcher     language.Matcher
	fallback    language.Tag
}

// NewRouter parses cfg. The default locale is always supported; when no
// locales are listed it is the only one.
func NewRouter(cfg Config) (*Router, error) {
	verifyURL, err := parseBase(cfg.VerifyURL, "verify")
	if err != nil {
		return nil, err
	}
	recoveryURL, err := parseBase(cfg.RecoveryURL, "recovery")
	if err != nil {
		return nil, err
	}
	var reportURL *url.URL
	if strings.TrimSpace(cfg.ReportURL) != "" {
		if reportURL, err = parseBase(cfg.ReportURL, "report"); err != nil {
			return nil, err
		}
	}

	fallback := language.English
	if cfg.DefaultLocale != "" {
		if fallback, err = language.Parse(cfg.DefaultLocale); err != nil {
			return nil, errors.New("metadata: invalid default locale")
		}
	}

	supported := []language.Tag{fallback}
	for _, raw := range cfg.SupportedLocales {
		tag, err := language.Parse(raw)
		if err != nil {
			return nil, errors.New("metadata: invalid supported locale " + raw)
		}
		if tag != fallback {
			supported = append(supported, tag)
		}
	}

	return &Router{
		verifyURL:   verifyURL,
		recoveryURL: recoveryURL,
		reportURL:   reportURL,
		supported:   supported,
		matcher:     language.NewMatcher(supported),
		fallback:    fallback,
	}, nil
}

// Resolve returns the options effective for one notification. The locale is
// taken from the call, then from the account's stored preference, then the
// default, and is matched against the supported set.
func (r *Router) Resolve(call Options, storedLocale string) Options {
	out := Options{
		Service:    strings.TrimSpace(call.Service),
		RedirectTo: strings.TrimSpace(call.RedirectTo),
	}
	requested := strings.TrimSpace(call.Locale)
	if requested == "" {
		requested = storedLocale
	}
	out.Locale = r.MatchLocale(requested).String()
	return out
}

// MatchLocale maps an Accept-Language style value onto a supported tag.
func (r *Router) MatchLocale(value string) language.Tag {
	if strings.TrimSpace(value) == "" {
		return r.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(value)
	if err != nil || len(tags) == 0 {
		return r.fallback
	}
	_, index, confidence := r.matcher.Match(tags...)
	if confidence == language.No || index < 0 || index >= len(r.supported) {
		return r.fallback
	}
	return r.supported[index]
}

// Supported lists the locales the router can select.
func (r *Router) Supported() []language.Tag {
	out := make([]language.Tag, len(r.supported))
	copy(out, r.supported)
	return out
}

// VerifyLink builds the email verification link.
func (r *Router) VerifyLink(uid, code string, o Options) string {
	return withQuery(r.verifyURL, []param{
		{"uid", uid},
		{"code", code},
		{"redirectTo", o.RedirectTo},
		{"service", o.Service},
	})
}

// RecoveryLink builds the password recovery link.
func (r *Router) RecoveryLink(token, code, email string, o Options) string {
	return withQuery(r.recoveryURL, []param{
		{"token", token},
		{"code", code},
		{"email", email},
		{"redirectTo", o.RedirectTo},
		{"service", o.Service},
	})
}

// ReportLink builds the "this wasn't me" link included in verify emails. It
// is empty when no report URL is configured.
func (r *Router) ReportLink(uid, code string) string {
	if r.reportURL == nil {
		return ""
	}
	return withQuery(r.reportURL, []param{
		{"uid", uid},
		{"code", code},
	})
}

// VerifyHeaders returns the headers of a verify notification.
func (r *Router) VerifyHeaders(uid, code, link string, o Options) map[string]string {
	h := r.baseHeaders(link, o)
	h[HeaderUID] = uid
	h[HeaderVerifyCode] = code
	return h
}

// RecoveryHeaders returns the headers of a recovery notification.
func (r *Router) RecoveryHeaders(token, code, link string, o Options) map[string]string {
	h := r.baseHeaders(link, o)
	h[HeaderRecoveryToken] = token
	h[HeaderRecoveryCode] = code
	return h
}

func (r *Router) baseHeaders(link string, o Options) map[string]string {
	h := map[string]string{
		HeaderLink: link,
	}
	if o.Service != "" {
		h[HeaderServiceID] = o.Service
	}
	if o.Locale != "" {
		h[HeaderLanguage] = o.Locale
	}
	return h
}

type param struct {
	key   string
	value string
}

// withQuery appends non-empty params to base, keeping any query base already has.
func withQuery(base *url.URL, params []param) string {
	u := *base
	q := u.Query()
	for _, p := range params {
		if p.value != "" {
			q.Set(p.key, p.value)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func parseBase(raw, name string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("metadata: " + name + " URL required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("metadata: invalid " + name + " URL")
	}
	return u, nil
}
