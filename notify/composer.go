package notify

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/MrEthical07/goAccount/metadata"
)

//go:embed templates/*.tmpl
var builtinTemplates embed.FS

const (
	kindVerify   = "verify"
	kindRecovery = "recovery"
)

type templateData struct {
	Email      string
	Code       string
	Link       string
	ReportLink string
}

// Composer renders notifications into messages.
type Composer struct {
	router    *metadata.Router
	templates map[string]*template.Template
}

// NewComposer loads the built-in templates. Files are named
// <kind>.<locale>.tmpl and define "subject" and "body".
func NewComposer(router *metadata.Router) (*Composer, error) {
	return NewComposerFS(router, builtinTemplates, "templates")
}

// NewComposerFS loads templates from dir inside fsys.
func NewComposerFS(router *metadata.Router, fsys fs.FS, dir string) (*Composer, error) {
	if router == nil {
		return nil, fmt.Errorf("notify: metadata router required")
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("notify: read templates: %w", err)
	}

	c := &Composer{router: router, templates: make(map[string]*template.Template)}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".tmpl") {
			continue
		}
		kind, locale, ok := strings.Cut(strings.TrimSuffix(name, ".tmpl"), ".")
		if !ok {
			continue
		}
		raw, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("notify: read %s: %w", name, err)
		}
		tmpl, err := template.New(name).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s: %w", name, err)
		}
		c.templates[kind+"/"+locale] = tmpl
	}

	fallback := router.MatchLocale("").String()
	for _, kind := range []string{kindVerify, kindRecovery} {
		if _, ok := c.templates[kind+"/"+fallback]; !ok {
			return nil, fmt.Errorf("notify: missing %s template for default locale %s", kind, fallback)
		}
	}
	return c, nil
}

// ComposeVerify renders a verify email.
func (c *Composer) ComposeVerify(email VerifyEmail) (Message, error) {
	link := c.router.VerifyLink(email.AccountID, email.Code, email.Options)
	data := templateData{
		Email:      email.Email,
		Code:       email.Code,
		Link:       link,
		ReportLink: c.router.ReportLink(email.AccountID, email.Code),
	}
	msg, err := c.render(kindVerify, email.Options.Locale, data)
	if err != nil {
		return Message{}, err
	}
	msg.To = email.Email
	msg.Headers = c.router.VerifyHeaders(email.AccountID, email.Code, link, withLocale(email.Options, msg.Locale))
	return msg, nil
}

// ComposeRecovery renders a recovery email.
func (c *Composer) ComposeRecovery(email RecoveryEmail) (Message, error) {
	link := c.router.RecoveryLink(email.Token, email.Code, email.Email, email.Options)
	data := templateData{
		Email: email.Email,
		Code:  email.Code,
		Link:  link,
	}
	msg, err := c.render(kindRecovery, email.Options.Locale, data)
	if err != nil {
		return Message{}, err
	}
	msg.To = email.Email
	msg.Headers = c.router.RecoveryHeaders(email.Token, email.Code, link, withLocale(email.Options, msg.Locale))
	return msg, nil
}

func (c *Composer) render(kind, locale string, data templateData) (Message, error) {
	tag := c.router.MatchLocale(locale).String()
	tmpl, ok := c.templates[kind+"/"+tag]
	if !ok {
		tag = c.router.MatchLocale("").String()
		tmpl = c.templates[kind+"/"+tag]
	}

	var subject, body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return Message{}, fmt.Errorf("notify: render %s subject: %w", kind, err)
	}
	if err := tmpl.ExecuteTemplate(&body, "body", data); err != nil {
		return Message{}, fmt.Errorf("notify: render %s body: %w", kind, err)
	}

	return Message{
		Subject: strings.TrimSpace(subject.String()),
		Text:    body.String(),
		Locale:  tag,
	}, nil
}

func withLocale(o metadata.Options, locale string) metadata.Options {
	o.Locale = locale
	return o
}
