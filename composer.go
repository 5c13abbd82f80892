package sessionguard

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

const (
	templateVerification  = "verification"
	templatePasswordReset = "password_reset"
	templateChange        = "change_confirmation"
)

const mailTemplates = `
{{define "layout_open"}}<!doctype html><html><body style="font-family:sans-serif">{{end}}
{{define "layout_close"}}<p style="color:#888">{{.AppName}}</p></body></html>{{end}}

{{define "verification"}}{{template "layout_open"}}
<p>Hi {{.Name}},</p>
<p>Confirm your email address to finish setting up your {{.AppName}} account.</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>The link expires in {{.Expiry}}.</p>
{{template "layout_close" .}}{{end}}

{{define "password_reset"}}{{template "layout_open"}}
<p>Hi {{.Name}},</p>
<p>Someone asked to reset the password of your {{.AppName}} account.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>The link expires in {{.Expiry}}. If you did not ask for this, ignore this email.</p>
{{template "layout_close" .}}{{end}}

{{define "change_confirmation"}}{{template "layout_open"}}
<p>Hi {{.Name}},</p>
<p>Your {{.AppName}} account {{.Change}} was changed.</p>
<p>If this was not you, reset your password now. All of your sessions have been signed out.</p>
{{template "layout_close" .}}{{end}}
`

// Mail is a composed notification ready for dispatch.
type Mail struct {
	Subject string
	HTML    string
}

// Composer renders notification bodies. Values are HTML-escaped by
// html/template.
type Composer struct {
	cfg  NotificationConfig
	tmpl *template.Template
}

type mailData struct {
	AppName string
	Name    string
	Link    string
	Expiry  string
	Change  string
}

// NewComposer parses the built-in templates.
func NewComposer(cfg NotificationConfig) (*Composer, error) {
	tmpl, err := template.New("mail").Parse(mailTemplates)
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	if cfg.AppName == "" {
		cfg.AppName = "sessionguard"
	}
	return &Composer{cfg: cfg, tmpl: tmpl}, nil
}

// Verification renders the email verification message.
func (c *Composer) Verification(p Principal, token string, expiry string) (Mail, error) {
	return c.render(templateVerification, "Verify your "+c.cfg.AppName+" email", mailData{
		Name:   displayName(p),
		Link:   c.link("/verify-email", token),
		Expiry: expiry,
	})
}

// PasswordReset renders the password reset message.
func (c *Composer) PasswordReset(p Principal, token string, expiry string) (Mail, error) {
	return c.render(templatePasswordReset, "Reset your "+c.cfg.AppName+" password", mailData{
		Name:   displayName(p),
		Link:   c.link("/reset-password", token),
		Expiry: expiry,
	})
}

// ChangeConfirmation renders the notice sent after a security-relevant account
// change such as "password" or "email".
func (c *Composer) ChangeConfirmation(p Principal, change string) (Mail, error) {
	return c.render(templateChange, "Your "+c.cfg.AppName+" "+change+" was changed", mailData{
		Name:   displayName(p),
		Change: change,
	})
}

func (c *Composer) render(name, subject string, data mailData) (Mail, error) {
	data.AppName = c.cfg.AppName
	var buf bytes.Buffer
	if err := c.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return Mail{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Mail{Subject: subject, HTML: strings.TrimSpace(buf.String())}, nil
}

func (c *Composer) link(path, token string) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	return base + path + "?token=" + url.QueryEscape(token)
}

func displayName(p Principal) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}
