package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"net/url"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// AppURL is the front-end origin embedded in reset links.
	AppURL string
}

type smtpMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) Mailer {
	return &smtpMailer{cfg: cfg}
}

var resetTemplate = template.Must(template.New("password_reset").Parse(
	`<p>A password reset was requested for your account.</p>
<p><a href="{{.ResetURL}}">Reset your password</a></p>
<p>The link expires in 30 minutes. If you did not request this, ignore this email.</p>`))

func (m *smtpMailer) SendPasswordReset(ctx context.Context, to, rawToken string) error {
	var body bytes.Buffer
	err := resetTemplate.Execute(&body, map[string]string{
		"ResetURL": m.cfg.AppURL + "/reset-password?token=" + url.QueryEscape(rawToken),
	})
	if err != nil {
		return fmt.Errorf("render reset mail: %w", err)
	}
	return m.send(to, "Reset your password", body.String())
}

func (m *smtpMailer) send(to, subject, htmlBody string) error {
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", to, subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
}
