package smtp

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/go-signup-session/internal/config"
)

// Mailer sends emails.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

type mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
}

func NewMailer(cfg *config.Config) Mailer {
	return &mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
	}
}

func (m *mailer) SendEmail(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg))
}

const codeSubject = "Your verification code"

var codeTemplate = template.Must(template.New("code").Parse(`Hi {{.Email}},

Your verification code is:

{{.Code}}

It is valid for {{printf "%.f" .TTL.Minutes}} minutes. If you did not sign up, you can ignore this email.
`))

// CodeDeliverer emails one-time codes.
type CodeDeliverer struct {
	mailer Mailer
	ttl    time.Duration
}

func NewCodeDeliverer(m Mailer, ttl time.Duration) *CodeDeliverer {
	return &CodeDeliverer{mailer: m, ttl: ttl}
}

func (d *CodeDeliverer) Deliver(_ context.Context, email, code string) error {
	var body bytes.Buffer
	err := codeTemplate.Execute(&body, struct {
		Email string
		Code  string
		TTL   time.Duration
	}{email, code, d.ttl})
	if err != nil {
		return fmt.Errorf("render code email: %w", err)
	}
	return d.mailer.SendEmail(email, codeSubject, body.String())
}
