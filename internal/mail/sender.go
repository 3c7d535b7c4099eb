package mail

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"

	"github.com/taleweave/backend/internal/config"
	"github.com/taleweave/backend/internal/logging"
)

// Sender delivers one-time verification codes by email.
type Sender interface {
	SendOTP(ctx context.Context, to, code string, expiresInMinutes int) error
}

// SMTPSender sends templated OTP mail through an SMTP relay.
type SMTPSender struct {
	cfg config.SMTPConfig
}

// NewSMTPSender constructs a sender targeting the configured relay.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

const otpTextTemplate = `Your TaleWeave verification code

{{.Code}}

This code expires in {{.ExpiresInMinutes}} minutes. If you didn't request
it, you can safely ignore this email.
`

var otpTemplate = template.Must(template.New("otp").Parse(otpTextTemplate))

// SendOTP renders the verification template and hands the message to the relay.
func (s *SMTPSender) SendOTP(_ context.Context, to, code string, expiresInMinutes int) error {
	var body bytes.Buffer
	if err := otpTemplate.Execute(&body, map[string]any{
		"Code":             code,
		"ExpiresInMinutes": expiresInMinutes,
	}); err != nil {
		return fmt.Errorf("render otp mail: %w", err)
	}

	msg := s.buildMessage(to, "Your TaleWeave verification code", body.String())

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) buildMessage(to, subject, body string) []byte {
	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	buf.WriteString("\r\n")

	return buf.Bytes()
}

// LogSender writes codes to the request log instead of sending mail.
// Useful for local development where no relay is configured.
type LogSender struct{}

// SendOTP logs the code instead of delivering it.
func (LogSender) SendOTP(ctx context.Context, to, code string, expiresInMinutes int) error {
	logging.FromContext(ctx).Info("otp issued (mail relay disabled)",
		"to", to, "code", code, "expires_in_minutes", expiresInMinutes)
	return nil
}
