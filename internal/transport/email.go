package transport

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"sort"
	"strings"
)

type SMTPConfig struct {
	Addr     string // host:port
	Host     string // for auth, defaults to the host part of Addr
	From     string
	FromName string
	Username string
	Password string
}

// EmailSender delivers booking correspondence over SMTP. Rendering is a
// plain-text key/value body under the template name; the mail service in
// front of the mailbox owns the real layout.
type EmailSender struct {
	cfg    SMTPConfig
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *log.Logger
}

func NewEmailSender(cfg SMTPConfig, logger *log.Logger) *EmailSender {
	if cfg.Host == "" {
		if i := strings.IndexByte(cfg.Addr, ':'); i > 0 {
			cfg.Host = cfg.Addr[:i]
		} else {
			cfg.Host = cfg.Addr
		}
	}
	if logger == nil {
		logger = log.Default()
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &EmailSender{
		cfg:    cfg,
		auth:   auth,
		send:   smtp.SendMail,
		logger: logger,
	}
}

func (s *EmailSender) Send(ctx context.Context, to, name, subject, template string, data map[string]string) error {
	if to == "" {
		return fmt.Errorf("empty recipient address")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", s.cfg.FromName, s.cfg.From)
	fmt.Fprintf(&b, "To: %s <%s>\r\n", name, to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "X-Template: %s\r\n", template)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, data[k])
	}

	if err := s.send(s.cfg.Addr, s.auth, s.cfg.From, []string{to}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	s.logger.Printf("transport: email to=%s template=%s", to, template)
	return nil
}
