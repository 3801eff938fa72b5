package smtpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"redmine-email-connector/internal/models"
)

// Sender delivers the connector's outbound notifications over SMTP.
// Both implicit TLS (smtps, port 465 providers) and STARTTLS are
// supported, with PLAIN or LOGIN authentication.
type Sender struct {
	cfg models.EmailConfig
}

func NewSender(cfg models.EmailConfig) *Sender {
	return &Sender{cfg: cfg}
}

// Send delivers one plain-text message. Delivery is attempted exactly once;
// the caller decides whether a failed notification is retried on a later
// poll cycle.
func (s *Sender) Send(_ context.Context, to, subject, body string, cc []string) error {
	if to == "" {
		return fmt.Errorf("no recipient specified")
	}

	message := buildMessage(s.cfg.From, to, subject, body, cc)

	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return err
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range append([]string{to}, cc...) {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to initiate data transfer: %w", err)
	}
	if _, err := w.Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data transfer: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("failed to quit SMTP session: %w", err)
	}

	return nil
}

// effectiveTLSMode resolves the configured TLS mode, defaulting by port:
// 465 is the implicit-TLS port, everything else negotiates STARTTLS.
func (s *Sender) effectiveTLSMode() string {
	if mode := strings.ToLower(strings.TrimSpace(s.cfg.SMTPTLS)); mode != "" {
		return mode
	}
	if s.cfg.SMTPPort == 465 {
		return "smtps"
	}
	return "starttls"
}

func (s *Sender) dial() (*smtp.Client, error) {
	addr := s.cfg.SMTPHost + ":" + strconv.Itoa(s.cfg.SMTPPort)
	tlsConfig := &tls.Config{ServerName: s.cfg.SMTPHost}

	switch s.effectiveTLSMode() {
	case "smtps":
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect via SMTPS: %w", err)
		}
		client, err := smtp.NewClient(conn, s.cfg.SMTPHost)
		if err != nil {
			return nil, fmt.Errorf("failed to create SMTP client: %w", err)
		}
		return client, nil
	case "none":
		client, err := smtp.Dial(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		return client, nil
	default:
		client, err := smtp.Dial(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
		return client, nil
	}
}

func (s *Sender) authenticate(client *smtp.Client) error {
	if s.cfg.Login == "" || s.cfg.Password == "" {
		return nil
	}

	var auth smtp.Auth
	switch strings.ToLower(strings.TrimSpace(s.cfg.SMTPAuthType)) {
	case "login":
		auth = &loginAuth{username: s.cfg.Login, password: s.cfg.Password}
	default:
		auth = smtp.PlainAuth("", s.cfg.Login, s.cfg.Password, s.cfg.SMTPHost)
	}

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	return nil
}

// loginAuth implements SMTP LOGIN authentication for providers that do not
// offer AUTH PLAIN.
type loginAuth struct {
	username, password string
}

func (a *loginAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", []byte{}, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		switch string(fromServer) {
		case "Username:":
			return []byte(a.username), nil
		case "Password:":
			return []byte(a.password), nil
		default:
			return nil, fmt.Errorf("unexpected server challenge: %s", fromServer)
		}
	}
	return nil, nil
}

func buildMessage(from, to, subject, body string, cc []string) string {
	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", to),
	}
	if len(cc) > 0 {
		headers = append(headers, fmt.Sprintf("Cc: %s", strings.Join(cc, ", ")))
	}
	headers = append(headers,
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	)

	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}
