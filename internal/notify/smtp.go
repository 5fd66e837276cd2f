// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"text/template"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/acctgate/internal/account"
)

// SMTPConfig configures an SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
	// ImplicitTLS dials TLS directly (port 465). Otherwise STARTTLS is used
	// when the server offers it.
	ImplicitTLS bool
	Timeout     time.Duration
	// Retries is how many times a temporary failure is retried.
	Retries uint64
}

// Defaults for SMTPConfig fields left empty.
const (
	DefaultSubject = "Reset your password"
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 2
	retryBackoff   = 250 * time.Millisecond
)

var bodyTemplate = template.Must(template.New("reset").Parse(`Hello,

We received a request to reset your password. Use the code below to set a new password:

    {{.Token}}

The code expires in {{.Minutes}} minutes.

If you did not request a password reset, please ignore this email.
`))

// SMTPNotifier implements account.Notifier over SMTP.
type SMTPNotifier struct {
	cfg    SMTPConfig
	from   *mail.Address
	logger *slog.Logger
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
}

var _ account.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier validates cfg and creates a notifier.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").With("port", cfg.Port).Errorf("smtp port out of range")
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").With("from", cfg.From).Wrapf(err, "invalid sender address")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &net.Dialer{}
	return &SMTPNotifier{cfg: cfg, from: from, logger: logger, dial: d.DialContext}, nil
}

// Send implements account.Notifier. Temporary failures (4xx replies and
// network timeouts) are retried.
func (n *SMTPNotifier) Send(ctx context.Context, recipientEmail, token string) error {
	to, err := mail.ParseAddress(recipientEmail)
	if err != nil {
		return oops.Code("NOTIFY_RECIPIENT_INVALID").Wrap(err)
	}
	msg, err := n.message(to, token)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout*time.Duration(n.cfg.Retries+1))
	defer cancel()

	backoff := retry.WithMaxRetries(n.cfg.Retries, retry.NewExponential(retryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := n.deliver(ctx, to.Address, msg); err != nil {
			if temporary(err) {
				n.logger.WarnContext(ctx, "smtp delivery failed, retrying", "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").
			With("host", n.cfg.Host).
			Wrap(err)
	}

	n.logger.InfoContext(ctx, "reset code sent", "recipient", to.Address)
	return nil
}

func (n *SMTPNotifier) message(to *mail.Address, token string) ([]byte, error) {
	var body bytes.Buffer
	data := struct {
		Token   string
		Minutes int
	}{token, int(account.ResetTokenExpiry / time.Minute)}
	if err := bodyTemplate.Execute(&body, data); err != nil {
		return nil, oops.Code("NOTIFY_TEMPLATE_FAILED").Wrap(err)
	}

	var msg bytes.Buffer
	headers := [][2]string{
		{"From", n.from.String()},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("utf-8", n.cfg.Subject)},
		{"Date", time.Now().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=utf-8"},
	}
	for _, h := range headers {
		msg.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	msg.WriteString("\r\n")
	msg.Write(bytes.ReplaceAll(body.Bytes(), []byte("\n"), []byte("\r\n")))
	return msg.Bytes(), nil
}

func (n *SMTPNotifier) deliver(ctx context.Context, rcpt string, msg []byte) error {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	tlsCfg := &tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}

	conn, err := n.dial(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline) //nolint:errcheck // best effort
	}
	if n.cfg.ImplicitTLS {
		conn = tls.Client(conn, tlsCfg)
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close() //nolint:errcheck // handshake error takes precedence
		return err
	}
	defer func() { _ = c.Close() }()

	if !n.cfg.ImplicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsCfg); err != nil {
				return err
			}
		}
	}
	if n.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(n.from.Address); err != nil {
		return err
	}
	if err := c.Rcpt(rcpt); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// temporary reports whether err is worth another delivery attempt.
func temporary(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 400 && protoErr.Code < 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
