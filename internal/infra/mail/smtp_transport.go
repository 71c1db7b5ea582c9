package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	domain "squad_recommender/internal/domain/mail"

	"gopkg.in/gomail.v2"
)

const (
	defaultSMTPTimeout = 30 * time.Second
	implicitTLSPort    = 465
)

// SMTPTransport sends messages through an SMTP relay. Every session runs under
// a connection deadline, so Send returns only once the relay has answered or
// the connection is closed.
type SMTPTransport struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	timeout  time.Duration
}

func NewSMTPTransport(host string, port int, username, password, from, fromName string, timeout time.Duration) *SMTPTransport {
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}
	return &SMTPTransport{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		fromName: fromName,
		timeout:  timeout,
	}
}

func (t *SMTPTransport) newMessage(msg *domain.Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", t.from, t.fromName)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", msg.Subject)
	if msg.TextBody != "" {
		m.SetBody("text/plain", msg.TextBody)
		if msg.HTMLBody != "" {
			m.AddAlternative("text/html", msg.HTMLBody)
		}
	} else {
		m.SetBody("text/html", msg.HTMLBody)
	}
	return m
}

// deadline is the earlier of the transport timeout and the ctx deadline.
func (t *SMTPTransport) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(t.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

// Send delivers msg in one SMTP session. Cancelling ctx interrupts the session
// by expiring the connection deadline.
func (t *SMTPTransport) Send(ctx context.Context, msg *domain.Message) error {
	m := t.newMessage(msg)
	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	deadline := t.deadline(ctx)

	dialer := net.Dialer{Deadline: deadline}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return t.sendError(ctx, msg, fmt.Errorf("dial %s: %w", addr, err))
	}
	defer raw.Close()
	if err := raw.SetDeadline(deadline); err != nil {
		return t.sendError(ctx, msg, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = raw.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	var conn net.Conn = raw
	if t.port == implicitTLSPort {
		conn = tls.Client(raw, &tls.Config{ServerName: t.host})
	}

	c, err := smtp.NewClient(conn, t.host)
	if err != nil {
		return t.sendError(ctx, msg, err)
	}
	defer c.Close()

	if t.port != implicitTLSPort {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: t.host}); err != nil {
				return t.sendError(ctx, msg, err)
			}
		}
	}
	if t.username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", t.username, t.password, t.host)); err != nil {
				return t.sendError(ctx, msg, err)
			}
		}
	}

	// gomail resolves the envelope from the headers and writes the MIME body.
	session := gomail.SendFunc(func(from string, to []string, body io.WriterTo) error {
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, rcpt := range to {
			if err := c.Rcpt(rcpt); err != nil {
				return err
			}
		}
		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := body.WriteTo(w); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	})
	if err := gomail.Send(session, m); err != nil {
		return t.sendError(ctx, msg, err)
	}

	// The relay accepted the message; a failed QUIT does not change that.
	_ = c.Quit()
	return nil
}

func (t *SMTPTransport) sendError(ctx context.Context, msg *domain.Message, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("smtp send to %s aborted: %w (%v)", msg.To, ctxErr, err)
	}
	return fmt.Errorf("smtp send to %s failed: %w", msg.To, err)
}
