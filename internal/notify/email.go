package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"subwatch/internal/models"
	"subwatch/shared/reminders"
)

// EmailConfig selects and configures the outbound mail transport.
type EmailConfig struct {
	Transport    string // "smtp" or "resend"
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	ResendAPIKey string
}

type emailTransport interface {
	send(ctx context.Context, from, to, subject, text, html string) error
	check(ctx context.Context) error
}

// EmailChannel delivers messages as multipart e-mail.
type EmailChannel struct {
	from      string
	transport emailTransport
}

func NewEmailChannel(cfg EmailConfig) (*EmailChannel, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("email: from address is required")
	}

	var transport emailTransport
	switch cfg.Transport {
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("email: smtp host is required")
		}
		port := cfg.SMTPPort
		if port == 0 {
			port = 587
		}
		transport = &smtpTransport{
			host:     cfg.SMTPHost,
			port:     port,
			username: cfg.SMTPUsername,
			password: cfg.SMTPPassword,
		}
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("email: resend api key is required")
		}
		transport = &resendTransport{
			apiKey:   cfg.ResendAPIKey,
			endpoint: resendEndpoint,
			client:   &http.Client{Timeout: 10 * time.Second},
		}
	default:
		return nil, fmt.Errorf("email: unknown transport %q", cfg.Transport)
	}

	return &EmailChannel{from: cfg.From, transport: transport}, nil
}

func (c *EmailChannel) Name() models.Channel { return models.ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, rcpt Recipient, msg *Message) error {
	if rcpt.User.Email == "" {
		return &reminders.SendError{Code: 400, Message: "user has no email address"}
	}
	return c.transport.send(ctx, c.from, rcpt.User.Email, msg.Title, msg.Text, msg.HTML)
}

func (c *EmailChannel) TestConnection(ctx context.Context) error {
	return c.transport.check(ctx)
}

// smtpTransport talks plain SMTP with STARTTLS when the server offers it.
type smtpTransport struct {
	host     string
	port     int
	username string
	password string
}

func (t *smtpTransport) send(ctx context.Context, from, to, subject, text, html string) error {
	client, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err = client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	body, err := buildMIMEMessage(from, to, subject, text, html)
	if err != nil {
		return err
	}
	if _, err = w.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return client.Quit()
}

func (t *smtpTransport) check(ctx context.Context) error {
	client, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Quit()
}

func (t *smtpTransport) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	conn, err := (&net.Dialer{Timeout: 10 * time.Second}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err = client.StartTLS(&tls.Config{ServerName: t.host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if t.username != "" {
		auth := smtp.PlainAuth("", t.username, t.password, t.host)
		if err = client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}
	return client, nil
}

// buildMIMEMessage assembles a multipart/alternative body. The HTML part
// goes last so capable clients prefer it.
func buildMIMEMessage(from, to, subject, text, html string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())

	for _, part := range []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=utf-8", text},
		{"text/html; charset=utf-8", html},
	} {
		if part.body == "" {
			continue
		}
		header := textproto.MIMEHeader{"Content-Type": {part.contentType}}
		pw, err := mw.CreatePart(header)
		if err != nil {
			return nil, err
		}
		if _, err = pw.Write([]byte(part.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const resendEndpoint = "https://api.resend.com/emails"

// resendTransport sends through the Resend HTTP API.
type resendTransport struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text,omitempty"`
	HTML    string   `json:"html,omitempty"`
}

func (t *resendTransport) send(ctx context.Context, from, to, subject, text, html string) error {
	payload, err := json.Marshal(resendPayload{
		From:    from,
		To:      []string{to},
		Subject: subject,
		Text:    text,
		HTML:    html,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("resend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &reminders.SendError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (t *resendTransport) check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.Replace(t.endpoint, "/emails", "/domains", 1), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("resend: api key rejected (status %d)", resp.StatusCode)
	}
	return nil
}
