package email

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"
)

// SMTPService delivers mail over a single authenticated STARTTLS session.
type SMTPService struct {
	host     string
	port     int
	user     string
	password string
}

func NewSMTPService(host string, port int, user, password string) *SMTPService {
	return &SMTPService{
		host:     host,
		port:     port,
		user:     user,
		password: password,
	}
}

// Send delivers the given messages over one authenticated connection. The
// caller picks the batch size; one message per call keeps a partial failure
// cheap to retry.
func (s *SMTPService) Send(messages ...*Message) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
		return fmt.Errorf("starting TLS: %w", err)
	}
	auth := smtp.PlainAuth("", s.user, s.password, s.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("authenticating as %s: %w", s.user, err)
	}

	for _, msg := range messages {
		if err := s.sendOne(client, msg); err != nil {
			return err
		}
		logger.Info.Printf("📧 sent %q to %s", msg.Subject, strings.Join(msg.To, ", "))
	}
	return client.Quit()
}

func (s *SMTPService) sendOne(client *smtp.Client, msg *Message) error {
	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("MAIL FROM %s: %w", msg.From, err)
	}
	for _, rcpt := range append(append([]string{}, msg.To...), msg.Cc...) {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("opening DATA: %w", err)
	}
	raw, err := Render(msg)
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}
	return w.Close()
}

// Render serializes a message as MIME multipart/mixed with the attachment
// base64-encoded. It is exported so tests and the console service can show
// exactly what would go over the wire.
func Render(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	boundary := "MIXED-BOUNDARY-SEMLA"

	fmt.Fprintf(&buf, "From: %s\r\n", msg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if msg.Attachment == "" {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.Body)
		return buf.Bytes(), nil
	}

	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(msg.Body)
	buf.WriteString("\r\n")

	data, err := os.ReadFile(msg.Attachment)
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	name := filepath.Base(msg.Attachment)
	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: application/octet-stream\r\n")
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", name)

	encoded := base64.StdEncoding.EncodeToString(data)
	// 76-char lines per RFC 2045
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes(), nil
}
