package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailflux/mailflux/config"
	"github.com/mailflux/mailflux/dto"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/tracing"
)

// RelayClient speaks SMTP to the upstream relay. One instance is shared
// across worker jobs; each dispatch dials its own connection so a broken
// session never leaks into the next job.
type RelayClient struct {
	cfg *config.RelayConfig
}

func NewRelayClient(cfg *config.RelayConfig) interfaces.RelayService {
	return &RelayClient{cfg: cfg}
}

func (s *RelayClient) Send(ctx context.Context, job *dto.EmailJob) (*interfaces.RelayResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RelayClient.Send")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("messageId", job.MessageID, "recipients", len(job.To))

	if job.FromAddress == "" {
		return nil, errors.New("from address is required")
	}
	if len(job.To) == 0 {
		return nil, errors.New("at least one recipient is required")
	}

	buffer := bytes.NewBuffer(nil)
	if err := s.buildMessage(ctx, job, buffer); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	result, err := s.sendToRelay(ctx, job.FromAddress, job.To, buffer)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return result, nil
}

// buildHeaders assembles the message headers: caller headers first, then the
// delivery headers the pipeline owns, which must not be overridden.
func (s *RelayClient) buildHeaders(job *dto.EmailJob) map[string]string {
	headers := make(map[string]string, len(job.Headers)+8)
	for k, v := range job.Headers {
		headers[k] = v
	}

	from := job.FromAddress
	if job.FromName != "" {
		from = fmt.Sprintf("%q <%s>", job.FromName, job.FromAddress)
	}
	headers["From"] = from
	headers["To"] = strings.Join(job.To, ", ")
	headers["Subject"] = job.Subject
	headers["Date"] = time.Now().UTC().Format(time.RFC1123Z)
	headers["Message-Id"] = job.MessageID
	headers["MIME-Version"] = "1.0"
	if job.ReplyTo != "" {
		headers["Reply-To"] = job.ReplyTo
	}

	headers["X-Message-Id"] = job.MessageID
	headers["X-User-Id"] = job.UserID
	headers["X-Domain-Id"] = job.DomainID
	headers["X-API-Key-Id"] = job.APIKeyID

	return headers
}

func (s *RelayClient) buildMessage(ctx context.Context, job *dto.EmailJob, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "RelayClient.buildMessage")
	defer span.Finish()

	headers := s.buildHeaders(job)

	if job.HTML != "" && job.Text != "" {
		return s.buildMultipartMessage(job, headers, buffer)
	}
	if job.HTML != "" {
		headers["Content-Type"] = "text/html; charset=UTF-8"
		writeHeaders(headers, buffer)
		_, err := buffer.WriteString(job.HTML)
		return err
	}
	headers["Content-Type"] = "text/plain; charset=UTF-8"
	writeHeaders(headers, buffer)
	_, err := buffer.WriteString(job.Text)
	return err
}

// buildMultipartMessage writes a multipart/alternative body with the text
// part first so capable clients prefer the HTML rendition.
func (s *RelayClient) buildMultipartMessage(job *dto.EmailJob, headers map[string]string, buffer *bytes.Buffer) error {
	writer := multipart.NewWriter(buffer)
	headers["Content-Type"] = "multipart/alternative; boundary=" + writer.Boundary()

	writeHeaders(headers, buffer)

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err = textPart.Write([]byte(job.Text)); err != nil {
		return fmt.Errorf("failed to write text content: %w", err)
	}

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	if err != nil {
		return fmt.Errorf("failed to create HTML part: %w", err)
	}
	if _, err = htmlPart.Write([]byte(job.HTML)); err != nil {
		return fmt.Errorf("failed to write HTML content: %w", err)
	}

	return writer.Close()
}

// writeHeaders writes email headers to the buffer
func writeHeaders(headers map[string]string, buffer *bytes.Buffer) {
	for k, v := range headers {
		buffer.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	buffer.WriteString("\r\n")
}

// sendToRelay dials the relay in cleartext, upgrades with STARTTLS when the
// relay advertises it, and walks the envelope recipient by recipient so
// partial rejections surface per address.
func (s *RelayClient) sendToRelay(ctx context.Context, from string, recipients []string, buffer *bytes.Buffer) (*interfaces.RelayResult, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "RelayClient.sendToRelay")
	defer span.Finish()
	span.LogKV("relay_host", s.cfg.Host)
	span.LogKV("relay_port", s.cfg.Port)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		// relay certs are not verified, dev relays run self-signed
		tlsConfig := &tls.Config{
			ServerName:         s.cfg.Host,
			InsecureSkipVerify: true,
		}
		if err = client.StartTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err = client.Auth(auth); err != nil {
			return nil, fmt.Errorf("relay authentication failed: %w", err)
		}
	}

	if err = client.Mail(from); err != nil {
		return nil, fmt.Errorf("SMTP MAIL command failed: %w", err)
	}

	result := &interfaces.RelayResult{}
	for _, recipient := range recipients {
		if err = client.Rcpt(recipient); err != nil {
			result.Rejected = append(result.Rejected, recipient)
			span.LogKV("rejected", recipient, "error", err.Error())
			continue
		}
		result.Accepted = append(result.Accepted, recipient)
	}
	if len(result.Accepted) == 0 {
		return nil, errors.New("relay rejected all recipients")
	}

	dataWriter, err := client.Data()
	if err != nil {
		return nil, fmt.Errorf("SMTP DATA command failed: %w", err)
	}
	if _, err = dataWriter.Write(buffer.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to write message data: %w", err)
	}
	if err = dataWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close data writer: %w", err)
	}

	result.Response = "250 message accepted"
	return result, client.Quit()
}
