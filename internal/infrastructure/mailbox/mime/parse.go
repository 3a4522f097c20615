// Package mime turns RFC 5322 messages into domain.RawMessage values.
package mime

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
)

// maxPartBytes caps how much of a single body part is read.
const maxPartBytes = 1 << 20

// Parse reads one message. receivedAt is used when the Date header is missing
// or unparsable; pass the server's internal date when one is available.
func Parse(r io.Reader, uid string, receivedAt time.Time) (domain.RawMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return domain.RawMessage{}, fmt.Errorf("read message %s: %w", uid, err)
	}
	if mr == nil {
		return domain.RawMessage{}, fmt.Errorf("read message %s: %w", uid, err)
	}
	defer mr.Close()

	header := mr.Header
	subject, err := header.Subject()
	if err != nil {
		subject = header.Get("Subject")
	}
	if date, err := header.Date(); err == nil && !date.IsZero() {
		receivedAt = date
	}

	body, err := readBody(mr)
	if err != nil {
		return domain.RawMessage{}, fmt.Errorf("read body of %s: %w", uid, err)
	}
	return domain.NewRawMessage(uid, sender(header), subject, body, receivedAt), nil
}

func sender(header mail.Header) string {
	addrs, err := header.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return strings.TrimSpace(header.Get("From"))
	}
	addr := addrs[0]
	if addr.Name == "" {
		return addr.Address
	}
	return fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
}

// readBody returns the first text/plain part, or the first text/html part
// rendered as text when the message has no plain part.
func readBody(mr *mail.Reader) (string, error) {
	var htmlBody string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			return "", err
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := inline.ContentType()
		if err != nil {
			contentType = "text/plain"
		}

		switch contentType {
		case "text/plain":
			raw, err := io.ReadAll(io.LimitReader(part.Body, maxPartBytes))
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(raw)), nil
		case "text/html":
			if htmlBody != "" {
				continue
			}
			text, err := HTMLToText(io.LimitReader(part.Body, maxPartBytes))
			if err != nil {
				return "", err
			}
			htmlBody = text
		}
	}
	return htmlBody, nil
}
