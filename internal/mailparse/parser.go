package mailparse

import (
	"io"
	"mime"
	"regexp"

	"redmine-email-connector/internal/models"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Parse converts a raw IMAP message into a normalized InboundMessage.
// Only the text/plain part is extracted; HTML alternatives and attachments
// are ignored (the ticket description carries plain text only).
func Parse(msg *imap.Message) (*models.InboundMessage, error) {
	section := &imap.BodySectionName{}
	r := msg.GetBody(section)
	if r == nil {
		return nil, io.EOF
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, err
	}

	inbound := &models.InboundMessage{
		SeqNum:       msg.SeqNum,
		InternalDate: msg.InternalDate,
		TraceID:      uuid.New().String(),
	}

	header := mr.Header

	inbound.From = ExtractAddress(header.Get("From"))

	decodedSubject, err := DecodeHeader(header.Get("Subject"))
	if err != nil {
		return nil, err
	}
	inbound.Subject = decodedSubject

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, err := h.ContentType()
			if err != nil {
				continue
			}
			if contentType == "text/plain" {
				body, err := io.ReadAll(p.Body)
				if err != nil {
					continue
				}
				inbound.BodyText = string(body)
			}
		}
	}

	return inbound, nil
}

var addressRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// ExtractAddress pulls the bare address out of a From header, which may
// contain a display name ("Support <support@example.com>").
func ExtractAddress(fromHeader string) string {
	return addressRe.FindString(fromHeader)
}

// DecodeHeader decodes MIME-encoded headers (e.g., "=?UTF-8?B?...?=") to plain text
func DecodeHeader(encoded string) (string, error) {
	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(encoded)
	if err != nil {
		return "", err
	}
	return decoded, nil
}
