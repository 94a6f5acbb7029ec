package core

import (
	"net/mail"
	"regexp"
	"strings"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]+>`)

type (
	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		TextContent string
		HTMLContent string
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		// SendMessages sends messages concurrently.
		SendMessages(messages ...*EmailMessage)
	}
)

// NewHTMLEmailMessage derives the text/plain alternative from the HTML body.
func NewHTMLEmailMessage(to mail.Address, subject, html string) *EmailMessage {
	text := strings.TrimSpace(htmlTagRegex.ReplaceAllString(html, ""))
	return &EmailMessage{
		To:          []mail.Address{to},
		Subject:     subject,
		TextContent: text,
		HTMLContent: html,
	}
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
