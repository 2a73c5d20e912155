package mail

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Encoding values for Attachment.Encoding.
const (
	EncodingBase64          = "base64"
	EncodingQuotedPrintable = "quoted-printable"
)

var (
	// ErrNoRecipients is returned when To is empty.
	ErrNoRecipients = errors.New("mail: no recipients provided")
	// ErrNoSender is returned when neither Message.From nor the configured sender is set.
	ErrNoSender = errors.New("mail: no sender provided")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("mail: transport is closed")
)

// Message is a single outgoing email.
type Message struct {
	// From overrides the transport's configured sender address.
	From     string
	FromName string
	To       []string
	Subject  string
	HTMLBody string
	// TextBody is sent as the only body when HTMLBody is empty.
	TextBody    string
	Attachments []Attachment
}

// Attachment is a file carried by a Message.
//
// Inline attachments with a ContentID are rendered next to the HTML body so it
// can reference them as "cid:<ContentID>".
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
	// Encoding is the transfer encoding, base64 when empty.
	Encoding  string
	ContentID string
	Inline    bool
}

func (m Message) recipients() []string {
	out := make([]string, 0, len(m.To))
	for _, to := range m.To {
		if to = strings.TrimSpace(to); to != "" {
			out = append(out, to)
		}
	}
	return out
}

func (m Message) inlineParts() []Attachment {
	var out []Attachment
	for _, a := range m.Attachments {
		if a.Inline {
			out = append(out, a)
		}
	}
	return out
}

func (m Message) attachedParts() []Attachment {
	var out []Attachment
	for _, a := range m.Attachments {
		if !a.Inline {
			out = append(out, a)
		}
	}
	return out
}

// Mail abstracts an email transport.
type Mail interface {
	io.Closer
	// Send delivers msg. It blocks until the relay accepts or rejects it.
	Send(ctx context.Context, msg Message) error
}
