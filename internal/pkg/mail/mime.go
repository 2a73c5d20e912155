package mail

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
)

const defaultAttachmentType = "application/octet-stream"

// Sender is the envelope and header sender of a message.
type Sender struct {
	Name    string
	Address string
}

// Render encodes msg as an RFC 5322 message.
//
// Layout: multipart/mixed { body, attachments... } where body is text/html, or
// multipart/related { text/html, inline images... } when inline parts exist.
// The mixed wrapper is omitted when there are no regular attachments.
func Render(msg Message, from Sender, now time.Time) ([]byte, error) {
	var h gomail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*gomail.Address{{Name: from.Name, Address: from.Address}})

	to := make([]*gomail.Address, 0, len(msg.To))
	for _, addr := range msg.recipients() {
		to = append(to, &gomail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("mail: generate message id: %w", err)
	}

	var buf bytes.Buffer
	attached := msg.attachedParts()

	if len(attached) == 0 {
		if err := writeBody(rootCreator{w: &buf}, h.Header, msg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	h.SetContentType("multipart/mixed", nil)
	root, err := message.CreateWriter(&buf, h.Header)
	if err != nil {
		return nil, err
	}

	if err := writeBody(root, message.Header{}, msg); err != nil {
		return nil, err
	}

	for _, a := range attached {
		if err := writeAttachment(root, a); err != nil {
			return nil, err
		}
	}

	if err := root.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// partCreator is a multipart parent (*message.Writer) or, for a message
// without a multipart/mixed wrapper, the output itself (rootCreator).
type partCreator interface {
	CreatePart(h message.Header) (*message.Writer, error)
}

type rootCreator struct{ w io.Writer }

func (r rootCreator) CreatePart(h message.Header) (*message.Writer, error) {
	return message.CreateWriter(r.w, h)
}

// writeBody writes the HTML (or text) body and its inline parts under parent.
func writeBody(parent partCreator, h message.Header, msg Message) error {
	inline := msg.inlineParts()
	if len(inline) == 0 {
		return writeText(parent, h, msg)
	}

	h.SetContentType("multipart/related", map[string]string{"type": "text/html"})
	related, err := parent.CreatePart(h)
	if err != nil {
		return err
	}

	if err := writeText(related, message.Header{}, msg); err != nil {
		return err
	}

	for _, a := range inline {
		if err := writeAttachment(related, a); err != nil {
			return err
		}
	}

	return related.Close()
}

func writeText(parent partCreator, h message.Header, msg Message) error {
	body, ctype := msg.HTMLBody, "text/html"
	if body == "" {
		body, ctype = msg.TextBody, "text/plain"
	}

	h.SetContentType(ctype, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", EncodingQuotedPrintable)

	w, err := parent.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return err
	}
	return w.Close()
}

func writeAttachment(parent partCreator, a Attachment) error {
	ctype := a.ContentType
	if ctype == "" {
		ctype = mime.TypeByExtension(extension(a.Filename))
	}
	if ctype == "" {
		ctype = defaultAttachmentType
	}

	mediaType, params, err := mime.ParseMediaType(ctype)
	if err != nil {
		mediaType, params = defaultAttachmentType, map[string]string{}
	}
	if a.Filename != "" {
		params["name"] = a.Filename
	}

	encoding := a.Encoding
	if encoding == "" {
		encoding = EncodingBase64
	}

	disposition := "attachment"
	if a.Inline {
		disposition = "inline"
	}

	var h message.Header
	h.SetContentType(mediaType, params)
	h.Set("Content-Transfer-Encoding", encoding)
	if a.Filename != "" {
		h.SetContentDisposition(disposition, map[string]string{"filename": a.Filename})
	} else {
		h.SetContentDisposition(disposition, nil)
	}
	if a.ContentID != "" {
		h.Set("Content-Id", "<"+strings.Trim(a.ContentID, "<>")+">")
	}

	w, err := parent.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := w.Write(a.Content); err != nil {
		return err
	}
	return w.Close()
}

func extension(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		return filename[i:]
	}
	return ""
}
