package merge

import (
	"fmt"
	"strings"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
	"github.com/shandysiswandi/mailmerge/internal/pkg/mail"
)

const bannerMarkup = `<br><div style="text-align: center;"><img src="cid:%s" alt="Banner" style="max-width: 100%%; height: auto;" /></div>`

// Composer builds the message for each recipient of one batch. The banner
// content-id is fixed when the Composer is created so every recipient of the
// batch references the same one.
type Composer struct {
	salutation *Template
	banner     *entity.Asset
	attachment *entity.Asset
	bannerCID  string
	bannerHTML string
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithSalutation prepends t, rendered with the recipient's binding, to every body.
func WithSalutation(t *Template) ComposerOption {
	return func(c *Composer) { c.salutation = t }
}

// WithBanner embeds a as an inline image referenced by cid.
func WithBanner(a *entity.Asset, cid string) ComposerOption {
	return func(c *Composer) {
		if a == nil {
			return
		}
		c.banner = a
		c.bannerCID = strings.Trim(cid, "<>")
		c.bannerHTML = fmt.Sprintf(bannerMarkup, c.bannerCID)
	}
}

// WithAttachment attaches a to every message.
func WithAttachment(a *entity.Asset) ComposerOption {
	return func(c *Composer) { c.attachment = a }
}

func NewComposer(opts ...ComposerOption) *Composer {
	c := &Composer{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BannerCID returns the batch's banner content-id, or "" without a banner.
func (c *Composer) BannerCID() string {
	return c.bannerCID
}

// Compose assembles one recipient's message from the already rendered subject
// and body. It does no I/O.
func (c *Composer) Compose(recipient, subject, body string, binding entity.FieldBinding) (mail.Message, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return mail.Message{}, ErrMissingRecipientAddress
	}

	var html strings.Builder
	if c.salutation != nil {
		html.WriteString(c.salutation.Render(binding))
	}
	html.WriteString(body)

	msg := mail.Message{
		To:      []string{recipient},
		Subject: subject,
	}

	if c.banner != nil {
		html.WriteString(c.bannerHTML)
		msg.Attachments = append(msg.Attachments, mail.Attachment{
			Filename:    c.banner.Filename,
			ContentType: c.banner.ContentType,
			Content:     c.banner.Content,
			Encoding:    mail.EncodingBase64,
			ContentID:   c.bannerCID,
			Inline:      true,
		})
	}

	if c.attachment != nil {
		msg.Attachments = append(msg.Attachments, mail.Attachment{
			Filename:    c.attachment.Filename,
			ContentType: c.attachment.ContentType,
			Content:     c.attachment.Content,
			Encoding:    mail.EncodingBase64,
		})
	}

	msg.HTMLBody = html.String()
	return msg, nil
}
