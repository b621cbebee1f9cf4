package fetcher

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/studiosync/internal/model"
)

// mimeContent accumulates what the bridge keeps from one message.
type mimeContent struct {
	plain       strings.Builder
	html        strings.Builder
	attachments []model.Attachment
}

// body prefers the plain text parts and falls back to the HTML ones with
// markup removed.
func (c *mimeContent) body() string {
	if c.plain.Len() > 0 {
		return c.plain.String()
	}
	return stripHTML(c.html.String())
}

// parseMIMEBody walks a raw RFC 5322 message with go-message. Attachment
// content is drained for its size and never kept.
func parseMIMEBody(raw []byte) (string, []model.Attachment) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), nil
	}
	defer mr.Close()

	var c mimeContent
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		c.add(part)
	}

	return c.body(), c.attachments
}

func (c *mimeContent) add(part *mail.Part) {
	switch h := part.Header.(type) {
	case *mail.InlineHeader:
		contentType, _, _ := h.ContentType()
		var dst *strings.Builder
		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			dst = &c.plain
		case strings.HasPrefix(contentType, "text/html"):
			dst = &c.html
		default:
			return
		}
		data, err := io.ReadAll(part.Body)
		if err == nil {
			dst.Write(data)
		}

	case *mail.AttachmentHeader:
		filename, _ := h.Filename()
		contentType, _, _ := h.ContentType()
		n, err := io.Copy(io.Discard, part.Body)
		if err != nil {
			return
		}
		c.attachments = append(c.attachments, model.Attachment{
			Filename: filename,
			Size:     n,
			MIMEType: contentType,
		})
	}
}

var (
	blockBreak = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|tr|h[1-6])>`)
	anyTag     = regexp.MustCompile(`<[^>]*>`)

	entities = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
)

// stripHTML reduces markup to its visible text, one block per line.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	text := blockBreak.ReplaceAllString(html, "\n")
	text = entities.Replace(anyTag.ReplaceAllString(text, ""))

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
