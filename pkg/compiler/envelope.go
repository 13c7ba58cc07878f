package compiler

import (
	"html"
	"strings"
)

// The envelope is fixed so that compiled output depends only on the input
// tree and the subject. Inbox clients show the preheader line next to the
// subject, hence the hidden div right after the body opens.
const (
	envelopeHead = `<!doctype html>
<html lang="en"><head><meta charset="utf-8"/><meta name="viewport" content="width=device-width, initial-scale=1.0"/></head><body style="background-color:#f6f9fc;margin:0;padding:0;">`
	envelopeFoot = `</body></html>`
)

func envelopeHTML(subject, body string) string {
	preheader := html.EscapeString(strings.TrimSpace(subject))
	if preheader == "" {
		preheader = "&nbsp;"
	}

	var b strings.Builder
	b.Grow(len(envelopeHead) + len(preheader) + len(body) + len(envelopeFoot) + 128)
	b.WriteString(envelopeHead)
	b.WriteString(`<div style="display:none;overflow:hidden;line-height:1px;opacity:0;max-height:0;max-width:0;">`)
	b.WriteString(preheader)
	b.WriteString(`</div>`)
	b.WriteString(body)
	b.WriteString(envelopeFoot)
	return b.String()
}

func envelopeText(body string) string {
	text := strings.TrimRight(body, "\n")
	if text == "" {
		return ""
	}
	return text + "\n"
}
