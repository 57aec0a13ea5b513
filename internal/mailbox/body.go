package mailbox

import (
	"bytes"
	"io"
	"strings"

	gomail "github.com/emersion/go-message/mail"
	"golang.org/x/net/html"
)

// bodyText extracts readable text from a raw RFC 5322 message. It prefers a
// text/plain part, falls back to a stripped text/html part, and as a last
// resort returns the raw message as-is. Extraction failure is never an error:
// a passcode hiding in headers or raw MIME is still better than nothing.
func bodyText(raw []byte) string {
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}

	var plain, htmlBody string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed part; keep whatever we already collected.
			break
		}
		header, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		mimeType, _, err := header.ContentType()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(mimeType, "text/plain") && plain == "":
			plain = string(content)
		case strings.HasPrefix(mimeType, "text/html") && htmlBody == "":
			htmlBody = string(content)
		}
	}

	if plain != "" {
		return plain
	}
	if htmlBody != "" {
		return stripHTML(htmlBody)
	}
	return string(raw)
}

// stripHTML renders an HTML fragment to plain text by concatenating its text
// nodes, skipping script and style content.
func stripHTML(src string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
	}
}
