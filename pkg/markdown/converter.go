// Package markdown converts model output into Telegram-safe HTML.
// Telegram supports a small tag subset, so everything blackfriday emits
// beyond it is flattened back to plain text.
package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	headingRe    = regexp.MustCompile(`(?s)<h[1-6][^>]*>(.*?)</h[1-6]>`)
	paraOpenRe   = regexp.MustCompile(`<p[^>]*>`)
	listItemRe   = regexp.MustCompile(`(?s)<li[^>]*>(.*?)</li>`)
	listWrapRe   = regexp.MustCompile(`</?[ou]l[^>]*>`)
	strongRe     = regexp.MustCompile(`<(/?)strong>`)
	emRe         = regexp.MustCompile(`<(/?)em>`)
	delRe        = regexp.MustCompile(`<(/?)del>`)
	hrRe         = regexp.MustCompile(`<hr[^>]*/?>`)
	blockquoteRe = regexp.MustCompile(`</?blockquote[^>]*>`)
	leftoverRe   = regexp.MustCompile(`</?(?:div|span|table|thead|tbody|tr|td|th|img)[^>]*>`)
)

// ToTelegramHTML renders markdown as HTML limited to the tags Telegram
// accepts: b, i, s, u, code, pre and a.
func ToTelegramHTML(input string) string {
	html := string(blackfriday.Run([]byte(input),
		blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	html = headingRe.ReplaceAllString(html, "<b>$1</b>\n")
	html = strongRe.ReplaceAllString(html, "<${1}b>")
	html = emRe.ReplaceAllString(html, "<${1}i>")
	html = delRe.ReplaceAllString(html, "<${1}s>")

	html = listItemRe.ReplaceAllString(html, "• $1")
	html = listWrapRe.ReplaceAllString(html, "")

	html = paraOpenRe.ReplaceAllString(html, "")
	html = strings.ReplaceAll(html, "</p>", "\n")
	html = hrRe.ReplaceAllString(html, "")
	html = blockquoteRe.ReplaceAllString(html, "")
	html = leftoverRe.ReplaceAllString(html, "")

	html = strings.ReplaceAll(html, "<br>", "\n")
	html = strings.ReplaceAll(html, "<br/>", "\n")
	html = strings.ReplaceAll(html, "<br />", "\n")

	// Collapse the blank-line noise left by removed block elements.
	for strings.Contains(html, "\n\n\n") {
		html = strings.ReplaceAll(html, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(html)
}
