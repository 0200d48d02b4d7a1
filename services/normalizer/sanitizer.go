package normalizer

import (
	"github.com/microcosm-cc/bluemonday"
)

var (
	// strictPolicy strips all markup; used to derive matchable text from
	// HTML-only mail.
	strictPolicy *bluemonday.Policy
	// richTextPolicy is the allowlist shared with user-authored rich text:
	// structural elements, inline formatting, links and images over safe
	// schemes. Scripts, handlers and unparseable URLs are dropped.
	richTextPolicy *bluemonday.Policy
)

func init() {
	strictPolicy = bluemonday.StrictPolicy()

	richTextPolicy = bluemonday.UGCPolicy()
	richTextPolicy.AllowElements("p", "br", "div", "span", "h1", "h2", "h3", "h4", "h5", "h6")
	richTextPolicy.AllowElements("strong", "em", "u", "s", "code", "pre")
	richTextPolicy.AllowElements("ul", "ol", "li")
	richTextPolicy.AllowElements("blockquote")
	richTextPolicy.AllowElements("a", "img")
	richTextPolicy.AllowElements("table", "thead", "tbody", "tr", "th", "td")

	richTextPolicy.AllowAttrs("href").OnElements("a")
	richTextPolicy.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	richTextPolicy.AllowAttrs("class", "id").Globally()
	richTextPolicy.AllowAttrs("style").OnElements("span", "div", "p")

	richTextPolicy.RequireParseableURLs(true)
	richTextPolicy.AllowURLSchemes("http", "https", "mailto")
}

// SanitizeHTML applies the rich-text allowlist
func SanitizeHTML(html string) string {
	return richTextPolicy.Sanitize(html)
}

// StripHTML removes all markup
func StripHTML(html string) string {
	return strictPolicy.Sanitize(html)
}
