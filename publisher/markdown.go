package publisher

import (
	"bytes"
	"regexp"

	"github.com/yuin/goldmark"
)

var htmlTag = regexp.MustCompile(`<[A-Za-z][A-Za-z0-9-]*(\s[^>]*)?/?>`)

// ensureHTML passes HTML bodies through unchanged. A body without any tag is
// treated as Markdown, which models sometimes emit instead of HTML.
func ensureHTML(body string) (string, error) {
	if htmlTag.MatchString(body) {
		return body, nil
	}
	return mdToHTML(body)
}

func mdToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
