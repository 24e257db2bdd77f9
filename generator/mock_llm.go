package generator

import (
	"context"
	"encoding/json"
	"html"
	"regexp"
	"strings"
)

// MockLLM is an offline stand-in that never calls a model. It answers with a
// valid content record derived from the transcript in the prompt.
type MockLLM struct{}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	var transcript string
	for _, msg := range prompt.Messages {
		if rest, ok := strings.CutPrefix(msg.Content, "TRANSCRIPT:\n"); ok {
			transcript = strings.TrimSpace(rest)
		}
	}

	words := strings.Fields(transcript)
	title := truncateRunes(strings.Join(headWords(words, 6), " "), 60)
	if title == "" {
		title = "Product walkthrough"
	}
	slug := strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if slug == "" {
		slug = "walkthrough"
	}

	var body strings.Builder
	body.WriteString("<article class=\"walkthrough\">")
	body.WriteString("<h1>" + html.EscapeString(title) + "</h1>")
	body.WriteString("<p>" + html.EscapeString(transcript) + "</p>")
	body.WriteString("</article>")

	rec := ContentRecord{
		Title:           title,
		Teaser:          truncateRunes("Watch: "+title, 110),
		Description:     truncateRunes(transcript, 1200),
		Slug:            truncateRunes(slug, 100),
		WalkthroughHTML: body.String(),
	}
	out, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func headWords(words []string, n int) []string {
	if len(words) <= n {
		return words
	}
	return words[:n]
}
