package generator

import (
	"errors"
	"io/fs"
	"os"
	"strings"
)

const (
	// brandStyleLimit caps how much stylesheet text is sent to the model.
	brandStyleLimit       = 2048
	brandStylePlaceholder = "/* brand CSS not found */"
)

// Segment is one spoken phrase of a recording transcript.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`
}

// Transcript is the ordered list of spoken segments of a recording.
type Transcript []Segment

// RawTranscript wraps plain text as a single-segment transcript.
func RawTranscript(text string) Transcript {
	return Transcript{{Text: text}}
}

// Text joins all segment texts with single spaces.
func (t Transcript) Text() string {
	parts := make([]string, 0, len(t))
	for _, seg := range t {
		s := strings.TrimSpace(seg.Text)
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// BrandStyle is optional stylesheet text (usually CSS variables) from the site repo.
type BrandStyle string

// LoadBrandStyle reads the stylesheet at path. A blank path or a missing file
// yields an empty style, which is valid.
func LoadBrandStyle(path string) (BrandStyle, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return BrandStyle(data), nil
}

// Excerpt returns the style capped to 2048 characters, or a placeholder
// marker when no style is available.
func (b BrandStyle) Excerpt() string {
	if strings.TrimSpace(string(b)) == "" {
		return brandStylePlaceholder
	}
	return truncateRunes(string(b), brandStyleLimit)
}

// ContentRecord is the validated copy synthesized from a transcript.
type ContentRecord struct {
	Title           string `json:"title"`
	Teaser          string `json:"teaser"`
	Description     string `json:"description"`
	Slug            string `json:"slug"`
	WalkthroughHTML string `json:"walkthrough_html"`
}

func truncateRunes(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
