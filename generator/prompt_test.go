package generator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContentPrompt(t *testing.T) {
	p := BuildContentPrompt("click save", BrandStyle(":root { --accent: red; }"))

	assert.Contains(t, p.System, "title, description, teaser, slug, walkthrough_html")
	require.Len(t, p.Messages, 3)
	for _, m := range p.Messages {
		assert.Equal(t, "user", m.Role)
	}
	assert.Equal(t, "BRAND_CSS:\n:root { --accent: red; }", p.Messages[0].Content)
	assert.Equal(t, "TRANSCRIPT:\nclick save", p.Messages[1].Content)

	last := p.Messages[len(p.Messages)-1].Content
	schema, ok := strings.CutPrefix(last, "Return JSON matching this schema:\n")
	require.True(t, ok, "schema reminder must be the final message")
	var keys map[string]string
	require.NoError(t, json.Unmarshal([]byte(schema), &keys))
	assert.Len(t, keys, 5)
}

func TestBrandStyleExcerpt(t *testing.T) {
	assert.Equal(t, brandStylePlaceholder, BrandStyle("").Excerpt())
	assert.Equal(t, brandStylePlaceholder, BrandStyle("  \n").Excerpt())

	long := BrandStyle(strings.Repeat("ü", 3000))
	assert.Equal(t, 2048, len([]rune(long.Excerpt())))
}

func TestLoadBrandStyle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "variables.css")
	require.NoError(t, os.WriteFile(path, []byte(":root{--a:1}"), 0o644))

	style, err := LoadBrandStyle(path)
	require.NoError(t, err)
	assert.Equal(t, BrandStyle(":root{--a:1}"), style)

	style, err = LoadBrandStyle(filepath.Join(dir, "missing.css"))
	require.NoError(t, err)
	assert.Empty(t, style)

	style, err = LoadBrandStyle("")
	require.NoError(t, err)
	assert.Empty(t, style)
}

func TestTranscriptText(t *testing.T) {
	tr := Transcript{{Text: " first "}, {Text: ""}, {Text: "second\n"}}
	assert.Equal(t, "first second", tr.Text())
	assert.Equal(t, "", Transcript(nil).Text())
}
