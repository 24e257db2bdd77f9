package generator

// Prompt is the ordered message set sent to the LLM.
type Prompt struct {
	System   string
	Messages []Message
}

// Message is one role-tagged chat message.
type Message struct {
	Role    string
	Content string
}

const systemPrompt = "You are a content-marketing assistant. Given a video transcript, " +
	"generate a short catchy title (<60 characters), a 1-sentence teaser " +
	"(<110 characters), a YouTube description (<150 words), and a kebab-case " +
	"slug. Then wrap the transcript into branded HTML that matches the CSS " +
	"variables provided. Output ONLY valid JSON with exactly the keys: " +
	"title, description, teaser, slug, walkthrough_html."

const jsonSchema = `{"title":"string","description":"string","teaser":"string","slug":"string","walkthrough_html":"string"}`

// BuildContentPrompt builds the synthesis prompt. The schema reminder is
// always the last message.
func BuildContentPrompt(transcript string, style BrandStyle) Prompt {
	return Prompt{
		System: systemPrompt,
		Messages: []Message{
			{Role: "user", Content: "BRAND_CSS:\n" + style.Excerpt()},
			{Role: "user", Content: "TRANSCRIPT:\n" + transcript},
			{Role: "user", Content: "Return JSON matching this schema:\n" + jsonSchema},
		},
	}
}
