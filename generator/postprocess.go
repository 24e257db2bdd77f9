package generator

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	snippetLimit   = 120
	closestCutoff  = 0.7
	closestResults = 3
)

// fieldLimit is a required output key and its character ceiling; zero means
// unbounded.
type fieldLimit struct {
	key   string
	limit int
}

var kebabSlug = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a lowercase kebab-case slug.
func ValidSlug(s string) bool {
	return kebabSlug.MatchString(s)
}

var requiredFields = []fieldLimit{
	{key: "title", limit: 60},
	{key: "description", limit: 150 * 8},
	{key: "teaser", limit: 110},
	{key: "slug", limit: 100},
	{key: "walkthrough_html"},
}

// PostProcess parses raw model output into a validated ContentRecord. The
// recovered result reports whether brace extraction was needed.
func PostProcess(raw string) (rec ContentRecord, recovered bool, err error) {
	fields, recovered, err := decodeObject(raw)
	if err != nil {
		return ContentRecord{}, false, err
	}
	values, err := validateFields(fields)
	if err != nil {
		return ContentRecord{}, recovered, err
	}
	return ContentRecord{
		Title:           values["title"],
		Teaser:          values["teaser"],
		Description:     values["description"],
		Slug:            values["slug"],
		WalkthroughHTML: values["walkthrough_html"],
	}, recovered, nil
}

// decodeObject parses strictly first, then retries once on the substring
// between the first '{' and the last '}'.
func decodeObject(raw string) (map[string]json.RawMessage, bool, error) {
	var fields map[string]json.RawMessage
	strictErr := json.Unmarshal([]byte(raw), &fields)
	if strictErr == nil && fields != nil {
		return fields, false, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, false, &SynthesisError{Reason: "non-JSON output", Snippet: snippet(raw), Err: strictErr}
	}
	fields = nil
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil || fields == nil {
		return nil, false, &SynthesisError{Reason: "non-JSON output", Snippet: snippet(raw), Err: err}
	}
	return fields, true, nil
}

func validateFields(fields map[string]json.RawMessage) (map[string]string, error) {
	values := make(map[string]string, len(requiredFields))
	for _, f := range requiredFields {
		rawValue, ok := fields[f.key]
		if !ok || bytes.Equal(bytes.TrimSpace(rawValue), []byte("null")) {
			return nil, &MissingFieldError{Field: f.key, Closest: closestKeys(f.key, fields)}
		}
		var s string
		if err := json.Unmarshal(rawValue, &s); err != nil {
			return nil, &SynthesisError{Reason: "key " + f.key + " is not a string", Snippet: snippet(string(rawValue)), Err: err}
		}
		if strings.TrimSpace(s) == "" {
			return nil, &EmptyFieldError{Field: f.key}
		}
		if f.limit > 0 {
			if n := utf8.RuneCountInString(s); n > f.limit {
				return nil, &FieldTooLongError{Field: f.key, Length: n, Limit: f.limit, Closest: closestKeys(f.key, fields)}
			}
		}
		if f.key == "slug" && !ValidSlug(s) {
			return nil, &MalformedFieldError{Field: f.key, Value: snippet(s)}
		}
		values[f.key] = s
	}
	return values, nil
}

// closestKeys ranks the parsed keys by Jaro-Winkler similarity to key. It is
// only used to enrich error messages.
func closestKeys(key string, fields map[string]json.RawMessage) []string {
	type scored struct {
		key   string
		score float64
	}
	var candidates []scored
	for k := range fields {
		score := matchr.JaroWinkler(strings.ToLower(key), strings.ToLower(k), false)
		if score >= closestCutoff {
			candidates = append(candidates, scored{key: k, score: score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score == candidates[j].score {
			return candidates[i].key < candidates[j].key
		}
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > closestResults {
		candidates = candidates[:closestResults]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.key)
	}
	return out
}

func snippet(raw string) string {
	return truncateRunes(strings.TrimSpace(raw), snippetLimit)
}
