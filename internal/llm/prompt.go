package llm

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// DefaultMaxInputChars bounds the document text sent to the model.
const DefaultMaxInputChars = 20000

// BuildSystemPrompt composes the system message: field rules, formatting
// hygiene and, on a retry, a stricter reminder quoting what went wrong last time.
func BuildSystemPrompt(attempt int, lastErr error) string {
	parts := []string{
		"You are a course syllabus parser. Return ONLY a JSON object that matches the provided JSON Schema.",
		"Always include 'course_code' and 'course_name'. If either cannot be found in the document, set it to null; never invent one.",
		"For every other field, omit the key when the document does not state it.",
		"Copy dates exactly as written in the document (for example 'Jan 12, 2026' or '01/12/2026'); do not convert or guess a year.",
		"'important_dates.midterms' is a list of every midterm exam date in chronological order.",
		"'grading_policy' maps each graded component to its weight as written (for example {\"Homework\": \"30%\"}).",
		"'term.semester' is the season or session name (Fall, Spring, Summer, Winter); 'term.year' is the four-digit year.",
		"'schedule_summary' is one or two sentences describing the weekly rhythm of the course.",
		"Do not add keys that are not in the schema. Do not wrap the JSON in markdown.",
	}
	if attempt > 0 {
		msg := "Your previous reply was rejected"
		if lastErr != nil {
			msg += ": " + truncateRunes(lastErr.Error(), 300)
		}
		parts = append(parts,
			msg+".",
			"This time reply with a single JSON object, nothing before or after it, using exactly the schema keys and string values.",
		)
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the filename hint, the schema and the document
// text, cut to maxChars runes.
func BuildUserPrompt(req ExtractRequest, schema map[string]any, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}

	var b strings.Builder
	if filename := strings.TrimSpace(req.FilenameHint); filename != "" {
		b.WriteString("Filename: ")
		b.WriteString(filename)
		b.WriteString("\n")
	}
	b.WriteString("JSON Schema:\n")
	b.WriteString(mustJSON(schema))
	b.WriteString("\n\nSyllabus text:\n")

	text := strings.TrimSpace(req.Text)
	if utf8.RuneCountInString(text) > maxChars {
		b.WriteString(truncateRunes(text, maxChars))
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
