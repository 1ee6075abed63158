package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAndSanitizeJSON(t *testing.T) {
	in := []byte(`Here you go:
{
  "title": "  Modern Europe ",
  "code": "HIST 300",
  "professor": "Prof. Ngozi Adichie",
  "meeting_info": {"days": "MWF", "room": "B12", "location": null},
  "important_dates": {"midterms": ["04/01/2026", 7, ""], "final": "May 5"},
  "description": "",
  "notes": "ignore me"
}
Let me know if you need anything else.`)

	out, dropped, err := NormalizeAndSanitizeJSON(in, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, dropped)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))

	assert.Equal(t, "Modern Europe", m["course_name"])
	assert.Equal(t, "HIST 300", m["course_code"])
	assert.Equal(t, map[string]any{"name": "Prof. Ngozi Adichie"}, m["instructor"])
	assert.Equal(t, map[string]any{"days": "MWF"}, m["meeting_info"])
	assert.Equal(t, map[string]any{
		"midterms":   []any{"04/01/2026"},
		"final_exam": "May 5",
	}, m["important_dates"])
	// empty stays empty: found-but-blank is not the same as absent
	assert.Equal(t, "", m["description"])
	assert.NotContains(t, m, "notes")
}

func TestNormalizeAndSanitizeJSONKeepsExistingOverSynonym(t *testing.T) {
	out, _, err := NormalizeAndSanitizeJSON([]byte(`{"course_name": "Real", "title": "Synonym", "course_code": null}`), nil)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "Real", m["course_name"])
	v, ok := m["course_code"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestNormalizeAndSanitizeJSONRejectsNonObject(t *testing.T) {
	_, _, err := NormalizeAndSanitizeJSON([]byte(`no json here`), nil)
	require.Error(t, err)
}

func TestSanitizedOutputMatchesSchema(t *testing.T) {
	out, _, err := NormalizeAndSanitizeJSON([]byte(goodReply), nil)
	require.NoError(t, err)
	require.NoError(t, ValidateJSONAgainstSchema(BuildSyllabusJSONSchema(), out))

	err = ValidateJSONAgainstSchema(BuildSyllabusJSONSchema(), []byte(`{"course_name": "only"}`))
	require.Error(t, err)
}
