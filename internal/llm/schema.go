package llm

// BuildSyllabusJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// We pass this to the model as a structured output constraint and also use it locally to validate.
// course_code and course_name must always be present; null means "not found".
func BuildSyllabusJSONSchema() map[string]any {
	str := map[string]any{"type": "string"}
	props := map[string]any{
		"course_code": map[string]any{"type": []string{"string", "null"}},
		"course_name": map[string]any{"type": []string{"string", "null"}},
		"instructor": object(map[string]any{
			"name":  str,
			"email": str,
		}),
		"term": object(map[string]any{
			"semester": str,
			"year":     str,
		}),
		"description": str,
		"meeting_info": object(map[string]any{
			"days":     str,
			"time":     str,
			"location": str,
		}),
		"important_dates": object(map[string]any{
			"first_class": str,
			"last_class":  str,
			"midterms":    map[string]any{"type": "array", "items": str},
			"final_exam":  str,
		}),
		"grading_policy": map[string]any{
			"type":                 "object",
			"additionalProperties": str,
		},
		"schedule_summary": str,
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"course_code", "course_name"},
	}
}

func object(props map[string]any) map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}
