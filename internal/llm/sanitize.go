package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
)

var allowedKeys = map[string]map[string]struct{}{
	"": set("course_code", "course_name", "instructor", "term", "description",
		"meeting_info", "important_dates", "grading_policy", "schedule_summary"),
	"instructor":      set("name", "email"),
	"term":            set("semester", "year"),
	"meeting_info":    set("days", "time", "location"),
	"important_dates": set("first_class", "last_class", "midterms", "final_exam"),
}

// keys that must stay even when null; null there means "not found".
var nullableKeys = set("course_code", "course_name")

// StripCodeFences removes markdown fences and any prose around the outermost JSON object.
func StripCodeFences(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		s = s[i : j+1]
	}
	return []byte(strings.TrimSpace(s))
}

// NormalizeAndSanitizeJSON
// - Strips markdown fences
// - Renames known synonyms (course_title -> course_name, midterm -> midterms)
// - Lifts scalars into their expected shape (instructor string, single midterm)
// - Coerces numbers to strings for year and grading weights
// - Drops nulls on optionals and removes unknown keys at every level
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(StripCodeFences(raw), &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	rename := func(obj map[string]any, path, from, to string) {
		if v, ok := obj[from]; ok {
			// don't overwrite existing value if already present
			if _, exists := obj[to]; !exists {
				obj[to] = v
			}
			delete(obj, from)
			dropped = append(dropped, path+from+"->"+to)
		}
	}

	// 1) top-level synonyms
	rename(m, "", "course_title", "course_name")
	rename(m, "", "title", "course_name")
	rename(m, "", "course_number", "course_code")
	rename(m, "", "code", "course_code")
	rename(m, "", "professor", "instructor")
	rename(m, "", "teacher", "instructor")
	rename(m, "", "dates", "important_dates")
	rename(m, "", "key_dates", "important_dates")
	rename(m, "", "grading", "grading_policy")
	rename(m, "", "meeting", "meeting_info")
	rename(m, "", "summary", "schedule_summary")

	// 2) reshape scalars
	if s, ok := m["instructor"].(string); ok {
		m["instructor"] = map[string]any{"name": s}
	}
	if dates, ok := m["important_dates"].(map[string]any); ok {
		rename(dates, "important_dates.", "midterm", "midterms")
		rename(dates, "important_dates.", "midterm_exams", "midterms")
		rename(dates, "important_dates.", "final", "final_exam")
		rename(dates, "important_dates.", "first_day", "first_class")
		rename(dates, "important_dates.", "last_day", "last_class")
		switch mt := dates["midterms"].(type) {
		case string:
			dates["midterms"] = []any{mt}
		case []any:
			kept := make([]any, 0, len(mt))
			for _, v := range mt {
				if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
					kept = append(kept, strings.TrimSpace(s))
				} else {
					dropped = append(dropped, "important_dates.midterms[](invalid)")
				}
			}
			dates["midterms"] = kept
		}
	}
	if term, ok := m["term"].(map[string]any); ok {
		if y, ok := term["year"].(float64); ok {
			term["year"] = strconv.Itoa(int(y))
		}
	}
	if gp, ok := m["grading_policy"].(map[string]any); ok {
		for k, v := range maps.Clone(gp) {
			switch t := v.(type) {
			case string:
				gp[k] = strings.TrimSpace(t)
			case float64:
				gp[k] = strconv.FormatFloat(t, 'f', -1, 64)
			default:
				delete(gp, k)
				dropped = append(dropped, "grading_policy."+k+"(type)")
			}
		}
	}

	// 3) nulls, unknown keys and whitespace, level by level
	dropped = append(dropped, clean(m, "")...)

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}

func clean(obj map[string]any, path string) []string {
	var dropped []string
	allowed := allowedKeys[path]
	for k, v := range maps.Clone(obj) {
		full := k
		if path != "" {
			full = path + "." + k
		}
		if _, ok := allowed[k]; !ok {
			delete(obj, k)
			dropped = append(dropped, full+"(unknown)")
			continue
		}
		switch t := v.(type) {
		case nil:
			if path == "" {
				if _, keep := nullableKeys[k]; keep {
					continue
				}
			}
			delete(obj, k)
			dropped = append(dropped, full+"(null)")
		case string:
			obj[k] = strings.TrimSpace(t)
		case map[string]any:
			if _, nested := allowedKeys[k]; nested && path == "" {
				dropped = append(dropped, clean(t, k)...)
			}
		}
	}
	return dropped
}

func set(keys ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}
