package constants

import (
	"strings"
)

// AccentColor is the presentation color of a syllabus card.
type AccentColor string

const (
	ColorBlue   AccentColor = "blue"
	ColorGreen  AccentColor = "green"
	ColorPurple AccentColor = "purple"
	ColorOrange AccentColor = "orange"
	ColorRed    AccentColor = "red"
	ColorTeal   AccentColor = "teal"
	ColorPink   AccentColor = "pink"
	ColorYellow AccentColor = "yellow"
)

// DefaultAccentColor is assigned to every new record.
const DefaultAccentColor = ColorBlue

var allColors = []AccentColor{
	ColorBlue,
	ColorGreen,
	ColorPurple,
	ColorOrange,
	ColorRed,
	ColorTeal,
	ColorPink,
	ColorYellow,
}

func AccentColorsAsStrings() []string {
	result := make([]string, len(allColors))
	for i, c := range allColors {
		result[i] = string(c)
	}
	return result
}

// CanonicalizeAccentColor maps user input onto a known color.
// Unknown input returns the default and false.
func CanonicalizeAccentColor(input string) (AccentColor, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return DefaultAccentColor, false
	}

	synonyms := map[string]AccentColor{
		"navy":    ColorBlue,
		"indigo":  ColorPurple,
		"violet":  ColorPurple,
		"amber":   ColorOrange,
		"crimson": ColorRed,
		"cyan":    ColorTeal,
		"rose":    ColorPink,
		"gold":    ColorYellow,
		"emerald": ColorGreen,
	}
	if c, ok := synonyms[normalized]; ok {
		return c, true
	}

	for _, c := range allColors {
		if normalized == string(c) {
			return c, true
		}
	}
	return DefaultAccentColor, false
}
