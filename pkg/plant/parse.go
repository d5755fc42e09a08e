package plant

import "strings"

// ParseResponse splits a model reply into lines and parses them.
func ParseResponse(text string) Record {
	return ParseLines(strings.Split(text, "\n"))
}

// ParseLines extracts the five fields from an ordered sequence of lines.
// For each label the first line containing it (case-insensitively) wins,
// and the value is the whitespace-trimmed text after that line's first
// colon.
func ParseLines(lines []string) Record {
	return Record{
		Name:           extract(lines, LabelName),
		ScientificName: extract(lines, LabelScientificName),
		Family:         extract(lines, LabelFamily),
		Description:    extract(lines, LabelDescription),
		CareTips:       extract(lines, LabelCareTips),
	}
}

func extract(lines []string, label string) string {
	for _, line := range lines {
		if !strings.Contains(strings.ToLower(line), label) {
			continue
		}
		if _, value, ok := strings.Cut(line, ":"); ok {
			return strings.TrimSpace(value)
		}
		return Unavailable(label)
	}
	return Unavailable(label)
}
