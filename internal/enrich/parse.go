package enrich

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// ExtractionKind tags the outcome of pulling JSON out of a model response.
type ExtractionKind int

const (
	// Empty means no JSON payload matched or it did not decode into the target.
	Empty ExtractionKind = iota
	// Parsed means the target was filled from the response.
	Parsed
)

func (k ExtractionKind) String() string {
	if k == Parsed {
		return "parsed"
	}
	return "empty"
}

// Extraction is the result of ExtractJSON. Source names the matching tier.
type Extraction struct {
	Kind   ExtractionKind
	Source string
}

var (
	fencedRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")
	arrayRe  = regexp.MustCompile(`(?s)\[.*\]`)
	objectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractJSON decodes the first JSON payload in text into v. It tries a fenced code block,
// then a bare array, then a bare object, and keeps the first candidate that decodes.
// When nothing decodes the result is Empty and v must be ignored.
func ExtractJSON(text string, v interface{}) Extraction {
	tiers := []struct {
		name string
		find func(string) string
	}{
		{"fenced", func(s string) string {
			if m := fencedRe.FindStringSubmatch(s); m != nil {
				return m[1]
			}
			return ""
		}},
		{"array", arrayRe.FindString},
		{"object", objectRe.FindString},
	}
	for _, tier := range tiers {
		candidate := strings.TrimSpace(tier.find(text))
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return Extraction{Kind: Parsed, Source: tier.name}
		}
	}
	return Extraction{Kind: Empty}
}

// confidence accepts "high"/"medium"/"low", numeric strings and numbers.
// Numbers above 1 are read as percentages.
type confidence float64

func (c *confidence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = confidence(labelScore(s))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		// unknown shapes score zero rather than failing the whole list
		*c = 0
		return nil
	}
	*c = confidence(normalizeScore(f))
	return nil
}

func labelScore(s string) float64 {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return 1.0
	case "medium":
		return 0.6
	case "low":
		return 0.3
	}
	if f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64); err == nil {
		return normalizeScore(f)
	}
	return 0
}

func normalizeScore(f float64) float64 {
	if f > 1 {
		f /= 100
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// cleanSummary strips fences and wrapping quotes from a free-text answer.
func cleanSummary(s string) string {
	s = strings.TrimSpace(s)
	if m := fencedRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	var quoted string
	if strings.HasPrefix(s, `"`) && json.Unmarshal([]byte(s), &quoted) == nil {
		s = quoted
	}
	s = strings.TrimPrefix(s, "Summary:")
	return strings.TrimSpace(s)
}
