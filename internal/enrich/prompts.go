package enrich

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an intelligence analyst. You read field documents and extract structured information.
Only report what the text states. When asked for JSON, answer with JSON only.`

// DefaultCategories are offered to the model for classification.
var DefaultCategories = []string{
	"operations", "logistics", "personnel", "equipment",
	"infrastructure", "communications", "threat", "administrative",
}

func summaryPrompt(text string) string {
	return fmt.Sprintf(`Write a concise summary of the text below in at most three sentences.
Answer with the summary only.

Text:
%s`, text)
}

func entitiesPrompt(text string) string {
	return fmt.Sprintf(`List the named entities that appear in the text below.
Allowed types: person, organization, equipment, location (other types are allowed when none fits).
For each entity give the number of mentions and your confidence as "high", "medium" or "low".

Answer with a JSON array:
[{"name": "...", "type": "person", "mentions": 1, "confidence": "high"}]

Text:
%s`, text)
}

func relationshipsPrompt(text string) string {
	return fmt.Sprintf(`Find relationships between people, organizations, equipment and locations in the text below.
Describe each one as source, target and a short relationship type such as "commands", "located_at" or "uses".
Rate your confidence as "high", "medium" or "low".

Answer with a JSON array:
[{"source": "...", "target": "...", "type": "...", "confidence": "medium"}]

Text:
%s`, text)
}

func classificationPrompt(text string, categories []string) string {
	return fmt.Sprintf(`Classify the text below into one or more of these categories: %s.
Give each chosen category a confidence from 0 to 100 and add up to five lower-case topic tags.

Answer with a JSON object:
{"categories": [{"name": "operations", "confidence": 85}], "tags": ["..."]}

Text:
%s`, strings.Join(categories, ", "), text)
}
