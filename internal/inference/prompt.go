package inference

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Per-document prompt budget. Longer documents are truncated before the
// prompt is built.
const maxDocChars = 3000

// SystemPrompt returns the system instruction for comparison requests.
func SystemPrompt() string {
	return "You are an expert document analyst. Compare the two documents and identify differences, similarities and changes. Respond with JSON only."
}

// BuildPrompt renders the user prompt for a comparison request.
func BuildPrompt(input Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DOCUMENT 1: %q\nContent:\n%s\n\n", input.BaseTitle, truncate(input.BaseText, maxDocChars))
	fmt.Fprintf(&b, "DOCUMENT 2: %q\nContent:\n%s\n\n", input.ComparedTitle, truncate(input.ComparedText, maxDocChars))
	b.WriteString(`Compare the documents in detail and return the result in exactly this JSON format:

{
    "summary": "Short summary of the main differences",
    "similarities": [
        "List of similarities between the documents"
    ],
    "differences": [
        {
            "type": "content|structure|format",
            "description": "Description of the difference",
            "location": "Where in the document",
            "old_value": "Value in the first document",
            "new_value": "Value in the second document",
            "significance": "high|medium|low"
        }
    ],
    "recommendations": [
        "Recommended follow-ups"
    ],
    "overall_assessment": "Overall assessment of the changes"
}

Analyze carefully and return only the structured JSON result.`)
	return b.String()
}

// truncate cuts at a rune boundary so a multi-byte character is never split.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
