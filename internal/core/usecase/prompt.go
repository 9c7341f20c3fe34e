package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
)

// buildExtractionPrompt renders the fixed extraction template. Identical inputs give identical prompts.
func buildExtractionPrompt(text, notStated string) string {
	var fields strings.Builder
	for _, field := range domain.ExtractionFields {
		fmt.Fprintf(&fields, "- %s: %s\n", field.Key, field.Description)
	}

	return fmt.Sprintf(`You are a clinical documentation assistant.
Extract medical information from the encounter text below into a single JSON object.

The object must contain exactly these keys, each with a string value:
%s
Rules:
- Use only information present in the text. Do not infer or invent facts.
- When the text does not mention a field, use the exact value %q.
- Join multiple items in one field with ", ".
- Keep the language of the source text.
- Return only the JSON object. No markdown, no comments, no extra keys.

Example 1
Text: Maria Lopez, 34 years old, pregnant 20 weeks, allergic to penicillin. Complains of cough and fever for 3 days. Temperature 38.7 C. Diagnosed with bronchitis, prescribed azithromycin 500 mg daily for 3 days. Return in one week.
JSON: %s

Example 2
Text: Please call me back tomorrow about the appointment.
JSON: %s

Text: %s
JSON:`,
		fields.String(),
		notStated,
		exampleClinicalJSON(notStated),
		exampleEmptyJSON(notStated),
		text,
	)
}

func exampleClinicalJSON(notStated string) string {
	values := map[string]string{
		"patient_name":     "Maria Lopez",
		"patient_age":      "34 years",
		"patient_sex":      notStated,
		"pregnancy_status": "pregnant, 20 weeks",
		"chief_complaint":  "cough and fever",
		"symptoms":         "cough, fever",
		"diagnosis":        "bronchitis",
		"medications":      "azithromycin 500 mg daily for 3 days",
		"allergies":        "penicillin",
		"vital_signs":      "temperature 38.7 C",
		"lab_results":      notStated,
		"treatment":        "azithromycin 500 mg daily for 3 days",
		"follow_up":        "return in one week",
		"observations":     notStated,
	}
	return renderExample(values, notStated)
}

func exampleEmptyJSON(notStated string) string {
	return renderExample(nil, notStated)
}

// renderExample writes keys in schema order so the prompt stays byte-stable.
func renderExample(values map[string]string, notStated string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, field := range domain.ExtractionFields {
		if i > 0 {
			b.WriteString(", ")
		}
		value, ok := values[field.Key]
		if !ok {
			value = notStated
		}
		fmt.Fprintf(&b, "%q: %q", field.Key, value)
	}
	b.WriteByte('}')
	return b.String()
}
