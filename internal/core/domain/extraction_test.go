package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func completeExtractionJSON(t *testing.T, overrides map[string]any) []byte {
	t.Helper()
	object := make(map[string]any, len(ExtractionFields))
	for _, field := range ExtractionFields {
		object[field.Key] = DefaultNotStated
	}
	for key, value := range overrides {
		if value == nil {
			delete(object, key)
			continue
		}
		object[key] = value
	}
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestDecodeExtractionAcceptsClosedRecord(t *testing.T) {
	raw := completeExtractionJSON(t, map[string]any{"symptoms": " fever, headache "})

	got, err := DecodeExtraction(raw)
	if err != nil {
		t.Fatalf("DecodeExtraction() error = %v", err)
	}
	if got.Symptoms != "fever, headache" {
		t.Fatalf("expected trimmed symptoms, got %q", got.Symptoms)
	}
	if got.Treatment != DefaultNotStated {
		t.Fatalf("expected sentinel treatment, got %q", got.Treatment)
	}
}

func TestDecodeExtractionRejectsSchemaViolations(t *testing.T) {
	cases := map[string][]byte{
		"missing field": completeExtractionJSON(t, map[string]any{"diagnosis": nil}),
		"extra field":   completeExtractionJSON(t, map[string]any{"billing_code": "A1"}),
		"non string":    completeExtractionJSON(t, map[string]any{"symptoms": []string{"fever"}}),
		"null value":    completeExtractionJSON(t, map[string]any{"allergies": json.RawMessage("null")}),
		"empty object":  []byte(`{}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeExtraction(raw)
			if !IsKind(err, ErrSchemaValidation) {
				t.Fatalf("expected ErrSchemaValidation, got %v", err)
			}
			if errors.Is(err, ErrMalformedExtraction) {
				t.Fatalf("well-formed object must not be reported as malformed: %v", err)
			}
		})
	}
}

func TestDecodeExtractionFlagsMalformedPayloads(t *testing.T) {
	for _, raw := range []string{"", "Here is the JSON:", `["a"]`, `{"symptoms": "fever"`, "```json\n{}\n```"} {
		_, err := DecodeExtraction([]byte(raw))
		if !IsKind(err, ErrSchemaValidation) || !errors.Is(err, ErrMalformedExtraction) {
			t.Fatalf("input %q: expected malformed schema error, got %v", raw, err)
		}
	}
}

func TestExtractionFieldsMatchRecordKeys(t *testing.T) {
	raw, err := json.Marshal(MedicalExtraction{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var object map[string]any
	if err := json.Unmarshal(raw, &object); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fields := MedicalExtraction{}.Fields()
	if len(object) != len(ExtractionFields) || len(fields) != len(ExtractionFields) {
		t.Fatalf("key count mismatch: json=%d fields=%d declared=%d", len(object), len(fields), len(ExtractionFields))
	}
	for _, field := range ExtractionFields {
		if _, ok := object[field.Key]; !ok {
			t.Fatalf("json output missing declared key %s", field.Key)
		}
		if _, ok := fields[field.Key]; !ok {
			t.Fatalf("Fields() missing declared key %s", field.Key)
		}
	}
}
