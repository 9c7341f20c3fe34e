package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const DefaultNotStated = "<not stated>"

// MedicalExtraction is the closed structured record produced from clinical text.
// Every field is always present; absent information carries the not-stated sentinel.
type MedicalExtraction struct {
	PatientName     string `json:"patient_name" bson:"patient_name" yaml:"patient_name"`
	PatientAge      string `json:"patient_age" bson:"patient_age" yaml:"patient_age"`
	PatientSex      string `json:"patient_sex" bson:"patient_sex" yaml:"patient_sex"`
	PregnancyStatus string `json:"pregnancy_status" bson:"pregnancy_status" yaml:"pregnancy_status"`
	ChiefComplaint  string `json:"chief_complaint" bson:"chief_complaint" yaml:"chief_complaint"`
	Symptoms        string `json:"symptoms" bson:"symptoms" yaml:"symptoms"`
	Diagnosis       string `json:"diagnosis" bson:"diagnosis" yaml:"diagnosis"`
	Medications     string `json:"medications" bson:"medications" yaml:"medications"`
	Allergies       string `json:"allergies" bson:"allergies" yaml:"allergies"`
	VitalSigns      string `json:"vital_signs" bson:"vital_signs" yaml:"vital_signs"`
	LabResults      string `json:"lab_results" bson:"lab_results" yaml:"lab_results"`
	Treatment       string `json:"treatment" bson:"treatment" yaml:"treatment"`
	FollowUp        string `json:"follow_up" bson:"follow_up" yaml:"follow_up"`
	Observations    string `json:"observations" bson:"observations" yaml:"observations"`
}

type ExtractionField struct {
	Key         string
	Description string
}

// ExtractionFields is the declared schema, in prompt and export order.
var ExtractionFields = []ExtractionField{
	{"patient_name", "patient full name"},
	{"patient_age", "age with unit, e.g. \"45 years\""},
	{"patient_sex", "sex or gender as stated"},
	{"pregnancy_status", "pregnant, not pregnant, or weeks of gestation"},
	{"chief_complaint", "main reason for the encounter in a short phrase"},
	{"symptoms", "comma-separated symptoms reported or observed"},
	{"diagnosis", "comma-separated diagnoses or suspected conditions"},
	{"medications", "comma-separated medications with dose, route, frequency and duration when given"},
	{"allergies", "comma-separated allergies with reaction when given"},
	{"vital_signs", "blood pressure, heart rate, respiratory rate, temperature, oxygen saturation as stated"},
	{"lab_results", "comma-separated lab tests with value, unit and reference range when given"},
	{"treatment", "treatment, prescriptions or recommendations given during the encounter"},
	{"follow_up", "follow-up instructions or next appointment"},
	{"observations", "other clinically relevant remarks"},
}

// ErrMalformedExtraction marks payloads that are not a JSON object at all.
// Callers may try a tolerant re-parse for this case only.
var ErrMalformedExtraction = errors.New("extraction payload is not a json object")

// Fields returns the record as key/value pairs keyed by the declared schema keys.
func (e MedicalExtraction) Fields() map[string]string {
	return map[string]string{
		"patient_name":     e.PatientName,
		"patient_age":      e.PatientAge,
		"patient_sex":      e.PatientSex,
		"pregnancy_status": e.PregnancyStatus,
		"chief_complaint":  e.ChiefComplaint,
		"symptoms":         e.Symptoms,
		"diagnosis":        e.Diagnosis,
		"medications":      e.Medications,
		"allergies":        e.Allergies,
		"vital_signs":      e.VitalSigns,
		"lab_results":      e.LabResults,
		"treatment":        e.Treatment,
		"follow_up":        e.FollowUp,
		"observations":     e.Observations,
	}
}

func extractionFromFields(values map[string]string) MedicalExtraction {
	return MedicalExtraction{
		PatientName:     values["patient_name"],
		PatientAge:      values["patient_age"],
		PatientSex:      values["patient_sex"],
		PregnancyStatus: values["pregnancy_status"],
		ChiefComplaint:  values["chief_complaint"],
		Symptoms:        values["symptoms"],
		Diagnosis:       values["diagnosis"],
		Medications:     values["medications"],
		Allergies:       values["allergies"],
		VitalSigns:      values["vital_signs"],
		LabResults:      values["lab_results"],
		Treatment:       values["treatment"],
		FollowUp:        values["follow_up"],
		Observations:    values["observations"],
	}
}

// DecodeExtraction strictly parses raw as a closed MedicalExtraction object:
// every declared key present, no extra keys, every value a string.
func DecodeExtraction(raw []byte) (MedicalExtraction, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return MedicalExtraction{}, WrapError(ErrSchemaValidation, "decode extraction", ErrMalformedExtraction)
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &object); err != nil {
		return MedicalExtraction{}, WrapError(ErrSchemaValidation, "decode extraction", fmt.Errorf("%w: %w", ErrMalformedExtraction, err))
	}

	declared := make(map[string]struct{}, len(ExtractionFields))
	for _, field := range ExtractionFields {
		declared[field.Key] = struct{}{}
	}

	var unknown []string
	for key := range object {
		if _, ok := declared[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return MedicalExtraction{}, WrapError(ErrSchemaValidation, "decode extraction", fmt.Errorf("unexpected fields: %s", strings.Join(unknown, ", ")))
	}

	var missing []string
	values := make(map[string]string, len(ExtractionFields))
	for _, field := range ExtractionFields {
		rawValue, ok := object[field.Key]
		if !ok {
			missing = append(missing, field.Key)
			continue
		}
		var value string
		if err := json.Unmarshal(rawValue, &value); err != nil || bytes.Equal(bytes.TrimSpace(rawValue), []byte("null")) {
			return MedicalExtraction{}, WrapError(ErrSchemaValidation, "decode extraction", fmt.Errorf("field %s must be a string", field.Key))
		}
		values[field.Key] = strings.TrimSpace(value)
	}
	if len(missing) > 0 {
		return MedicalExtraction{}, WrapError(ErrSchemaValidation, "decode extraction", fmt.Errorf("missing fields: %s", strings.Join(missing, ", ")))
	}

	return extractionFromFields(values), nil
}
