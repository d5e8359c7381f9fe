package vitals

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError names one failing field and why it failed.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError carries every failing field so callers can report all
// problems in one response instead of surfacing them one at a time.
type ValidationError struct {
	Fields []FieldError
}

func (e ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Reason))
	}
	return "invalid vitals input: " + strings.Join(parts, "; ")
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type Validator struct {
	rules RulesConfig
}

func NewValidator(rules RulesConfig) *Validator {
	return &Validator{rules: rules}
}

// Validate checks structure and physiological plausibility. It is a pure
// function: no side effects, all violations collected before returning.
func (v *Validator) Validate(raw RawVitalsInput) (ValidatedVitals, error) {
	var fields []FieldError

	if strings.TrimSpace(raw.PatientID) == "" {
		fields = append(fields, FieldError{Field: "patient_id", Reason: "required"})
	}

	source := strings.TrimSpace(raw.SourceSystem)
	if source == "" {
		fields = append(fields, FieldError{Field: "source_system", Reason: "required"})
	} else if !v.rules.sourceAllowed(source) {
		fields = append(fields, FieldError{
			Field:  "source_system",
			Reason: fmt.Sprintf("'%s' is not a recognized source system", source),
		})
	}

	checkInt := func(name string, value *int) int {
		if value == nil {
			fields = append(fields, FieldError{Field: name, Reason: "required"})
			return 0
		}
		if r, ok := v.rules.rangeFor(name); ok {
			if f := float64(*value); f < r.Min || f > r.Max {
				fields = append(fields, FieldError{
					Field:  name,
					Reason: fmt.Sprintf("%d outside plausible range [%g, %g]", *value, r.Min, r.Max),
				})
			}
		}
		return *value
	}

	heartRate := checkInt("heart_rate", raw.HeartRate)
	bpSystolic := checkInt("bp_systolic", raw.BPSystolic)
	bpDiastolic := checkInt("bp_diastolic", raw.BPDiastolic)
	respiratoryRate := checkInt("respiratory_rate", raw.RespiratoryRate)
	oxygenSaturation := checkInt("oxygen_saturation", raw.OxygenSaturation)

	var temperature float64
	if raw.Temperature == nil {
		fields = append(fields, FieldError{Field: "temperature", Reason: "required"})
	} else {
		temperature = *raw.Temperature
		if r, ok := v.rules.rangeFor("temperature"); ok {
			if temperature < r.Min || temperature > r.Max {
				fields = append(fields, FieldError{
					Field:  "temperature",
					Reason: fmt.Sprintf("%.1f outside plausible range [%g, %g]", temperature, r.Min, r.Max),
				})
			}
		}
	}

	age := 0
	if raw.Age != nil {
		age = *raw.Age
		if age <= 0 || age > 130 {
			fields = append(fields, FieldError{Field: "age", Reason: fmt.Sprintf("%d is not a plausible age", age)})
		}
	}

	if len(fields) > 0 {
		return ValidatedVitals{}, ValidationError{Fields: fields}
	}

	return ValidatedVitals{
		PatientID:        strings.TrimSpace(raw.PatientID),
		Age:              age,
		Gender:           strings.TrimSpace(raw.Gender),
		Ward:             strings.TrimSpace(raw.Ward),
		SourceSystem:     source,
		HeartRate:        heartRate,
		BPSystolic:       bpSystolic,
		BPDiastolic:      bpDiastolic,
		RespiratoryRate:  respiratoryRate,
		Temperature:      temperature,
		OxygenSaturation: oxygenSaturation,
	}, nil
}
