package vitals

import (
	"time"
)

// Recognized source systems. "other" covers feeds that are trusted but not
// one of the three primary clinical systems.
const (
	SourceICU   = "ICU"
	SourceAE    = "A&E"
	SourceWard  = "Ward"
	SourceOther = "other"
)

// RawVitalsInput is what the ingress layer hands to the pipeline after wire
// decoding. Numeric fields are pointers so that "absent" and "zero" stay
// distinguishable for validation.
type RawVitalsInput struct {
	PatientID        string   `json:"patient_id"`
	Age              *int     `json:"age,omitempty"`
	Gender           string   `json:"gender,omitempty"`
	Ward             string   `json:"ward,omitempty"`
	SourceSystem     string   `json:"source_system"`
	HeartRate        *int     `json:"heart_rate"`
	BPSystolic       *int     `json:"bp_systolic"`
	BPDiastolic      *int     `json:"bp_diastolic"`
	RespiratoryRate  *int     `json:"respiratory_rate"`
	Temperature      *float64 `json:"temperature"`
	OxygenSaturation *int     `json:"oxygen_saturation"`
}

// ValidatedVitals is a RawVitalsInput that passed every structural and range
// check. It still carries the real patient identifier; the pipeline strips it
// at the anonymization boundary.
type ValidatedVitals struct {
	PatientID        string
	Age              int
	Gender           string
	Ward             string
	SourceSystem     string
	HeartRate        int
	BPSystolic       int
	BPDiastolic      int
	RespiratoryRate  int
	Temperature      float64
	OxygenSaturation int
}

// Patient is the persistence model for the patients collection. Only the
// anonymized identifier is stored; demographics may be updated but the
// identifier linkage is never deleted.
type Patient struct {
	AnonID        string    `json:"anon_id" gorm:"primaryKey;column:anon_id"`
	Age           int       `json:"age" gorm:"column:age"`
	Gender        string    `json:"gender" gorm:"column:gender"`
	Ward          string    `json:"ward" gorm:"column:ward"`
	AdmissionDate time.Time `json:"admission_date" gorm:"column:admission_date"`
}

func (Patient) TableName() string {
	return "patients"
}

// Record is the persistence model for a single vital-signs reading.
// Records are append-only: corrections are new records, never updates.
type Record struct {
	ID               string    `json:"id" gorm:"primaryKey;column:id"`
	AnonID           string    `json:"anon_id" gorm:"column:anon_id;index:idx_vitals_patient_time,priority:1"`
	Timestamp        time.Time `json:"timestamp" gorm:"column:timestamp;index:idx_vitals_patient_time,priority:2"`
	HeartRate        int       `json:"heart_rate" gorm:"column:heart_rate"`
	BPSystolic       int       `json:"bp_systolic" gorm:"column:bp_systolic"`
	BPDiastolic      int       `json:"bp_diastolic" gorm:"column:bp_diastolic"`
	RespiratoryRate  int       `json:"respiratory_rate" gorm:"column:respiratory_rate"`
	Temperature      float64   `json:"temperature" gorm:"column:temperature"`
	OxygenSaturation int       `json:"oxygen_saturation" gorm:"column:oxygen_saturation"`
	SourceSystem     string    `json:"source_system" gorm:"column:source_system"`
	CreatedAt        time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Record) TableName() string {
	return "vital_signs"
}
