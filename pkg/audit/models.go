package audit

import (
	"time"

	"gorm.io/datatypes"
)

type ActionType string

const (
	ActionDataIngest     ActionType = "DATA_INGEST"
	ActionPrediction     ActionType = "PREDICTION"
	ActionDataAccess     ActionType = "DATA_ACCESS"
	ActionIngestRejected ActionType = "INGEST_REJECTED"
)

// Entry is one immutable row of the audit trail.
type Entry struct {
	ID        string            `json:"id" gorm:"primaryKey;column:id"`
	Timestamp time.Time         `json:"timestamp" gorm:"column:timestamp;index"`
	Action    ActionType        `json:"action" gorm:"column:action;index"`
	ActorID   string            `json:"actor_id" gorm:"column:actor_id"`
	AnonID    string            `json:"anonymized_patient_id" gorm:"column:anonymized_patient_id;index"`
	Details   datatypes.JSONMap `json:"details" gorm:"column:details"`
}

func (Entry) TableName() string {
	return "audit_log"
}

// Details is a tagged payload with a fixed schema per action type, so audit
// rows stay queryable instead of degrading into free-form blobs.
type Details interface {
	Action() ActionType
	Payload() datatypes.JSONMap
}

type IngestDetails struct {
	RecordID     string
	SourceSystem string
}

func (IngestDetails) Action() ActionType { return ActionDataIngest }

func (d IngestDetails) Payload() datatypes.JSONMap {
	return datatypes.JSONMap{
		"record_id":     d.RecordID,
		"source_system": d.SourceSystem,
	}
}

type PredictionDetails struct {
	PredictionID string
	RiskScore    float64
	RiskLevel    string
}

func (PredictionDetails) Action() ActionType { return ActionPrediction }

func (d PredictionDetails) Payload() datatypes.JSONMap {
	return datatypes.JSONMap{
		"prediction_id": d.PredictionID,
		"risk_score":    d.RiskScore,
		"risk_level":    d.RiskLevel,
	}
}

type AccessDetails struct {
	Resource string
	Outcome  string
}

func (AccessDetails) Action() ActionType { return ActionDataAccess }

func (d AccessDetails) Payload() datatypes.JSONMap {
	return datatypes.JSONMap{
		"resource": d.Resource,
		"outcome":  d.Outcome,
	}
}

// RejectionDetails records a rejected ingest. Only field names are kept;
// raw values could contain identifying data.
type RejectionDetails struct {
	SourceSystem  string
	FailingFields []string
}

func (RejectionDetails) Action() ActionType { return ActionIngestRejected }

func (d RejectionDetails) Payload() datatypes.JSONMap {
	fields := make([]interface{}, 0, len(d.FailingFields))
	for _, f := range d.FailingFields {
		fields = append(fields, f)
	}
	return datatypes.JSONMap{
		"source_system":  d.SourceSystem,
		"failing_fields": fields,
	}
}
