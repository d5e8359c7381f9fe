package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinical-ews/platform/pkg/anonymizer"
	"github.com/clinical-ews/platform/pkg/audit"
	"github.com/clinical-ews/platform/pkg/common/logger"
	"github.com/clinical-ews/platform/pkg/observability/metrics"
	"github.com/clinical-ews/platform/pkg/risk"
	"github.com/clinical-ews/platform/pkg/vitals"
)

// Ingest and prediction outcomes. StatusStoredButUnaudited marks the
// partial failure where data is durable but the audit write failed; callers
// must be able to tell that apart from both success and "nothing happened".
const (
	StatusAccepted           = "accepted"
	StatusRejected           = "rejected"
	StatusStoredButUnaudited = "stored_but_unaudited"
)

// SystemActor is used when no caller identity is supplied.
const SystemActor = "system"

type VitalsStore interface {
	UpsertPatient(ctx context.Context, anonID string, v vitals.ValidatedVitals) error
	Append(ctx context.Context, anonID string, v vitals.ValidatedVitals) (*vitals.Record, error)
	History(ctx context.Context, anonID string, limit int) ([]vitals.Record, error)
	Latest(ctx context.Context, anonID string) (*vitals.Record, error)
	Patients(ctx context.Context) ([]vitals.Patient, error)
	CountPatients(ctx context.Context) (int64, error)
	CountRecordsSince(ctx context.Context, cutoff time.Time) (int64, error)
}

type AuditTrail interface {
	Record(ctx context.Context, actorID, anonID string, details audit.Details) (*audit.Entry, error)
	Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

type PredictionLog interface {
	Create(ctx context.Context, anonID string, score float64, level risk.Level, factors []risk.Factor) (*risk.Prediction, error)
	History(ctx context.Context, anonID string, limit int) ([]risk.Prediction, error)
	Recent(ctx context.Context, limit int) ([]risk.Prediction, error)
	CountLevelSince(ctx context.Context, level risk.Level, cutoff time.Time) (int64, error)
}

type Scorer interface {
	Score(fv risk.FeatureVector) (float64, []risk.Factor, error)
}

type AlertPublisher interface {
	PublishAlert(ctx context.Context, alertType, source string, data map[string]interface{}) error
}

type IngestResult struct {
	Status string              `json:"status"`
	AnonID string              `json:"anon_id,omitempty"`
	Record *vitals.Record      `json:"record,omitempty"`
	Errors []vitals.FieldError `json:"errors,omitempty"`
}

type PredictResult struct {
	Status              string        `json:"status"`
	AnonID              string        `json:"anon_id"`
	RiskScore           float64       `json:"risk_score"`
	RiskLevel           risk.Level    `json:"risk_level"`
	ContributingFactors []risk.Factor `json:"contributing_factors"`
}

// Coordinator drives each request through validate, anonymize, store, score,
// classify and audit. Steps already made durable are never rolled back.
type Coordinator struct {
	validator   *vitals.Validator
	anonymizer  *anonymizer.Anonymizer
	store       VitalsStore
	model       Scorer
	predictions PredictionLog
	trail       AuditTrail

	// optional collaborators
	alerts      AlertPublisher
	alertSource string
	cache       Cache
	cacheTTL    time.Duration
}

func NewCoordinator(validator *vitals.Validator, anon *anonymizer.Anonymizer, store VitalsStore, model Scorer, predictions PredictionLog, trail AuditTrail) *Coordinator {
	return &Coordinator{
		validator:   validator,
		anonymizer:  anon,
		store:       store,
		model:       model,
		predictions: predictions,
		trail:       trail,
	}
}

// WithAlerts enables HIGH risk alert publishing.
func (c *Coordinator) WithAlerts(alerts AlertPublisher, source string) *Coordinator {
	c.alerts = alerts
	c.alertSource = source
	return c
}

// WithCache enables prediction caching.
func (c *Coordinator) WithCache(cache Cache, ttl time.Duration) *Coordinator {
	c.cache = cache
	c.cacheTTL = ttl
	return c
}

// Ingest validates, anonymizes and stores one vitals reading, then writes
// the DATA_INGEST audit entry. A validation failure is terminal: nothing is
// stored and the rejection is returned with every failing field.
func (c *Coordinator) Ingest(ctx context.Context, actorID string, raw vitals.RawVitalsInput) (IngestResult, error) {
	if actorID == "" {
		actorID = SystemActor
	}

	validated, err := c.validator.Validate(raw)
	if err != nil {
		var ve vitals.ValidationError
		if errors.As(err, &ve) {
			metrics.IncIngestRejected()
			c.recordRejection(ctx, actorID, raw, ve)
			return IngestResult{Status: StatusRejected, Errors: ve.Fields}, nil
		}
		return IngestResult{}, err
	}

	anonID, err := c.anonymizer.Anonymize(validated.PatientID)
	if err != nil {
		return IngestResult{}, err
	}

	if err := c.store.UpsertPatient(ctx, anonID, validated); err != nil {
		return IngestResult{}, fmt.Errorf("persisting patient: %w", err)
	}

	record, err := c.store.Append(ctx, anonID, validated)
	if err != nil {
		return IngestResult{}, fmt.Errorf("persisting vitals: %w", err)
	}

	if c.cache != nil {
		c.cache.InvalidatePrediction(ctx, anonID)
	}

	details := audit.IngestDetails{RecordID: record.ID, SourceSystem: validated.SourceSystem}
	if _, err := c.trail.Record(ctx, actorID, anonID, details); err != nil {
		metrics.IncIngestUnaudited()
		logger.Log.WithError(err).WithField("anon_id", anonID).
			Error("vitals stored but audit write failed")
		return IngestResult{Status: StatusStoredButUnaudited, AnonID: anonID, Record: record}, nil
	}

	metrics.IncIngestAccepted()
	return IngestResult{Status: StatusAccepted, AnonID: anonID, Record: record}, nil
}

// recordRejection writes the optional INGEST_REJECTED entry. Best effort:
// rejections are reported to the caller either way.
func (c *Coordinator) recordRejection(ctx context.Context, actorID string, raw vitals.RawVitalsInput, ve vitals.ValidationError) {
	anonID := ""
	if raw.PatientID != "" {
		if derived, err := c.anonymizer.Anonymize(raw.PatientID); err == nil {
			anonID = derived
		}
	}
	fields := make([]string, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		fields = append(fields, f.Field)
	}
	details := audit.RejectionDetails{SourceSystem: raw.SourceSystem, FailingFields: fields}
	if _, err := c.trail.Record(ctx, actorID, anonID, details); err != nil {
		logger.Log.WithError(err).Warn("failed to audit rejected ingest")
	}
}

// Predict scores the patient's most recent reading, classifies it, persists
// the prediction and writes the PREDICTION audit entry.
func (c *Coordinator) Predict(ctx context.Context, actorID, anonID string) (PredictResult, error) {
	if actorID == "" {
		actorID = SystemActor
	}

	if c.cache != nil {
		if cached, ok := c.cache.GetPrediction(ctx, anonID); ok {
			// Cached responses still leave a trace of who asked.
			details := audit.AccessDetails{Resource: "risk_prediction", Outcome: "served_from_cache"}
			if _, err := c.trail.Record(ctx, actorID, anonID, details); err != nil {
				logger.Log.WithError(err).Warn("failed to audit cached prediction access")
			}
			return *cached, nil
		}
	}

	latest, err := c.store.Latest(ctx, anonID)
	if err != nil {
		return PredictResult{}, err
	}

	fv := risk.FeatureVector{
		HeartRate:        float64(latest.HeartRate),
		BPSystolic:       float64(latest.BPSystolic),
		BPDiastolic:      float64(latest.BPDiastolic),
		RespiratoryRate:  float64(latest.RespiratoryRate),
		Temperature:      latest.Temperature,
		OxygenSaturation: float64(latest.OxygenSaturation),
	}

	score, factors, err := c.model.Score(fv)
	if err != nil {
		if errors.Is(err, risk.ErrModelUnavailable) {
			metrics.IncPredictionFailed()
			details := audit.AccessDetails{Resource: "risk_prediction", Outcome: "model_unavailable"}
			if _, auditErr := c.trail.Record(ctx, actorID, anonID, details); auditErr != nil {
				logger.Log.WithError(auditErr).Warn("failed to audit unavailable model access")
			}
		}
		return PredictResult{}, err
	}

	level, err := risk.Classify(score)
	if err != nil {
		return PredictResult{}, err
	}

	prediction, err := c.predictions.Create(ctx, anonID, score, level, factors)
	if err != nil {
		return PredictResult{}, fmt.Errorf("persisting prediction: %w", err)
	}

	result := PredictResult{
		Status:              StatusAccepted,
		AnonID:              anonID,
		RiskScore:           score,
		RiskLevel:           level,
		ContributingFactors: factors,
	}

	details := audit.PredictionDetails{
		PredictionID: prediction.ID,
		RiskScore:    score,
		RiskLevel:    string(level),
	}
	if _, err := c.trail.Record(ctx, actorID, anonID, details); err != nil {
		metrics.IncPredictionUnaudited()
		logger.Log.WithError(err).WithField("anon_id", anonID).
			Error("prediction stored but audit write failed")
		result.Status = StatusStoredButUnaudited
		return result, nil
	}

	metrics.IncPredictionServed()
	if level == risk.LevelHigh {
		metrics.IncPredictionHighRisk()
		c.publishHighRiskAlert(ctx, anonID, result)
	}
	if c.cache != nil {
		c.cache.SetPrediction(ctx, anonID, result, c.cacheTTL)
	}
	return result, nil
}

func (c *Coordinator) publishHighRiskAlert(ctx context.Context, anonID string, result PredictResult) {
	if c.alerts == nil {
		return
	}
	data := map[string]interface{}{
		"anon_id":    anonID,
		"risk_score": result.RiskScore,
		"risk_level": string(result.RiskLevel),
	}
	if err := c.alerts.PublishAlert(ctx, "risk-alert", c.alertSource, data); err != nil {
		logger.Log.WithError(err).WithField("anon_id", anonID).
			Warn("failed to publish high risk alert")
	}
}

// Patients lists every known patient with demographics, auditing the read.
func (c *Coordinator) Patients(ctx context.Context, actorID string) ([]vitals.Patient, error) {
	patients, err := c.store.Patients(ctx)
	if err != nil {
		return nil, err
	}
	c.auditAccess(ctx, actorID, "", "patients")
	return patients, nil
}

// Vitals returns one patient's readings, timestamp ascending.
func (c *Coordinator) Vitals(ctx context.Context, actorID, anonID string, limit int) ([]vitals.Record, error) {
	records, err := c.store.History(ctx, anonID, limit)
	if err != nil {
		return nil, err
	}
	c.auditAccess(ctx, actorID, anonID, "vitals")
	return records, nil
}

// Predictions returns one patient's prediction history, timestamp ascending.
func (c *Coordinator) Predictions(ctx context.Context, actorID, anonID string, limit int) ([]risk.Prediction, error) {
	predictions, err := c.predictions.History(ctx, anonID, limit)
	if err != nil {
		return nil, err
	}
	c.auditAccess(ctx, actorID, anonID, "predictions")
	return predictions, nil
}

// AuditEntries queries the trail itself. Reading the trail is not an audited
// action, otherwise every governance review would grow the log it reviews.
func (c *Coordinator) AuditEntries(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	return c.trail.Query(ctx, filter)
}

func (c *Coordinator) auditAccess(ctx context.Context, actorID, anonID, resource string) {
	if actorID == "" {
		actorID = SystemActor
	}
	details := audit.AccessDetails{Resource: resource, Outcome: "ok"}
	if _, err := c.trail.Record(ctx, actorID, anonID, details); err != nil {
		logger.Log.WithError(err).WithField("resource", resource).
			Warn("failed to audit data access")
	}
}
