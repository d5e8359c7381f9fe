package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Prediction is the persistence model for the risk_predictions collection.
// Rows are created once and never updated; risk level is always derived from
// risk score before the row is written, so the two can't drift apart.
type Prediction struct {
	ID                  string            `json:"id" gorm:"primaryKey;column:id"`
	AnonID              string            `json:"anon_id" gorm:"column:anon_id;index:idx_predictions_patient_time,priority:1"`
	Timestamp           time.Time         `json:"timestamp" gorm:"column:timestamp;index:idx_predictions_patient_time,priority:2"`
	RiskScore           float64           `json:"risk_score" gorm:"column:risk_score"`
	RiskLevel           Level             `json:"risk_level" gorm:"column:risk_level"`
	ContributingFactors datatypes.JSONMap `json:"contributing_factors" gorm:"column:contributing_factors"`
}

func (Prediction) TableName() string {
	return "risk_predictions"
}

// factorsPayload preserves the descending factor ranking inside the JSON
// column, which has no inherent order.
func factorsPayload(factors []Factor) datatypes.JSONMap {
	ranked := make([]interface{}, 0, len(factors))
	for _, f := range factors {
		ranked = append(ranked, map[string]interface{}{
			"feature": f.Feature,
			"weight":  f.Weight,
		})
	}
	return datatypes.JSONMap{"ranked": ranked}
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Prediction{})
}

// Create appends one prediction row.
func (r *Repository) Create(ctx context.Context, anonID string, score float64, level Level, factors []Factor) (*Prediction, error) {
	prediction := &Prediction{
		ID:                  uuid.New().String(),
		AnonID:              anonID,
		Timestamp:           time.Now().UTC(),
		RiskScore:           score,
		RiskLevel:           level,
		ContributingFactors: factorsPayload(factors),
	}
	if err := r.db.WithContext(ctx).Create(prediction).Error; err != nil {
		return nil, err
	}
	return prediction, nil
}

// History returns a patient's predictions, timestamp ascending.
func (r *Repository) History(ctx context.Context, anonID string, limit int) ([]Prediction, error) {
	query := r.db.WithContext(ctx).
		Where("anon_id = ?", anonID).
		Order("timestamp ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var predictions []Prediction
	err := query.Find(&predictions).Error
	return predictions, err
}

// Recent returns the latest predictions across all patients, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Prediction, error) {
	if limit <= 0 {
		limit = 10
	}
	var predictions []Prediction
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&predictions).Error
	return predictions, err
}

// CountLevelSince counts predictions of one tier at or after cutoff.
func (r *Repository) CountLevelSince(ctx context.Context, level Level, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Prediction{}).
		Where("risk_level = ? AND timestamp >= ?", level, cutoff).
		Count(&count).Error
	return count, err
}
