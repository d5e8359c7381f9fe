package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Trail is the append-only audit log. There is deliberately no update or
// delete method on this type.
type Trail struct {
	db *gorm.DB
}

func NewTrail(db *gorm.DB) *Trail {
	return &Trail{db: db}
}

func (t *Trail) AutoMigrate() error {
	return t.db.AutoMigrate(&Entry{})
}

// Record durably writes one entry. Callers treat a nil error as "the action
// is now part of the permanent trail".
func (t *Trail) Record(ctx context.Context, actorID, anonID string, details Details) (*Entry, error) {
	entry := &Entry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Action:    details.Action(),
		ActorID:   actorID,
		AnonID:    anonID,
		Details:   details.Payload(),
	}
	if err := t.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// Filter narrows Query results. Zero values mean "no constraint".
type Filter struct {
	Action ActionType
	AnonID string
	From   time.Time
	To     time.Time
	Limit  int
}

// Query returns matching entries in ascending timestamp order.
func (t *Trail) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	query := t.db.WithContext(ctx).Order("timestamp ASC")
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.AnonID != "" {
		query = query.Where("anonymized_patient_id = ?", filter.AnonID)
	}
	if !filter.From.IsZero() {
		query = query.Where("timestamp >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("timestamp <= ?", filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []Entry
	err := query.Find(&entries).Error
	return entries, err
}
