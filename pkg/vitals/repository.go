package vitals

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("patient has no vitals records")

// Store persists validated vitals. The exposed surface is append-only:
// records are created once and never updated or deleted.
type Store struct {
	db *gorm.DB

	// Same-patient appends are serialized so History observes non-decreasing
	// timestamps in append order. Cross-patient appends run in parallel.
	// The lock map grows with the distinct patients seen by this process
	// and is never pruned; it stays small at ward-scale populations.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Patient{}, &Record{})
}

func (s *Store) patientLock(anonID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[anonID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[anonID] = lock
	}
	return lock
}

// UpsertPatient creates the patient row on first ingest and refreshes
// demographics on later ones. The anonymized identifier linkage itself is
// never removed, and the admission timestamp keeps its first-ingest value.
func (s *Store) UpsertPatient(ctx context.Context, anonID string, v ValidatedVitals) error {
	lock := s.patientLock(anonID)
	lock.Lock()
	defer lock.Unlock()

	patient := Patient{
		AnonID:        anonID,
		Age:           v.Age,
		Gender:        v.Gender,
		Ward:          v.Ward,
		AdmissionDate: time.Now().UTC(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "anon_id"}},
			DoNothing: true,
		}).
		Create(&patient)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	updates := map[string]interface{}{}
	if v.Age > 0 {
		updates["age"] = v.Age
	}
	if v.Gender != "" {
		updates["gender"] = v.Gender
	}
	if v.Ward != "" {
		updates["ward"] = v.Ward
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Patient{}).
		Where("anon_id = ?", anonID).
		Updates(updates).Error
}

// Append durably stores one reading and returns the new record.
func (s *Store) Append(ctx context.Context, anonID string, v ValidatedVitals) (*Record, error) {
	lock := s.patientLock(anonID)
	lock.Lock()
	defer lock.Unlock()

	record := &Record{
		ID:               uuid.New().String(),
		AnonID:           anonID,
		Timestamp:        time.Now().UTC(),
		HeartRate:        v.HeartRate,
		BPSystolic:       v.BPSystolic,
		BPDiastolic:      v.BPDiastolic,
		RespiratoryRate:  v.RespiratoryRate,
		Temperature:      v.Temperature,
		OxygenSaturation: v.OxygenSaturation,
		SourceSystem:     v.SourceSystem,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// History returns a patient's readings in ascending timestamp order.
// A positive limit keeps the newest readings within that cap; 0 means no cap.
func (s *Store) History(ctx context.Context, anonID string, limit int) ([]Record, error) {
	query := s.db.WithContext(ctx).Where("anon_id = ?", anonID)
	if limit > 0 {
		query = query.Order("timestamp DESC").Limit(limit)
	} else {
		query = query.Order("timestamp ASC")
	}
	var records []Record
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	if limit > 0 {
		reverseRecords(records)
	}
	return records, nil
}

func reverseRecords(records []Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

// Latest returns the most recent reading for a patient.
func (s *Store) Latest(ctx context.Context, anonID string) (*Record, error) {
	var record Record
	result := s.db.WithContext(ctx).
		Where("anon_id = ?", anonID).
		Order("timestamp DESC").
		First(&record)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &record, nil
}

// CountPatients returns the number of known patients.
func (s *Store) CountPatients(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Patient{}).Count(&count).Error
	return count, err
}

// CountRecordsSince counts readings stored at or after cutoff.
func (s *Store) CountRecordsSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Record{}).
		Where("timestamp >= ?", cutoff).
		Count(&count).Error
	return count, err
}

// Patients lists every known patient, most recently admitted first.
func (s *Store) Patients(ctx context.Context) ([]Patient, error) {
	var patients []Patient
	err := s.db.WithContext(ctx).
		Order("admission_date DESC").
		Find(&patients).Error
	return patients, err
}
