package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clinical-ews/platform/pkg/anonymizer"
	"github.com/clinical-ews/platform/pkg/audit"
	"github.com/clinical-ews/platform/pkg/common/logger"
	"github.com/clinical-ews/platform/pkg/risk"
	"github.com/clinical-ews/platform/pkg/vitals"
	"github.com/google/uuid"
)

func init() {
	logger.Init()
}

type memStore struct {
	mu       sync.Mutex
	patients map[string]vitals.Patient
	records  map[string][]vitals.Record
	failNext error
}

func newMemStore() *memStore {
	return &memStore{
		patients: make(map[string]vitals.Patient),
		records:  make(map[string][]vitals.Record),
	}
}

func (s *memStore) UpsertPatient(_ context.Context, anonID string, v vitals.ValidatedVitals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[anonID]; !ok {
		s.patients[anonID] = vitals.Patient{
			AnonID: anonID, Age: v.Age, Gender: v.Gender, Ward: v.Ward,
			AdmissionDate: time.Now().UTC(),
		}
	}
	return nil
}

func (s *memStore) Append(_ context.Context, anonID string, v vitals.ValidatedVitals) (*vitals.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return nil, err
	}
	record := vitals.Record{
		ID: uuid.New().String(), AnonID: anonID, Timestamp: time.Now().UTC(),
		HeartRate: v.HeartRate, BPSystolic: v.BPSystolic, BPDiastolic: v.BPDiastolic,
		RespiratoryRate: v.RespiratoryRate, Temperature: v.Temperature,
		OxygenSaturation: v.OxygenSaturation, SourceSystem: v.SourceSystem,
	}
	s.records[anonID] = append(s.records[anonID], record)
	return &record, nil
}

func (s *memStore) History(_ context.Context, anonID string, _ int) ([]vitals.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.records[anonID]
	if len(records) == 0 {
		return nil, vitals.ErrNotFound
	}
	return append([]vitals.Record(nil), records...), nil
}

func (s *memStore) Latest(_ context.Context, anonID string) (*vitals.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.records[anonID]
	if len(records) == 0 {
		return nil, vitals.ErrNotFound
	}
	latest := records[len(records)-1]
	return &latest, nil
}

func (s *memStore) Patients(_ context.Context) ([]vitals.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	patients := make([]vitals.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		patients = append(patients, p)
	}
	return patients, nil
}

func (s *memStore) CountPatients(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.patients)), nil
}

func (s *memStore) CountRecordsSince(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, records := range s.records {
		for _, r := range records {
			if !r.Timestamp.Before(cutoff) {
				count++
			}
		}
	}
	return count, nil
}

type memTrail struct {
	mu      sync.Mutex
	entries []audit.Entry
	fail    bool
}

func (t *memTrail) Record(_ context.Context, actorID, anonID string, details audit.Details) (*audit.Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return nil, errors.New("audit backend down")
	}
	entry := audit.Entry{
		ID: uuid.New().String(), Timestamp: time.Now().UTC(),
		Action: details.Action(), ActorID: actorID, AnonID: anonID,
		Details: details.Payload(),
	}
	t.entries = append(t.entries, entry)
	return &entry, nil
}

func (t *memTrail) Query(_ context.Context, filter audit.Filter) ([]audit.Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []audit.Entry
	for _, e := range t.entries {
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.AnonID != "" && e.AnonID != filter.AnonID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (t *memTrail) byAction(action audit.ActionType) []audit.Entry {
	entries, _ := t.Query(context.Background(), audit.Filter{Action: action})
	return entries
}

type memPredictions struct {
	mu          sync.Mutex
	predictions []risk.Prediction
	fail        bool
}

func (p *memPredictions) Create(_ context.Context, anonID string, score float64, level risk.Level, factors []risk.Factor) (*risk.Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return nil, errors.New("predictions backend down")
	}
	prediction := risk.Prediction{
		ID: uuid.New().String(), AnonID: anonID, Timestamp: time.Now().UTC(),
		RiskScore: score, RiskLevel: level,
	}
	p.predictions = append(p.predictions, prediction)
	return &prediction, nil
}

func (p *memPredictions) History(_ context.Context, anonID string, _ int) ([]risk.Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []risk.Prediction
	for _, pr := range p.predictions {
		if pr.AnonID == anonID {
			out = append(out, pr)
		}
	}
	return out, nil
}

func (p *memPredictions) Recent(_ context.Context, limit int) ([]risk.Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.predictions) <= limit {
		return append([]risk.Prediction(nil), p.predictions...), nil
	}
	return append([]risk.Prediction(nil), p.predictions[len(p.predictions)-limit:]...), nil
}

func (p *memPredictions) CountLevelSince(_ context.Context, level risk.Level, _ time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var count int64
	for _, pr := range p.predictions {
		if pr.RiskLevel == level {
			count++
		}
	}
	return count, nil
}

type stubScorer struct {
	score float64
	err   error
}

func (s stubScorer) Score(risk.FeatureVector) (float64, []risk.Factor, error) {
	if s.err != nil {
		return 0, nil, s.err
	}
	return s.score, []risk.Factor{{Feature: "heart_rate", Weight: 1}}, nil
}

type capturedAlert struct {
	alertType string
	data      map[string]interface{}
}

type memPublisher struct {
	mu     sync.Mutex
	alerts []capturedAlert
}

func (p *memPublisher) PublishAlert(_ context.Context, alertType, _ string, data map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, capturedAlert{alertType: alertType, data: data})
	return nil
}

type testHarness struct {
	coordinator *Coordinator
	store       *memStore
	trail       *memTrail
	predictions *memPredictions
}

func newHarness(scorer Scorer) *testHarness {
	store := newMemStore()
	trail := &memTrail{}
	predictions := &memPredictions{}
	coordinator := NewCoordinator(
		vitals.NewValidator(vitals.DefaultRules()),
		anonymizer.New("test-salt"),
		store, scorer, predictions, trail,
	)
	return &testHarness{coordinator: coordinator, store: store, trail: trail, predictions: predictions}
}

func sampleInput(patientID string) vitals.RawVitalsInput {
	hr, sys, dia, rr, spo2 := 85, 120, 80, 16, 98
	temp := 37.2
	age := 67
	return vitals.RawVitalsInput{
		PatientID: patientID, Age: &age, Gender: "M", Ward: "ICU",
		SourceSystem: vitals.SourceICU,
		HeartRate:    &hr, BPSystolic: &sys, BPDiastolic: &dia,
		RespiratoryRate: &rr, Temperature: &temp, OxygenSaturation: &spo2,
	}
}

func TestIngestHappyPath(t *testing.T) {
	h := newHarness(stubScorer{score: 0.1})
	result, err := h.coordinator.Ingest(context.Background(), "nurse-7", sampleInput("P001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", result.Status)
	}
	if result.AnonID == "" || result.AnonID == "P001" {
		t.Fatalf("expected anonymized id, got %q", result.AnonID)
	}
	if len(h.store.records[result.AnonID]) != 1 {
		t.Fatalf("expected one stored record")
	}

	ingests := h.trail.byAction(audit.ActionDataIngest)
	if len(ingests) != 1 {
		t.Fatalf("expected one DATA_INGEST entry, got %d", len(ingests))
	}
	if ingests[0].ActorID != "nurse-7" || ingests[0].AnonID != result.AnonID {
		t.Fatalf("unexpected audit entry: %+v", ingests[0])
	}
}

func TestIngestSameRealIDStableAnonID(t *testing.T) {
	h := newHarness(stubScorer{score: 0.1})
	first, err := h.coordinator.Ingest(context.Background(), "", sampleInput("P001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := h.coordinator.Ingest(context.Background(), "", sampleInput("P001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.AnonID != second.AnonID {
		t.Fatalf("anon id changed between ingests: %s vs %s", first.AnonID, second.AnonID)
	}
	records, err := h.coordinator.Vitals(context.Background(), "", first.AnonID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].Timestamp.Before(records[0].Timestamp) {
		t.Fatal("history timestamps not non-decreasing")
	}
}

func TestIngestRejectedStoresNothing(t *testing.T) {
	h := newHarness(stubScorer{score: 0.1})
	input := sampleInput("P001")
	badSpO2 := 150
	input.OxygenSaturation = &badSpO2

	result, err := h.coordinator.Ingest(context.Background(), "", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", result.Status)
	}
	if len(result.Errors) != 1 || result.Errors[0].Field != "oxygen_saturation" {
		t.Fatalf("expected oxygen_saturation to be named, got %v", result.Errors)
	}
	if len(h.store.records) != 0 || len(h.store.patients) != 0 {
		t.Fatal("rejected ingest must not mutate the store")
	}
	if len(h.trail.byAction(audit.ActionDataIngest)) != 0 {
		t.Fatal("rejected ingest must not produce a DATA_INGEST entry")
	}
	if len(h.trail.byAction(audit.ActionIngestRejected)) != 1 {
		t.Fatal("expected one INGEST_REJECTED entry")
	}
}

func TestIngestAuditFailureIsPartial(t *testing.T) {
	h := newHarness(stubScorer{score: 0.1})
	h.trail.fail = true

	result, err := h.coordinator.Ingest(context.Background(), "", sampleInput("P001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusStoredButUnaudited {
		t.Fatalf("expected stored_but_unaudited, got %s", result.Status)
	}
	if len(h.store.records[result.AnonID]) != 1 {
		t.Fatal("durable store must not be rolled back on audit failure")
	}
}

func TestIngestStorageFailureAbortsBeforeAudit(t *testing.T) {
	h := newHarness(stubScorer{score: 0.1})
	h.store.failNext = errors.New("disk full")

	if _, err := h.coordinator.Ingest(context.Background(), "", sampleInput("P001")); err == nil {
		t.Fatal("expected storage failure to surface")
	}
	if len(h.trail.entries) != 0 {
		t.Fatal("no audit entry may be written when storage fails")
	}
}

func TestPredictHappyPath(t *testing.T) {
	h := newHarness(stubScorer{score: 0.85})
	ingested, err := h.coordinator.Ingest(context.Background(), "", sampleInput("P001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := h.coordinator.Predict(context.Background(), "dr-house", ingested.AnonID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RiskScore != 0.85 || result.RiskLevel != risk.LevelHigh {
		t.Fatalf("unexpected prediction: %+v", result)
	}
	wantLevel, _ := risk.Classify(result.RiskScore)
	if result.RiskLevel != wantLevel {
		t.Fatalf("risk level inconsistent with score: %s vs %s", result.RiskLevel, wantLevel)
	}
	if len(result.ContributingFactors) == 0 {
		t.Fatal("expected contributing factors")
	}
	if len(h.predictions.predictions) != 1 {
		t.Fatal("expected one persisted prediction")
	}
	if len(h.trail.byAction(audit.ActionPrediction)) != 1 {
		t.Fatal("expected one PREDICTION entry")
	}
}

func TestPredictUnknownPatient(t *testing.T) {
	h := newHarness(stubScorer{score: 0.2})
	_, err := h.coordinator.Predict(context.Background(), "", "deadbeefdeadbeef")
	if !errors.Is(err, vitals.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPredictModelUnavailableAuditsAccess(t *testing.T) {
	h := newHarness(stubScorer{err: risk.ErrModelUnavailable})
	ingested, err := h.coordinator.Ingest(context.Background(), "", sampleInput("P001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = h.coordinator.Predict(context.Background(), "", ingested.AnonID)
	if !errors.Is(err, risk.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	accesses := h.trail.byAction(audit.ActionDataAccess)
	if len(accesses) != 1 {
		t.Fatalf("expected one DATA_ACCESS entry, got %d", len(accesses))
	}
	if accesses[0].Details["outcome"] != "model_unavailable" {
		t.Fatalf("unexpected access details: %v", accesses[0].Details)
	}
}

func TestPredictHighRiskPublishesAlert(t *testing.T) {
	h := newHarness(stubScorer{score: 0.9})
	publisher := &memPublisher{}
	h.coordinator.WithAlerts(publisher, "test")

	ingested, err := h.coordinator.Ingest(context.Background(), "", sampleInput("P001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.coordinator.Predict(context.Background(), "", ingested.AnonID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(publisher.alerts) != 1 || publisher.alerts[0].alertType != "risk-alert" {
		t.Fatalf("expected one risk-alert, got %v", publisher.alerts)
	}
	if publisher.alerts[0].data["anon_id"] != ingested.AnonID {
		t.Fatal("alert must carry the anonymized id")
	}
}

func TestPredictLowRiskDoesNotAlert(t *testing.T) {
	h := newHarness(stubScorer{score: 0.1})
	publisher := &memPublisher{}
	h.coordinator.WithAlerts(publisher, "test")

	ingested, _ := h.coordinator.Ingest(context.Background(), "", sampleInput("P001"))
	if _, err := h.coordinator.Predict(context.Background(), "", ingested.AnonID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(publisher.alerts) != 0 {
		t.Fatalf("expected no alerts, got %v", publisher.alerts)
	}
}

func TestConcurrentIngestsPreserveOrdering(t *testing.T) {
	h := newHarness(stubScorer{score: 0.1})

	var wg sync.WaitGroup
	for _, patient := range []string{"P001", "P002", "P003"} {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := h.coordinator.Ingest(context.Background(), "", sampleInput(id)); err != nil {
					t.Errorf("ingest failed: %v", err)
				}
			}(patient)
		}
	}
	wg.Wait()

	for _, patient := range []string{"P001", "P002", "P003"} {
		anonID, _ := anonymizer.New("test-salt").Anonymize(patient)
		records, err := h.coordinator.Vitals(context.Background(), "", anonID, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 10 {
			t.Fatalf("expected 10 records for %s, got %d", patient, len(records))
		}
		for i := 1; i < len(records); i++ {
			if records[i].Timestamp.Before(records[i-1].Timestamp) {
				t.Fatalf("timestamps for %s not non-decreasing", patient)
			}
		}
	}
}

func TestDashboardStats(t *testing.T) {
	h := newHarness(stubScorer{score: 0.9})
	for _, id := range []string{"P001", "P002"} {
		ingested, err := h.coordinator.Ingest(context.Background(), "", sampleInput(id))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := h.coordinator.Predict(context.Background(), "", ingested.AnonID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	stats, err := h.coordinator.Dashboard(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalPatients != 2 || stats.ReadingsToday != 2 || stats.HighRiskToday != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.RecentPredictions) != 2 {
		t.Fatalf("expected 2 recent predictions, got %d", len(stats.RecentPredictions))
	}
}

type memCache struct {
	mu          sync.Mutex
	predictions map[string]PredictResult
	stats       *DashboardStats
}

func newMemCache() *memCache {
	return &memCache{predictions: make(map[string]PredictResult)}
}

func (c *memCache) GetPrediction(_ context.Context, anonID string) (*PredictResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.predictions[anonID]
	if !ok {
		return nil, false
	}
	return &result, true
}

func (c *memCache) SetPrediction(_ context.Context, anonID string, result PredictResult, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.predictions[anonID] = result
}

func (c *memCache) InvalidatePrediction(_ context.Context, anonID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.predictions, anonID)
}

func (c *memCache) GetDashboard(_ context.Context) (*DashboardStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats, c.stats != nil
}

func (c *memCache) SetDashboard(_ context.Context, stats DashboardStats, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = &stats
}

func TestPredictCachedResponseStillAudited(t *testing.T) {
	h := newHarness(stubScorer{score: 0.2})
	cache := newMemCache()
	h.coordinator.WithCache(cache, time.Minute)

	first, err := h.coordinator.Ingest(context.Background(), "nurse-7", sampleInput("P001"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := h.coordinator.Predict(context.Background(), "dr-2", first.AnonID); err != nil {
		t.Fatalf("first predict: %v", err)
	}

	cached, err := h.coordinator.Predict(context.Background(), "dr-2", first.AnonID)
	if err != nil {
		t.Fatalf("cached predict: %v", err)
	}
	if cached.RiskLevel != risk.LevelLow {
		t.Fatalf("expected cached LOW result, got %s", cached.RiskLevel)
	}
	if len(h.predictions.predictions) != 1 {
		t.Fatalf("cached predict must not rescore, got %d stored predictions", len(h.predictions.predictions))
	}

	accesses := h.trail.byAction(audit.ActionDataAccess)
	if len(accesses) != 1 {
		t.Fatalf("expected one DATA_ACCESS entry for the cached response, got %d", len(accesses))
	}
	if accesses[0].ActorID != "dr-2" || accesses[0].AnonID != first.AnonID {
		t.Fatalf("unexpected audit entry: %+v", accesses[0])
	}
	if accesses[0].Details["resource"] != "risk_prediction" {
		t.Fatalf("expected risk_prediction resource, got %v", accesses[0].Details["resource"])
	}
	if len(h.trail.byAction(audit.ActionPrediction)) != 1 {
		t.Fatalf("only the scored predict should write a PREDICTION entry")
	}
}
