package audit

import "testing"

func TestDetailTagsMatchActions(t *testing.T) {
	cases := []struct {
		details Details
		want    ActionType
	}{
		{IngestDetails{RecordID: "r1", SourceSystem: "ICU"}, ActionDataIngest},
		{PredictionDetails{PredictionID: "p1", RiskScore: 0.8, RiskLevel: "HIGH"}, ActionPrediction},
		{AccessDetails{Resource: "vitals", Outcome: "ok"}, ActionDataAccess},
		{RejectionDetails{SourceSystem: "Ward", FailingFields: []string{"heart_rate"}}, ActionIngestRejected},
	}
	for _, c := range cases {
		if c.details.Action() != c.want {
			t.Fatalf("expected %s, got %s", c.want, c.details.Action())
		}
		if len(c.details.Payload()) == 0 {
			t.Fatalf("expected non-empty payload for %s", c.want)
		}
	}
}

func TestIngestPayloadSchema(t *testing.T) {
	payload := IngestDetails{RecordID: "r42", SourceSystem: "A&E"}.Payload()
	if payload["record_id"] != "r42" || payload["source_system"] != "A&E" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestRejectionPayloadNamesFieldsOnly(t *testing.T) {
	payload := RejectionDetails{
		SourceSystem:  "Ward",
		FailingFields: []string{"oxygen_saturation", "temperature"},
	}.Payload()
	fields, ok := payload["failing_fields"].([]interface{})
	if !ok || len(fields) != 2 {
		t.Fatalf("expected 2 failing field names, got %v", payload["failing_fields"])
	}
}
