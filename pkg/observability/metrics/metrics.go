package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	ingestAccepted      atomic.Int64
	ingestRejected      atomic.Int64
	ingestUnaudited     atomic.Int64
	predictionServed    atomic.Int64
	predictionHighRisk  atomic.Int64
	predictionFailed    atomic.Int64
	predictionUnaudited atomic.Int64
)

func IncIngestAccepted()      { ingestAccepted.Add(1) }
func IncIngestRejected()      { ingestRejected.Add(1) }
func IncIngestUnaudited()     { ingestUnaudited.Add(1) }
func IncPredictionServed()    { predictionServed.Add(1) }
func IncPredictionHighRisk()  { predictionHighRisk.Add(1) }
func IncPredictionFailed()    { predictionFailed.Add(1) }
func IncPredictionUnaudited() { predictionUnaudited.Add(1) }

func writeCounter(w http.ResponseWriter, name, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, value)
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	writeCounter(w, "ews_ingest_accepted_total", "Vitals readings accepted and stored.", ingestAccepted.Load())
	writeCounter(w, "ews_ingest_rejected_total", "Vitals readings rejected by validation.", ingestRejected.Load())
	writeCounter(w, "ews_ingest_unaudited_total", "Stored readings whose audit write failed.", ingestUnaudited.Load())
	writeCounter(w, "ews_predictions_served_total", "Risk predictions served.", predictionServed.Load())
	writeCounter(w, "ews_predictions_high_risk_total", "Predictions classified HIGH.", predictionHighRisk.Load())
	writeCounter(w, "ews_predictions_failed_total", "Prediction requests that failed.", predictionFailed.Load())
	writeCounter(w, "ews_predictions_unaudited_total", "Stored predictions whose audit write failed.", predictionUnaudited.Load())
}

func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WritePrometheus(w)
	}
}
