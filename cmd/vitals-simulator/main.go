package main

import (
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/clinical-ews/platform/pkg/common/logger"
	"github.com/clinical-ews/platform/pkg/simulator"
	"github.com/clinical-ews/platform/pkg/vitals"
	"github.com/go-resty/resty/v2"
)

var sourceByWard = map[string]string{
	"ICU": vitals.SourceICU,
	"A&E": vitals.SourceAE,
}

// Posts synthetic readings from multiple source systems to a running
// ews-server, occasionally emitting a deteriorating profile so the risk
// detection path gets exercised.
func main() {
	var (
		baseURL       = flag.String("url", "http://localhost:8080", "ews-server base URL")
		interval      = flag.Duration("interval", 2*time.Second, "delay between readings")
		rounds        = flag.Int("rounds", 0, "rounds to send (0 = run forever)")
		abnormalEvery = flag.Int("abnormal-every", 10, "send a deteriorating reading every N posts")
		seed          = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	)
	flag.Parse()

	logger.Init()

	client := resty.New().
		SetBaseURL(*baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("X-Actor-ID", "vitals-simulator")

	patients := simulator.DefaultPatients()
	generator := simulator.NewGenerator(*seed)
	rng := rand.New(rand.NewSource(*seed))

	sent := 0
	for round := 0; *rounds == 0 || round < *rounds; round++ {
		patient := patients[rng.Intn(len(patients))]
		stable := *abnormalEvery <= 0 || sent%*abnormalEvery != *abnormalEvery-1
		reading := generator.Vitals(stable)

		source, ok := sourceByWard[patient.Ward]
		if !ok {
			source = vitals.SourceWard
		}

		payload := map[string]interface{}{
			"patient_id":        patient.PatientID,
			"age":               patient.Age,
			"gender":            patient.Gender,
			"ward":              patient.Ward,
			"source_system":     source,
			"heart_rate":        reading.HeartRate,
			"bp_systolic":       reading.BPSystolic,
			"bp_diastolic":      reading.BPDiastolic,
			"respiratory_rate":  reading.RespiratoryRate,
			"temperature":       reading.Temperature,
			"oxygen_saturation": reading.OxygenSaturation,
		}

		resp, err := client.R().
			SetBody(payload).
			Post("/api/v1/ingest")
		if err != nil {
			logger.Log.WithError(err).Warn("failed to send reading")
		} else {
			logger.Log.WithFields(map[string]interface{}{
				"patient": patient.PatientID,
				"source":  source,
				"stable":  stable,
				"status":  fmt.Sprintf("%d", resp.StatusCode()),
			}).Info("reading sent")
		}

		sent++
		time.Sleep(*interval)
	}
}
