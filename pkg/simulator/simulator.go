package simulator

import (
	"math"
	"math/rand"

	"github.com/clinical-ews/platform/pkg/vitals"
)

// SimPatient is one synthetic admission used by the simulator and trainer.
type SimPatient struct {
	PatientID string
	Age       int
	Gender    string
	Ward      string
}

func DefaultPatients() []SimPatient {
	return []SimPatient{
		{PatientID: "P001", Age: 67, Gender: "M", Ward: "ICU"},
		{PatientID: "P002", Age: 45, Gender: "F", Ward: "A&E"},
		{PatientID: "P003", Age: 82, Gender: "F", Ward: "Ward 3"},
		{PatientID: "P004", Age: 54, Gender: "M", Ward: "ICU"},
		{PatientID: "P005", Age: 39, Gender: "F", Ward: "Ward 2"},
		{PatientID: "P006", Age: 71, Gender: "M", Ward: "A&E"},
		{PatientID: "P007", Age: 28, Gender: "F", Ward: "Ward 1"},
		{PatientID: "P008", Age: 63, Gender: "M", Ward: "ICU"},
	}
}

// Generator produces synthetic vitals readings with stable and
// deteriorating profiles.
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Vitals returns one reading. Stable readings sit inside normal adult
// ranges; deteriorating ones combine tachycardia or bradycardia with
// hypotension, abnormal temperature and low oxygen saturation.
func (g *Generator) Vitals(stable bool) vitals.ValidatedVitals {
	if stable {
		return vitals.ValidatedVitals{
			HeartRate:        60 + g.rng.Intn(41),
			BPSystolic:       110 + g.rng.Intn(31),
			BPDiastolic:      70 + g.rng.Intn(21),
			RespiratoryRate:  12 + g.rng.Intn(9),
			Temperature:      round1(36.5 + g.rng.Float64()),
			OxygenSaturation: 95 + g.rng.Intn(6),
		}
	}

	v := vitals.ValidatedVitals{
		OxygenSaturation: 85 + g.rng.Intn(9),
	}
	if g.rng.Float64() > 0.5 {
		v.HeartRate = 40 + g.rng.Intn(16)
	} else {
		v.HeartRate = 120 + g.rng.Intn(41)
	}
	if g.rng.Float64() > 0.5 {
		v.BPSystolic = 80 + g.rng.Intn(21)
	} else {
		v.BPSystolic = 160 + g.rng.Intn(41)
	}
	if g.rng.Float64() > 0.5 {
		v.BPDiastolic = 50 + g.rng.Intn(16)
	} else {
		v.BPDiastolic = 95 + g.rng.Intn(26)
	}
	if g.rng.Float64() > 0.5 {
		v.RespiratoryRate = 8 + g.rng.Intn(3)
	} else {
		v.RespiratoryRate = 25 + g.rng.Intn(11)
	}
	if g.rng.Float64() > 0.5 {
		v.Temperature = round1(35.0 + g.rng.Float64())
	} else {
		v.Temperature = round1(38.5 + 1.5*g.rng.Float64())
	}
	return v
}

// TrainingSet builds n labeled samples in model feature order with roughly
// the given positive (deteriorating) rate.
func (g *Generator) TrainingSet(n int, positiveRate float64) ([][]float64, []float64) {
	samples := make([][]float64, 0, n)
	labels := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		deteriorating := g.rng.Float64() < positiveRate
		v := g.Vitals(!deteriorating)
		samples = append(samples, []float64{
			float64(v.HeartRate),
			float64(v.BPSystolic),
			float64(v.BPDiastolic),
			float64(v.RespiratoryRate),
			v.Temperature,
			float64(v.OxygenSaturation),
		})
		label := 0.0
		if deteriorating {
			label = 1
		}
		labels = append(labels, label)
	}
	return samples, labels
}
